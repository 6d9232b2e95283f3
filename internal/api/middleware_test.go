package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newJWKSServer(t *testing.T, key *rsa.PublicKey, kid string, hits *int64) *httptest.Server {
	t.Helper()
	jwks := JWKS{Keys: []JSONWebKey{{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt64(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	}))
}

func resetJWKSCache(t *testing.T) {
	t.Helper()
	jwksCacheMu.Lock()
	jwksCache = nil
	jwksCacheTime = time.Time{}
	jwksCacheMu.Unlock()
	t.Cleanup(func() {
		jwksCacheMu.Lock()
		jwksCache = nil
		jwksCacheTime = time.Time{}
		jwksCacheMu.Unlock()
	})
}

func TestGetPublicKeyFromJWKS_ConcurrentRequests(t *testing.T) {
	resetJWKSCache(t)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	var hits int64
	server := newJWKSServer(t, &privateKey.PublicKey, "key-1", &hits)
	defer server.Close()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	keys := make([]*rsa.PublicKey, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], errs[i] = getPublicKeyFromJWKS(server.URL, "key-1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d returned error: %v", i, errs[i])
		}
		if keys[i] == nil || keys[i].N.Cmp(privateKey.PublicKey.N) != 0 {
			t.Fatalf("worker %d got wrong public key", i)
		}
	}
	// The check-fetch-store runs under the lock, so only the first caller
	// should hit the endpoint within the TTL.
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected 1 JWKS fetch, got %d", got)
	}
}

func TestGetPublicKeyFromJWKS_CachesAcrossCalls(t *testing.T) {
	resetJWKSCache(t)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	var hits int64
	server := newJWKSServer(t, &privateKey.PublicKey, "key-1", &hits)
	defer server.Close()

	for i := 0; i < 3; i++ {
		if _, err := getPublicKeyFromJWKS(server.URL, "key-1"); err != nil {
			t.Fatalf("call %d returned error: %v", i, err)
		}
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected the key set fetched once, got %d fetches", got)
	}
}

func TestGetPublicKeyFromJWKS_UnknownKid(t *testing.T) {
	resetJWKSCache(t)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	server := newJWKSServer(t, &privateKey.PublicKey, "key-1", nil)
	defer server.Close()

	if _, err := getPublicKeyFromJWKS(server.URL, "no-such-kid"); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}
