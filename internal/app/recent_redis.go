package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clubos/ledger-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RecentCounterpartyMirror is the optional hot mirror of the
// recent-counterparty index. It is never consulted for correctness; the
// Postgres row written inside the transfer's atomic unit stays authoritative.
type RecentCounterpartyMirror interface {
	RecordTransfer(ctx context.Context, senderID, recipientID uuid.UUID, recipientName string, at time.Time) error
	ListRecent(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.RecentCounterparty, error)
}

// recentTransferScript bumps the per-pair transfer count, stores the latest
// payload, and trims the per-sender recency set to the configured size.
var recentTransferScript = redis.NewScript(`
local count = redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
local excess = redis.call("ZCARD", KEYS[3]) - tonumber(ARGV[4])
if excess > 0 then
  local dropped = redis.call("ZPOPMIN", KEYS[3], excess)
  for i = 1, #dropped, 2 do
    redis.call("HDEL", KEYS[1], dropped[i])
    redis.call("HDEL", KEYS[2], dropped[i])
  end
end
return count
`)

const recentMirrorMaxEntries = 50

type recentMirrorPayload struct {
	DisplayName    string    `json:"display_name"`
	LastTransferAt time.Time `json:"last_transfer_at"`
}

// RedisRecentCounterpartyMirror keeps the recent-counterparty index in Redis
// so the transfer UI can render suggestions without touching Postgres.
type RedisRecentCounterpartyMirror struct {
	client     redis.UniversalClient
	prefix     string
	maxEntries int
}

func NewRedisRecentCounterpartyMirror(client redis.UniversalClient, prefix string, maxEntries int) *RedisRecentCounterpartyMirror {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "ledger:recent"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if maxEntries <= 0 {
		maxEntries = recentMirrorMaxEntries
	}

	return &RedisRecentCounterpartyMirror{
		client:     client,
		prefix:     trimmedPrefix,
		maxEntries: maxEntries,
	}
}

func (m *RedisRecentCounterpartyMirror) keys(senderID uuid.UUID) (counts, payloads, recency string) {
	base := fmt.Sprintf("%s:%s", m.prefix, senderID)
	return base + ":counts", base + ":payloads", base + ":recency"
}

// RecordTransfer bumps the (sender, recipient) pair after a committed
// transfer. Best effort: callers log and move on when it fails.
func (m *RedisRecentCounterpartyMirror) RecordTransfer(ctx context.Context, senderID, recipientID uuid.UUID, recipientName string, at time.Time) error {
	if m == nil || m.client == nil {
		return nil
	}

	payload, err := json.Marshal(recentMirrorPayload{DisplayName: recipientName, LastTransferAt: at})
	if err != nil {
		return err
	}

	counts, payloads, recency := m.keys(senderID)
	return recentTransferScript.Run(ctx, m.client,
		[]string{counts, payloads, recency},
		recipientID.String(), string(payload), at.UnixMilli(), m.maxEntries,
	).Err()
}

// ListRecent returns the sender's mirrored counterparties, most recent first.
// An empty result is not an error; the caller falls back to Postgres.
func (m *RedisRecentCounterpartyMirror) ListRecent(ctx context.Context, senderID uuid.UUID, limit int) ([]domain.RecentCounterparty, error) {
	if m == nil || m.client == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > m.maxEntries {
		limit = m.maxEntries
	}

	counts, payloads, recency := m.keys(senderID)
	recipientIDs, err := m.client.ZRevRange(ctx, recency, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(recipientIDs) == 0 {
		return nil, nil
	}

	rawPayloads, err := m.client.HMGet(ctx, payloads, recipientIDs...).Result()
	if err != nil {
		return nil, err
	}
	rawCounts, err := m.client.HMGet(ctx, counts, recipientIDs...).Result()
	if err != nil {
		return nil, err
	}

	counterparties := make([]domain.RecentCounterparty, 0, len(recipientIDs))
	for i, rawID := range recipientIDs {
		recipientID, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}

		cp := domain.RecentCounterparty{
			SenderID:    senderID,
			RecipientID: recipientID,
		}
		if raw, ok := rawPayloads[i].(string); ok {
			var payload recentMirrorPayload
			if err := json.Unmarshal([]byte(raw), &payload); err == nil {
				cp.DisplayName = payload.DisplayName
				cp.LastTransferAt = payload.LastTransferAt
			}
		}
		if raw, ok := rawCounts[i].(string); ok {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				cp.TransferCount = n
			}
		}
		counterparties = append(counterparties, cp)
	}
	return counterparties, nil
}
