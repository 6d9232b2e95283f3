/**
 * @description
 * Member-facing HTTP handlers for the ledger service.
 *
 * Handlers parse and validate request input, resolve the authenticated
 * user from the request context, delegate to the application service, and
 * map domain errors to HTTP status codes. All responses are JSON.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clubos/ledger-service/internal/app"
	"github.com/clubos/ledger-service/internal/domain"
	"github.com/clubos/ledger-service/internal/store"
)

// LedgerHandlers holds the dependencies for the ledger HTTP endpoints.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a LedgerHandlers backed by the given service.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

// GetBalanceHandler returns the authenticated user's account balance and
// lifetime totals. An account is created lazily on first access.
//
// GET /balance
func (h *LedgerHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance":         account.Balance,
		"lifetime_earned": account.LifetimeEarned,
		"lifetime_spent":  account.LifetimeSpent,
		"updated_at":      account.UpdatedAt,
	})
}

// GetHistoryHandler returns a page of the authenticated user's transaction
// history, newest first. Supports filtering by direction, source, and a
// time window.
//
// GET /transactions?page=&page_size=&direction=&source=&from=&to=
func (h *LedgerHandlers) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	query, err := parseHistoryQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.GetHistory(r.Context(), userID, query)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

// GetSummaryHandler returns earned/spent totals for the authenticated user
// over a named period, broken down by source.
//
// GET /transactions/summary?period=
func (h *LedgerHandlers) GetSummaryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	period := domain.SummaryPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = domain.PeriodMonth
	}

	summary, err := h.service.GetSummary(r.Context(), userID, period)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// TransferRequest is the payload for a member-to-member point transfer.
type TransferRequest struct {
	RecipientID string  `json:"recipient_id"`
	Amount      int64   `json:"amount"`
	Message     *string `json:"message,omitempty"`
}

// TransferHandler moves points from the authenticated user to another
// member.
//
// POST /transfers
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid recipient id")
		return
	}

	result, err := h.service.TransferPoints(r.Context(), userID, recipientID, req.Amount, req.Message)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// RecentCounterpartiesHandler returns the authenticated user's most recent
// transfer recipients, ordered by last transfer time.
//
// GET /transfers/recent?limit=
func (h *LedgerHandlers) RecentCounterpartiesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		if parsed > 50 {
			parsed = 50
		}
		limit = parsed
	}

	recents, err := h.service.GetRecentCounterparties(r.Context(), userID, limit)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"recipients": recents})
}

// authenticatedUserID resolves the authenticated user's id from the
// request context and parses it as a UUID. Writes the error response
// itself and returns ok=false on failure.
func (h *LedgerHandlers) authenticatedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := GetAuthenticatedUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid user id in token")
		return uuid.Nil, false
	}
	return userID, true
}

// parseHistoryQuery extracts pagination and filter parameters from the
// request. Page size clamping happens in the service layer.
func parseHistoryQuery(r *http.Request) (domain.HistoryQuery, error) {
	q := r.URL.Query()
	var query domain.HistoryQuery

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return query, errors.New("invalid page parameter")
		}
		query.Page = page
	}

	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return query, errors.New("invalid page_size parameter")
		}
		query.PageSize = size
	}

	switch direction := q.Get("direction"); direction {
	case "":
	case string(domain.DirectionCredit), string(domain.DirectionDebit):
		query.Direction = domain.HistoryDirection(direction)
	default:
		return query, errors.New("invalid direction parameter")
	}

	if source := q.Get("source"); source != "" {
		query.Source = domain.TransactionSource(source)
	}

	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, errors.New("invalid from parameter, expected RFC3339")
		}
		query.From = &from
	}

	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, errors.New("invalid to parameter, expected RFC3339")
		}
		query.To = &to
	}

	return query, nil
}

// writeLedgerError maps service and store errors to HTTP status codes.
func (h *LedgerHandlers) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Amount must be positive")
	case errors.Is(err, app.ErrSelfTransferNotAllowed):
		h.writeError(w, http.StatusBadRequest, "Cannot transfer points to yourself")
	case errors.Is(err, app.ErrInvalidPeriod):
		h.writeError(w, http.StatusBadRequest, "Invalid period")
	case errors.Is(err, app.ErrRecipientNotFound):
		h.writeError(w, http.StatusNotFound, "Recipient not found")
	case errors.Is(err, store.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, store.ErrInsufficientBalance):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient balance")
	case errors.Is(err, store.ErrAlreadyRefunded):
		h.writeError(w, http.StatusConflict, "Transaction already refunded")
	default:
		log.Printf("level=error component=api msg=\"request failed\" method=%s path=%s error=%v", r.Method, r.URL.Path, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
