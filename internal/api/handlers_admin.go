/**
 * @description
 * Internal HTTP handlers for administrative ledger operations: manual
 * grants and deductions, transaction refunds, and association-level
 * reports. These routes are called by the platform's admin backend and
 * are guarded by InternalAuthMiddleware rather than member JWTs.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clubos/ledger-service/internal/domain"
)

// AdminAdjustmentRequest is the payload for a manual grant or deduction.
type AdminAdjustmentRequest struct {
	AdminID     string  `json:"admin_id"`
	UserID      string  `json:"user_id"`
	Amount      int64   `json:"amount"`
	Description *string `json:"description,omitempty"`
	SourceID    *string `json:"source_id,omitempty"`
}

// AdminRefundRequest is the payload for refunding a ledger transaction.
type AdminRefundRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// AdminGrantHandler credits points to a member on behalf of an admin.
//
// POST /internal/admin/grant
func (h *LedgerHandlers) AdminGrantHandler(w http.ResponseWriter, r *http.Request) {
	req, adminID, userID, ok := h.decodeAdjustment(w, r)
	if !ok {
		return
	}

	result, err := h.service.AdminGrantPoints(r.Context(), adminID, userID, req.Amount, req.Description, req.SourceID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// AdminDeductHandler debits points from a member on behalf of an admin.
// Fails if the member's balance cannot cover the deduction.
//
// POST /internal/admin/deduct
func (h *LedgerHandlers) AdminDeductHandler(w http.ResponseWriter, r *http.Request) {
	req, adminID, userID, ok := h.decodeAdjustment(w, r)
	if !ok {
		return
	}

	result, err := h.service.AdminDeductPoints(r.Context(), adminID, userID, req.Amount, req.Description, req.SourceID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// AdminRefundHandler reverses a previously recorded transaction. Each
// transaction can be refunded at most once.
//
// POST /internal/admin/refund
func (h *LedgerHandlers) AdminRefundHandler(w http.ResponseWriter, r *http.Request) {
	var req AdminRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transactionID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}
	if req.Reason == "" {
		h.writeError(w, http.StatusBadRequest, "Reason is required")
		return
	}

	result, err := h.service.AdminRefundTransaction(r.Context(), transactionID, req.Reason)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// AssociationReportHandler returns aggregate point activity for an
// association: member count, per-source totals, points in circulation,
// and top earners over the period.
//
// GET /internal/reports/associations/{associationID}?period=
func (h *LedgerHandlers) AssociationReportHandler(w http.ResponseWriter, r *http.Request) {
	associationID, err := uuid.Parse(chi.URLParam(r, "associationID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid association id")
		return
	}

	period := domain.SummaryPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = domain.PeriodMonth
	}

	report, err := h.service.GetReports(r.Context(), associationID, period)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// decodeAdjustment parses and validates the shared fields of grant and
// deduct requests. Writes the error response itself on failure.
func (h *LedgerHandlers) decodeAdjustment(w http.ResponseWriter, r *http.Request) (AdminAdjustmentRequest, uuid.UUID, uuid.UUID, bool) {
	var req AdminAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, uuid.Nil, uuid.Nil, false
	}

	adminID, err := uuid.Parse(req.AdminID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid admin id")
		return req, uuid.Nil, uuid.Nil, false
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user id")
		return req, uuid.Nil, uuid.Nil, false
	}

	return req, adminID, userID, true
}
