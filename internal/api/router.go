/**
 * @description
 * Route definitions for the ledger service API. Member routes require a
 * valid platform JWT; internal routes require the shared service API key.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes builds the chi router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, jwksURL, internalAPIKey string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Member routes
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/transactions", h.GetHistoryHandler)
		r.Get("/transactions/summary", h.GetSummaryHandler)
		r.Post("/transfers", h.TransferHandler)
		r.Get("/transfers/recent", h.RecentCounterpartiesHandler)
	})

	// Internal service-to-service routes
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/admin/grant", h.AdminGrantHandler)
		r.Post("/internal/admin/deduct", h.AdminDeductHandler)
		r.Post("/internal/admin/refund", h.AdminRefundHandler)
		r.Get("/internal/reports/associations/{associationID}", h.AssociationReportHandler)
	})

	return r
}
