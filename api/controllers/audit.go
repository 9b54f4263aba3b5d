package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/calebreyes/stockpilot-backend/api/responses"
	"github.com/calebreyes/stockpilot-backend/internal/audit"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
)

// VariantAudit replays the variant's journal and reports drift and snapshot
// chain breaks.
func VariantAudit(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		variantID, err := uuid.Parse(chi.URLParam(r, "variantId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}

		result, err := svc.AuditVariant(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// VariantStockouts reconstructs the variant's zero-stock windows.
func VariantStockouts(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		variantID, err := uuid.Parse(chi.URLParam(r, "variantId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id"))
			return
		}

		periods, err := svc.FindStockouts(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"stockouts": periods})
	}
}
