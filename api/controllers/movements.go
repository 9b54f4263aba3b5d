package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calebreyes/stockpilot-backend/api/responses"
	"github.com/calebreyes/stockpilot-backend/api/validators"
	"github.com/calebreyes/stockpilot-backend/internal/ledger"
	"github.com/calebreyes/stockpilot-backend/internal/movements"
	"github.com/calebreyes/stockpilot-backend/pkg/enums"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
	"github.com/calebreyes/stockpilot-backend/pkg/pagination"
)

type recordMovementRequest struct {
	VariantID   string  `json:"variant_id" validate:"required,uuid"`
	Type        string  `json:"type" validate:"required"`
	Quantity    int     `json:"quantity" validate:"required"`
	Reason      string  `json:"reason" validate:"required"`
	ReferenceID *string `json:"reference_id,omitempty" validate:"omitempty,uuid"`
	UserID      *string `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Notes       *string `json:"notes,omitempty"`
	OccurredAt  *string `json:"occurred_at,omitempty"`
}

// RecordMovement appends one movement to the ledger and returns the stored row
// with its stock snapshots.
func RecordMovement(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var req recordMovementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movement, err := svc.RecordMovement(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

func (req recordMovementRequest) toInput() (ledger.MovementInput, error) {
	var input ledger.MovementInput

	variantID, err := uuid.Parse(req.VariantID)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid variant id")
	}

	movementType, err := enums.ParseMovementType(req.Type)
	if err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type")
	}

	input = ledger.MovementInput{
		VariantID: variantID,
		Type:      movementType,
		Quantity:  req.Quantity,
		Reason:    strings.TrimSpace(req.Reason),
		Notes:     req.Notes,
	}

	if req.ReferenceID != nil {
		refID, err := uuid.Parse(*req.ReferenceID)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reference id")
		}
		input.ReferenceID = &refID
	}
	if req.UserID != nil {
		userID, err := uuid.Parse(*req.UserID)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
		}
		input.UserID = &userID
	}
	if req.OccurredAt != nil {
		occurredAt, err := time.Parse(time.RFC3339, *req.OccurredAt)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "occurred_at must be RFC 3339")
		}
		input.OccurredAt = occurredAt
	}

	return input, nil
}

// ListMovements returns one filtered cursor page of the ledger.
func ListMovements(svc movements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movements service unavailable"))
			return
		}

		var filters movements.Filters

		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			movementType, err := enums.ParseMovementType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type"))
				return
			}
			filters.Type = &movementType
		}

		variantID, err := validators.ParseQueryUUID(r, "variant_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.VariantID = variantID

		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.From = from

		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.To = to

		filters.Query = strings.TrimSpace(r.URL.Query().Get("q"))

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filters, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// RecentMovements returns the newest movements across all variants.
func RecentMovements(svc movements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movements service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.Recent(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"movements": records})
	}
}

// RestockStats rolls up restock activity, optionally scoped to one variant.
func RestockStats(svc movements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "movements service unavailable"))
			return
		}

		variantID, err := validators.ParseQueryUUID(r, "variant_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.RestockStats(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
