package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/calebreyes/stockpilot-backend/api/responses"
	"github.com/calebreyes/stockpilot-backend/api/validators"
	"github.com/calebreyes/stockpilot-backend/internal/refunds"
	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
)

type refundItemsRequest struct {
	UserID *string             `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Items  []refundItemRequest `json:"items" validate:"required,min=1,dive"`
}

type refundItemRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type refundFullRequest struct {
	UserID *string `json:"user_id,omitempty" validate:"omitempty,uuid"`
}

type refundResponse struct {
	Transaction    *models.SaleTransaction `json:"transaction"`
	Movements      []*models.StockMovement `json:"movements"`
	RefundedAmount string                  `json:"refunded_amount"`
}

// RefundItems refunds selected line quantities of a sale transaction.
func RefundItems(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}

		transactionID, err := uuid.Parse(chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction id"))
			return
		}

		var req refundItemsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := refunds.RefundInput{TransactionID: transactionID}
		if req.UserID != nil {
			userID, err := uuid.Parse(*req.UserID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
				return
			}
			input.UserID = &userID
		}
		for _, item := range req.Items {
			itemID, err := uuid.Parse(item.ItemID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
				return
			}
			input.Items = append(input.Items, refunds.ItemInput{ItemID: itemID, Quantity: item.Quantity})
		}

		result, err := svc.RefundItems(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRefundResponse(result))
	}
}

// RefundTransaction refunds every remaining unit of every line.
func RefundTransaction(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refunds service unavailable"))
			return
		}

		transactionID, err := uuid.Parse(chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction id"))
			return
		}

		var userID *uuid.UUID
		if r.ContentLength > 0 {
			var req refundFullRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if req.UserID != nil {
				parsed, err := uuid.Parse(*req.UserID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
					return
				}
				userID = &parsed
			}
		}

		result, err := svc.RefundTransaction(r.Context(), transactionID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRefundResponse(result))
	}
}

func toRefundResponse(result *refunds.Result) *refundResponse {
	if result == nil {
		return nil
	}
	return &refundResponse{
		Transaction:    result.Transaction,
		Movements:      result.Movements,
		RefundedAmount: result.RefundedAmount.StringFixed(2),
	}
}
