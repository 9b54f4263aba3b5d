package refunds

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/internal/ledger"
	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	"github.com/calebreyes/stockpilot-backend/pkg/enums"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
	"github.com/calebreyes/stockpilot-backend/pkg/metrics"
)

const (
	refundMaxRetries  = 3
	refundBackoffBase = 10 * time.Millisecond

	reasonFullRefund    = "Full Refund"
	reasonPartialRefund = "Partial Refund"
)

// Service reconciles refunds against sale transactions: money back to the
// customer, units back to the shelf, both or neither.
type Service interface {
	// RefundItems refunds specific line quantities of a transaction.
	RefundItems(ctx context.Context, input RefundInput) (*Result, error)
	// RefundTransaction refunds every remaining unit of every line.
	RefundTransaction(ctx context.Context, transactionID uuid.UUID, userID *uuid.UUID) (*Result, error)
}

// RefundInput captures a refund request for one transaction.
type RefundInput struct {
	TransactionID uuid.UUID
	UserID        *uuid.UUID
	Items         []ItemInput
	// OccurredAt is the logical event time of the refund. Zero means now.
	OccurredAt time.Time
}

// ItemInput is one line of a refund request.
type ItemInput struct {
	ItemID   uuid.UUID
	Quantity int
}

// Result reports what a refund changed.
type Result struct {
	Transaction    *models.SaleTransaction
	Movements      []*models.StockMovement
	RefundedAmount decimal.Decimal
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    *Repository
	ledger  ledger.Service
	tx      txRunner
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

// NewService wires the refund reconciler with its dependencies.
func NewService(repo *Repository, ledgerSvc ledger.Service, tx txRunner, ledgerMetrics *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, ledger: ledgerSvc, tx: tx, metrics: ledgerMetrics, logg: logg}, nil
}

func (s *service) RefundItems(ctx context.Context, input RefundInput) (*Result, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return s.run(ctx, input.TransactionID, func(transaction *models.SaleTransaction) ([]ItemInput, error) {
		return input.Items, nil
	}, input.UserID, input.OccurredAt)
}

func (s *service) RefundTransaction(ctx context.Context, transactionID uuid.UUID, userID *uuid.UUID) (*Result, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	return s.run(ctx, transactionID, func(transaction *models.SaleTransaction) ([]ItemInput, error) {
		items := make([]ItemInput, 0, len(transaction.Items))
		for _, item := range transaction.Items {
			if remaining := item.RefundableQuantity(); remaining > 0 {
				items = append(items, ItemInput{ItemID: item.ID, Quantity: remaining})
			}
		}
		if len(items) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeRefundExceeded, "nothing left to refund")
		}
		return items, nil
	}, userID, time.Time{})
}

// run executes the refund inside its own transaction, retrying when a racing
// stock writer invalidates the counter swap.
func (s *service) run(ctx context.Context, transactionID uuid.UUID, pick func(*models.SaleTransaction) ([]ItemInput, error), userID *uuid.UUID, occurredAt time.Time) (*Result, error) {
	var result *Result
	backoff := retry.WithMaxRetries(refundMaxRetries, retry.NewExponential(refundBackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			applied, err := s.apply(ctx, tx, transactionID, pick, userID, occurredAt)
			if err != nil {
				return err
			}
			result = applied
			return nil
		})
		if pkgerrors.IsCode(txErr, pkgerrors.CodeConflict) {
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefund()
	logCtx := s.logg.WithTransactionID(ctx, transactionID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"refunded_amount": result.RefundedAmount.String(),
		"status":          result.Transaction.Status,
	})
	s.logg.Info(logCtx, "refund applied")

	return result, nil
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, pick func(*models.SaleTransaction) ([]ItemInput, error), userID *uuid.UUID, occurredAt time.Time) (*Result, error) {
	repo := s.repo.WithTx(tx)

	transaction, err := repo.FindTransactionWithItems(ctx, transactionID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading transaction")
	}

	if !transaction.Status.Refundable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("transaction in status %q cannot be refunded", transaction.Status)).
			WithDetails(map[string]any{"status": transaction.Status})
	}

	requested, err := pick(transaction)
	if err != nil {
		return nil, err
	}

	itemsByID := make(map[uuid.UUID]*models.SaleItem, len(transaction.Items))
	for i := range transaction.Items {
		itemsByID[transaction.Items[i].ID] = &transaction.Items[i]
	}

	// Validate every line before touching anything.
	for _, req := range requested {
		item, ok := itemsByID[req.ItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %s does not belong to transaction", req.ItemID))
		}
		if remaining := item.RefundableQuantity(); req.Quantity > remaining {
			return nil, pkgerrors.New(pkgerrors.CodeRefundExceeded,
				"requested quantity exceeds refundable quantity").
				WithDetails(map[string]any{
					"item_id":    req.ItemID,
					"requested":  req.Quantity,
					"refundable": remaining,
				})
		}
	}

	reason := refundReason(transaction, requested)
	now := occurredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var movements []*models.StockMovement
	amount := decimal.Zero
	for _, req := range requested {
		item := itemsByID[req.ItemID]

		if item.VariantID != nil {
			movement, err := s.ledger.Record(ctx, tx, ledger.MovementInput{
				VariantID:   *item.VariantID,
				Type:        enums.MovementTypeReturn,
				Quantity:    req.Quantity,
				Reason:      reason,
				ReferenceID: &transaction.ID,
				UserID:      userID,
				OccurredAt:  now,
			})
			if err != nil {
				return nil, err
			}
			movements = append(movements, movement)
		}

		item.RefundedQuantity += req.Quantity
		item.RefundedAt = &now
		if err := repo.SaveItemRefund(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving item refund")
		}

		amount = amount.Add(item.UnitRefundValue().Mul(decimal.NewFromInt(int64(req.Quantity))))
	}

	transaction.RefundedAmount = transaction.RefundedAmount.Add(amount)
	transaction.Status = enums.SaleStatusPartiallyRefunded
	if fullyRefunded(transaction) {
		transaction.Status = enums.SaleStatusRefunded
	}
	if err := repo.SaveTransactionRefund(ctx, transaction); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving transaction refund")
	}

	return &Result{
		Transaction:    transaction,
		Movements:      movements,
		RefundedAmount: amount,
	}, nil
}

// refundReason labels the return movements. A call that clears every remaining
// unit of every line is a full refund even when earlier partial refunds exist.
func refundReason(transaction *models.SaleTransaction, requested []ItemInput) string {
	requestedByID := make(map[uuid.UUID]int, len(requested))
	for _, req := range requested {
		requestedByID[req.ItemID] += req.Quantity
	}
	for _, item := range transaction.Items {
		if item.RefundableQuantity() != requestedByID[item.ID] {
			return reasonPartialRefund
		}
	}
	return reasonFullRefund
}

func fullyRefunded(transaction *models.SaleTransaction) bool {
	for _, item := range transaction.Items {
		if item.RefundableQuantity() > 0 {
			return false
		}
	}
	return true
}

func validateInput(input RefundInput) error {
	if input.TransactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[uuid.UUID]bool, len(input.Items))
	for _, item := range input.Items {
		if item.ItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund quantity must be positive").
				WithDetails(map[string]any{"item_id": item.ItemID, "quantity": item.Quantity})
		}
		if seen[item.ItemID] {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %s listed more than once", item.ItemID))
		}
		seen[item.ItemID] = true
	}
	return nil
}
