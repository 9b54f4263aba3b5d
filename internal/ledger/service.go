package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	"github.com/calebreyes/stockpilot-backend/pkg/enums"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
	"github.com/calebreyes/stockpilot-backend/pkg/metrics"
)

const (
	casMaxRetries  = 3
	casBackoffBase = 10 * time.Millisecond
)

// Service records stock movements. Every stock change in the system flows
// through here: the journal row and the counter update always commit together.
type Service interface {
	// RecordMovement opens its own transaction and retries transparently when a
	// concurrent writer races the stock counter.
	RecordMovement(ctx context.Context, input MovementInput) (*models.StockMovement, error)
	// Record appends a movement inside the caller's transaction. A counter race
	// surfaces as a retryable conflict; the caller owns the retry.
	Record(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.StockMovement, error)
}

// MovementInput captures the immutable data a stock movement requires.
type MovementInput struct {
	VariantID   uuid.UUID
	Type        enums.MovementType
	Quantity    int
	Reason      string
	ReferenceID *uuid.UUID
	UserID      *uuid.UUID
	Notes       *string
	// OccurredAt is the logical event time. Zero means now. Backfilled or
	// simulated history passes an explicit timestamp.
	OccurredAt time.Time
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    *Repository
	tx      txRunner
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

// NewService wires the movement recorder with its dependencies.
func NewService(repo *Repository, tx txRunner, ledgerMetrics *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, metrics: ledgerMetrics, logg: logg}, nil
}

func (s *service) RecordMovement(ctx context.Context, input MovementInput) (*models.StockMovement, error) {
	if err := validateInput(input); err != nil {
		s.metrics.IncRejection(string(pkgerrors.CodeValidation))
		return nil, err
	}

	var movement *models.StockMovement
	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewExponential(casBackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			recorded, err := s.record(ctx, tx, input)
			if err != nil {
				return err
			}
			movement = recorded
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
	return movement, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.StockMovement, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger: nil transaction")
	}
	if err := validateInput(input); err != nil {
		s.metrics.IncRejection(string(pkgerrors.CodeValidation))
		return nil, err
	}
	return s.record(ctx, tx, input)
}

func (s *service) record(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.StockMovement, error) {
	repo := s.repo.WithTx(tx)

	variant, err := repo.FindVariant(ctx, input.VariantID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncRejection(string(pkgerrors.CodeNotFound))
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading variant")
	}

	newStock := variant.Stock + input.Quantity
	if newStock < 0 {
		s.metrics.IncRejection(string(pkgerrors.CodeInsufficientStock))
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "movement would drive stock negative").
			WithDetails(map[string]any{
				"variant_id": input.VariantID,
				"available":  variant.Stock,
				"requested":  input.Quantity,
			})
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var restockedAt *time.Time
	if input.Type == enums.MovementTypeRestock {
		restockedAt = &occurredAt
	}

	updated, err := repo.UpdateStockGuarded(ctx, variant.ID, variant.Stock, newStock, restockedAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating stock counter")
	}
	if !updated {
		s.metrics.IncRejection(string(pkgerrors.CodeConflict))
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "stock counter changed concurrently")
	}

	movement := &models.StockMovement{
		VariantID:     variant.ID,
		Type:          input.Type,
		Quantity:      input.Quantity,
		PreviousStock: variant.Stock,
		NewStock:      newStock,
		Reason:        input.Reason,
		ReferenceID:   input.ReferenceID,
		UserID:        input.UserID,
		Notes:         input.Notes,
		CreatedAt:     occurredAt,
	}
	if err := repo.CreateMovement(ctx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending stock movement")
	}

	s.metrics.IncMovement(string(input.Type))

	if variant.ReorderThreshold > 0 && newStock <= variant.ReorderThreshold {
		logCtx := s.logg.WithVariantID(ctx, variant.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"sku":               variant.SKU,
			"stock":             newStock,
			"reorder_threshold": variant.ReorderThreshold,
		})
		s.logg.Warn(logCtx, "variant at or below reorder threshold")
	}

	return movement, nil
}

func validateInput(input MovementInput) error {
	if input.VariantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement type %q", input.Type))
	}
	if strings.TrimSpace(input.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if !input.Type.AllowsQuantity(input.Quantity) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity %d is not valid for movement type %q", input.Quantity, input.Type)).
			WithDetails(map[string]any{
				"type":     input.Type,
				"quantity": input.Quantity,
			})
	}
	return nil
}
