package seeder

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/internal/audit"
	"github.com/calebreyes/stockpilot-backend/internal/ledger"
	"github.com/calebreyes/stockpilot-backend/internal/refunds"
	"github.com/calebreyes/stockpilot-backend/pkg/config"
	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	"github.com/calebreyes/stockpilot-backend/pkg/enums"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
)

var productNames = []string{
	"Colombian Roast", "Kenyan AA", "Ethiopian Yirgacheffe", "House Blend",
	"Cold Brew Concentrate", "Decaf Sumatra", "Espresso Blend", "Guatemalan Antigua",
	"Breakfast Blend", "French Roast", "Costa Rican Tarrazu", "Peruvian Organic",
}

var skuSuffixes = []string{"250G", "500G", "1KG", "WHOLE", "GROUND"}

// Params wire the seeder. It is a plain caller of the public services: no
// privileged write path exists, so the generated history obeys every ledger
// rule the real traffic does.
type Params struct {
	DB      *gorm.DB
	Ledger  ledger.Service
	Refunds refunds.Service
	Audit   audit.Service
	Logger  *logger.Logger
	Config  config.SeedConfig
}

// Report summarizes one seeding run.
type Report struct {
	VariantsSeeded    int
	MovementsRecorded int
	SalesCreated      int
	RefundsIssued     int
	Sweep             *audit.SweepReport
}

// Seeder generates a synthetic movement history.
type Seeder struct {
	db      *gorm.DB
	ledger  ledger.Service
	refunds refunds.Service
	audit   audit.Service
	logg    *logger.Logger
	cfg     config.SeedConfig
	rng     *rand.Rand
	now     time.Time
}

// New builds a seeder. A zero RandSeed derives one from the clock.
func New(params Params) (*Seeder, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refunds service required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	if cfg.Variants <= 0 {
		cfg.Variants = 50
	}
	if cfg.DaysOfHistory <= 0 {
		cfg.DaysOfHistory = 90
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10
	}
	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Seeder{
		db:      params.DB,
		ledger:  params.Ledger,
		refunds: params.Refunds,
		audit:   params.Audit,
		logg:    params.Logger,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now().UTC(),
	}, nil
}

// Run seeds the catalog and replays a randomized history, one variant chunk at
// a time. A failed chunk is logged and skipped; committed chunks stay. The run
// finishes with a full audit sweep and fails when any drift is found.
func (s *Seeder) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	var errs error

	for chunkStart := 0; chunkStart < s.cfg.Variants; chunkStart += s.cfg.ChunkSize {
		chunkEnd := chunkStart + s.cfg.ChunkSize
		if chunkEnd > s.cfg.Variants {
			chunkEnd = s.cfg.Variants
		}

		if err := s.seedChunk(ctx, chunkStart, chunkEnd, report); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("chunk %d-%d: %w", chunkStart, chunkEnd, err))
			logCtx := s.logg.WithFields(ctx, map[string]any{"chunk_start": chunkStart, "chunk_end": chunkEnd})
			s.logg.Error(logCtx, "seed chunk failed; continuing", err)
		}
	}

	sweep, sweepErr := s.audit.Sweep(ctx)
	if sweepErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("final sweep: %w", sweepErr))
	}
	report.Sweep = sweep
	if sweep != nil && (len(sweep.DriftedVariants) > 0 || sweep.ChainBreakCount > 0) {
		errs = multierr.Append(errs, fmt.Errorf("seeded data failed audit: %d drifted, %d chain breaks",
			len(sweep.DriftedVariants), sweep.ChainBreakCount))
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"variants":  report.VariantsSeeded,
		"movements": report.MovementsRecorded,
		"sales":     report.SalesCreated,
		"refunds":   report.RefundsIssued,
	})
	s.logg.Info(logCtx, "seeding finished")

	return report, errs
}

func (s *Seeder) seedChunk(ctx context.Context, start, end int, report *Report) error {
	for i := start; i < end; i++ {
		variant, err := s.createVariant(ctx, i)
		if err != nil {
			return err
		}
		if err := s.seedHistory(ctx, variant, report); err != nil {
			return err
		}
		report.VariantsSeeded++
	}
	return nil
}

func (s *Seeder) createVariant(ctx context.Context, index int) (*models.ProductVariant, error) {
	name := productNames[index%len(productNames)]
	product := &models.Product{ID: uuid.New(), Name: name}
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	variant := &models.ProductVariant{
		ID:               uuid.New(),
		ProductID:        product.ID,
		SKU:              fmt.Sprintf("%s-%s-%03d", skuPrefix(name), skuSuffixes[index%len(skuSuffixes)], index),
		ReorderThreshold: 5 + s.rng.Intn(10),
	}
	if err := s.db.WithContext(ctx).Create(variant).Error; err != nil {
		return nil, fmt.Errorf("creating variant: %w", err)
	}
	return variant, nil
}

func (s *Seeder) seedHistory(ctx context.Context, variant *models.ProductVariant, report *Report) error {
	start := s.now.AddDate(0, 0, -s.cfg.DaysOfHistory)
	stock := 0

	initial := 40 + s.rng.Intn(80)
	if err := s.record(ctx, report, ledger.MovementInput{
		VariantID:  variant.ID,
		Type:       enums.MovementTypeRestock,
		Quantity:   initial,
		Reason:     "Initial Stock",
		OccurredAt: start,
	}, &stock); err != nil {
		return err
	}

	for day := 0; day < s.cfg.DaysOfHistory; day++ {
		at := start.AddDate(0, 0, day).Add(time.Duration(8+s.rng.Intn(10)) * time.Hour)

		sales := s.rng.Intn(3)
		for i := 0; i < sales; i++ {
			if err := s.seedSale(ctx, variant, at.Add(time.Duration(i)*time.Minute), &stock, report); err != nil {
				return err
			}
		}

		if s.rng.Intn(12) == 0 && stock > 0 {
			if err := s.record(ctx, report, ledger.MovementInput{
				VariantID:  variant.ID,
				Type:       enums.MovementTypeShrinkage,
				Quantity:   -1,
				Reason:     "Damaged In Storage",
				OccurredAt: at.Add(30 * time.Minute),
			}, &stock); err != nil {
				return err
			}
		}

		if s.rng.Intn(20) == 0 {
			delta := 1 + s.rng.Intn(3)
			if s.rng.Intn(2) == 0 && stock >= delta {
				delta = -delta
			}
			if delta != 0 {
				if err := s.record(ctx, report, ledger.MovementInput{
					VariantID:  variant.ID,
					Type:       enums.MovementTypeAdjustment,
					Quantity:   delta,
					Reason:     "Cycle Count Correction",
					OccurredAt: at.Add(45 * time.Minute),
				}, &stock); err != nil {
					return err
				}
			}
		}

		if stock <= variant.ReorderThreshold {
			if err := s.record(ctx, report, ledger.MovementInput{
				VariantID:  variant.ID,
				Type:       enums.MovementTypeRestock,
				Quantity:   30 + s.rng.Intn(40),
				Reason:     "Scheduled Restock",
				OccurredAt: at.Add(time.Hour),
			}, &stock); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Seeder) seedSale(ctx context.Context, variant *models.ProductVariant, at time.Time, stock *int, report *Report) error {
	quantity := 1 + s.rng.Intn(4)
	if quantity > *stock {
		quantity = *stock
	}
	if quantity <= 0 {
		return nil
	}

	price := decimal.NewFromInt(int64(5 + s.rng.Intn(20))).Add(decimal.NewFromFloat(0.99))
	transaction := &models.SaleTransaction{
		ID:             uuid.New(),
		Status:         enums.SaleStatusCompleted,
		TotalAmount:    price.Mul(decimal.NewFromInt(int64(quantity))),
		RefundedAmount: decimal.Zero,
	}
	if err := s.db.WithContext(ctx).Create(transaction).Error; err != nil {
		return fmt.Errorf("creating sale transaction: %w", err)
	}
	item := &models.SaleItem{
		ID:            uuid.New(),
		TransactionID: transaction.ID,
		VariantID:     &variant.ID,
		Quantity:      quantity,
		Price:         price,
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("creating sale item: %w", err)
	}
	report.SalesCreated++

	if err := s.record(ctx, report, ledger.MovementInput{
		VariantID:   variant.ID,
		Type:        enums.MovementTypeSale,
		Quantity:    -quantity,
		Reason:      "Sale",
		ReferenceID: &transaction.ID,
		OccurredAt:  at,
	}, stock); err != nil {
		return err
	}

	if s.rng.Intn(10) == 0 {
		refundQty := 1 + s.rng.Intn(quantity)
		if _, err := s.refunds.RefundItems(ctx, refunds.RefundInput{
			TransactionID: transaction.ID,
			Items:         []refunds.ItemInput{{ItemID: item.ID, Quantity: refundQty}},
			OccurredAt:    at.Add(10 * time.Second),
		}); err != nil {
			return fmt.Errorf("refunding sale: %w", err)
		}
		*stock += refundQty
		report.RefundsIssued++
		report.MovementsRecorded++
	}

	return nil
}

// record runs one movement through the public recorder and mirrors the
// resulting balance locally. An insufficient-stock rejection is logged and
// skipped, keeping the run going.
func (s *Seeder) record(ctx context.Context, report *Report, input ledger.MovementInput, stock *int) error {
	movement, err := s.ledger.RecordMovement(ctx, input)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			logCtx := s.logg.WithVariantID(ctx, input.VariantID.String())
			s.logg.Warn(logCtx, "skipping movement that would drive stock negative")
			return nil
		}
		return err
	}
	*stock = movement.NewStock
	report.MovementsRecorded++
	return nil
}

func skuPrefix(name string) string {
	prefix := ""
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			prefix += string(r)
		}
	}
	if prefix == "" {
		prefix = "SKU"
	}
	return prefix
}
