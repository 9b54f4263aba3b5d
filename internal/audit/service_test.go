package audit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	"github.com/calebreyes/stockpilot-backend/pkg/enums"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
)

type testEnv struct {
	db      *gorm.DB
	service *service
}

func newTestEnv(t *testing.T, chunkSize int) *testEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:audit_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.ProductVariant{}, &models.StockMovement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(NewRepository(conn), nil, logg, chunkSize)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{db: conn, service: svc.(*service)}
}

func (e *testEnv) seedVariant(t *testing.T, stock int) *models.ProductVariant {
	t.Helper()
	product := &models.Product{ID: uuid.New(), Name: "Cold Brew"}
	if err := e.db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := &models.ProductVariant{
		ID:        uuid.New(),
		ProductID: product.ID,
		SKU:       "SKU-" + uuid.NewString()[:8],
		Stock:     stock,
	}
	if err := e.db.Create(variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}

type movementSpec struct {
	movementType enums.MovementType
	quantity     int
	previous     int
	at           time.Time
}

func (e *testEnv) seedMovements(t *testing.T, variantID uuid.UUID, specs ...movementSpec) {
	t.Helper()
	for _, spec := range specs {
		movement := &models.StockMovement{
			VariantID:     variantID,
			Type:          spec.movementType,
			Quantity:      spec.quantity,
			PreviousStock: spec.previous,
			NewStock:      spec.previous + spec.quantity,
			Reason:        "Seed",
			CreatedAt:     spec.at,
		}
		if err := e.db.Create(movement).Error; err != nil {
			t.Fatalf("seed movement: %v", err)
		}
	}
}

func TestAuditVariant_CleanJournal(t *testing.T) {
	env := newTestEnv(t, 0)
	variant := env.seedVariant(t, 12)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	env.seedMovements(t, variant.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 10, previous: 0, at: base},
		movementSpec{movementType: enums.MovementTypeSale, quantity: -3, previous: 10, at: base.Add(time.Hour)},
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 5, previous: 7, at: base.Add(2 * time.Hour)},
	)

	result, err := env.service.AuditVariant(context.Background(), variant.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if !result.Clean() {
		t.Fatalf("expected clean audit, got %+v", result)
	}
	if result.ExpectedStock != 12 || result.ActualStock != 12 || result.Drift != 0 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if result.MovementCount != 3 {
		t.Fatalf("expected 3 movements, got %d", result.MovementCount)
	}
}

func TestAuditVariant_DetectsDrift(t *testing.T) {
	env := newTestEnv(t, 0)
	variant := env.seedVariant(t, 15)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	env.seedMovements(t, variant.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 10, previous: 0, at: base},
		movementSpec{movementType: enums.MovementTypeSale, quantity: -3, previous: 10, at: base.Add(time.Hour)},
	)

	result, err := env.service.AuditVariant(context.Background(), variant.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if result.Clean() {
		t.Fatal("expected drift to be detected")
	}
	if result.ExpectedStock != 7 || result.ActualStock != 15 || result.Drift != 8 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if len(result.ChainBreaks) != 0 {
		t.Fatalf("expected no chain breaks, got %+v", result.ChainBreaks)
	}
}

func TestAuditVariant_DetectsChainBreak(t *testing.T) {
	env := newTestEnv(t, 0)
	variant := env.seedVariant(t, 9)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	env.seedMovements(t, variant.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 10, previous: 0, at: base},
		// snapshot lies about the prior balance
		movementSpec{movementType: enums.MovementTypeSale, quantity: -1, previous: 6, at: base.Add(time.Hour)},
	)

	result, err := env.service.AuditVariant(context.Background(), variant.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(result.ChainBreaks) != 1 {
		t.Fatalf("expected 1 chain break, got %+v", result.ChainBreaks)
	}
	breakInfo := result.ChainBreaks[0]
	if breakInfo.ExpectedPrevious != 10 || breakInfo.RecordedPrevious != 6 {
		t.Fatalf("unexpected chain break %+v", breakInfo)
	}
}

func TestAuditVariant_EmptyJournal(t *testing.T) {
	env := newTestEnv(t, 0)
	variant := env.seedVariant(t, 5)

	result, err := env.service.AuditVariant(context.Background(), variant.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if result.ExpectedStock != 0 || result.Drift != 5 {
		t.Fatalf("expected drift 5 against empty journal, got %+v", result)
	}
}

func TestAuditVariant_NotFound(t *testing.T) {
	env := newTestEnv(t, 0)
	if _, err := env.service.AuditVariant(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindStockouts_ClosedAndOpenWindows(t *testing.T) {
	env := newTestEnv(t, 0)
	variant := env.seedVariant(t, 0)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	env.seedMovements(t, variant.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 5, previous: 0, at: base},
		movementSpec{movementType: enums.MovementTypeSale, quantity: -5, previous: 5, at: base.Add(24 * time.Hour)},
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 3, previous: 0, at: base.Add(60 * time.Hour)},
		movementSpec{movementType: enums.MovementTypeSale, quantity: -3, previous: 3, at: base.Add(80 * time.Hour)},
	)

	stockouts, err := env.service.FindStockouts(context.Background(), variant.ID)
	if err != nil {
		t.Fatalf("find stockouts: %v", err)
	}
	if len(stockouts) != 2 {
		t.Fatalf("expected 2 stockouts, got %d", len(stockouts))
	}

	first := stockouts[0]
	if first.StillOutOfStock || first.NextRestockAt == nil {
		t.Fatalf("expected first stockout closed, got %+v", first)
	}
	if !first.NextRestockAt.Equal(base.Add(60 * time.Hour)) {
		t.Fatalf("unexpected restock time %s", first.NextRestockAt)
	}
	// 36 hours out of stock rounds up to 2 days
	if first.DaysOutOfStock == nil || *first.DaysOutOfStock != 2 {
		t.Fatalf("expected 2 day duration, got %v", first.DaysOutOfStock)
	}

	second := stockouts[1]
	if !second.StillOutOfStock || second.NextRestockAt != nil {
		t.Fatalf("expected open stockout, got %+v", second)
	}
	if second.DaysOutOfStock != nil {
		t.Fatalf("open stockout should have no day count, got %v", second.DaysOutOfStock)
	}
}

func TestFindStockouts_RepeatedZeroHitsBeforeOneRestock(t *testing.T) {
	env := newTestEnv(t, 0)
	variant := env.seedVariant(t, 10)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	env.seedMovements(t, variant.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 5, previous: 0, at: base},
		movementSpec{movementType: enums.MovementTypeSale, quantity: -5, previous: 5, at: base.Add(time.Hour)},
		movementSpec{movementType: enums.MovementTypeReturn, quantity: 2, previous: 0, at: base.Add(2 * time.Hour)},
		movementSpec{movementType: enums.MovementTypeSale, quantity: -2, previous: 2, at: base.Add(3 * time.Hour)},
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 10, previous: 0, at: base.Add(5 * time.Hour)},
	)

	stockouts, err := env.service.FindStockouts(context.Background(), variant.ID)
	if err != nil {
		t.Fatalf("find stockouts: %v", err)
	}
	if len(stockouts) != 2 {
		t.Fatalf("expected a period per zero hit, got %d", len(stockouts))
	}
	restockedAt := base.Add(5 * time.Hour)
	for i, period := range stockouts {
		if period.StillOutOfStock {
			t.Fatalf("period %d should be closed, got %+v", i, period)
		}
		if period.NextRestockAt == nil || !period.NextRestockAt.Equal(restockedAt) {
			t.Fatalf("period %d should close at the shared restock, got %v", i, period.NextRestockAt)
		}
	}
	if !stockouts[0].StockoutAt.Equal(base.Add(time.Hour)) || !stockouts[1].StockoutAt.Equal(base.Add(3*time.Hour)) {
		t.Fatalf("unexpected stockout starts %+v", stockouts)
	}
}

func TestFindStockouts_SameInstantOrderedBySerial(t *testing.T) {
	env := newTestEnv(t, 0)
	variant := env.seedVariant(t, 4)
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	env.seedMovements(t, variant.ID,
		movementSpec{movementType: enums.MovementTypeSale, quantity: -4, previous: 4, at: at},
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 4, previous: 0, at: at},
	)

	stockouts, err := env.service.FindStockouts(context.Background(), variant.ID)
	if err != nil {
		t.Fatalf("find stockouts: %v", err)
	}
	if len(stockouts) != 1 {
		t.Fatalf("expected 1 stockout, got %d", len(stockouts))
	}
	if stockouts[0].StillOutOfStock {
		t.Fatal("same-instant restock should close the window")
	}
	if stockouts[0].DaysOutOfStock == nil || *stockouts[0].DaysOutOfStock != 0 {
		t.Fatalf("expected zero day duration, got %v", stockouts[0].DaysOutOfStock)
	}
}

func TestFindStockouts_NoneWithoutZeroBalance(t *testing.T) {
	env := newTestEnv(t, 0)
	variant := env.seedVariant(t, 3)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	env.seedMovements(t, variant.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 5, previous: 0, at: base},
		movementSpec{movementType: enums.MovementTypeSale, quantity: -2, previous: 5, at: base.Add(time.Hour)},
	)

	stockouts, err := env.service.FindStockouts(context.Background(), variant.ID)
	if err != nil {
		t.Fatalf("find stockouts: %v", err)
	}
	if len(stockouts) != 0 {
		t.Fatalf("expected no stockouts, got %+v", stockouts)
	}
}

func TestSweep_ChunksAndReportsDrift(t *testing.T) {
	env := newTestEnv(t, 2)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	clean := env.seedVariant(t, 5)
	env.seedMovements(t, clean.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 5, previous: 0, at: base},
	)

	drifted := env.seedVariant(t, 9)
	env.seedMovements(t, drifted.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 5, previous: 0, at: base},
	)

	broken := env.seedVariant(t, 7)
	env.seedMovements(t, broken.ID,
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 5, previous: 0, at: base},
		movementSpec{movementType: enums.MovementTypeRestock, quantity: 2, previous: 3, at: base.Add(time.Hour)},
	)

	report, err := env.service.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.VariantsChecked != 3 {
		t.Fatalf("expected 3 variants checked, got %d", report.VariantsChecked)
	}
	if len(report.DriftedVariants) != 1 || report.DriftedVariants[0] != drifted.ID {
		t.Fatalf("unexpected drifted set %+v", report.DriftedVariants)
	}
	if report.ChainBreakCount != 1 {
		t.Fatalf("expected 1 chain break, got %d", report.ChainBreakCount)
	}
}
