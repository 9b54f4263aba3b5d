package ledger

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/pkg/db"
	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	"github.com/calebreyes/stockpilot-backend/pkg/enums"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
)

type testEnv struct {
	db      *gorm.DB
	client  *db.Client
	service Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:ledger_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.ProductVariant{}, &models.StockMovement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := db.NewWithConn(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	service, err := NewService(NewRepository(conn), client, nil, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{db: conn, client: client, service: service}
}

func (e *testEnv) seedVariant(t *testing.T, stock int) *models.ProductVariant {
	t.Helper()
	product := &models.Product{ID: uuid.New(), Name: "Espresso Beans"}
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

func (e *testEnv) movementCount(t *testing.T, variantID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&models.StockMovement{}).Where("variant_id = ?", variantID).Count(&count).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	return count
}

func (e *testEnv) reloadVariant(t *testing.T, id uuid.UUID) *models.ProductVariant {
	t.Helper()
	var variant models.ProductVariant
	if err := e.db.First(&variant, "id = ?", id).Error; err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	return &variant
}

func TestRecordMovement_AppendsJournalAndUpdatesCounter(t *testing.T) {
	env := newTestEnv(t)
	variant := env.seedVariant(t, 0)

	movement, err := env.service.RecordMovement(context.Background(), MovementInput{
		VariantID: variant.ID,
		Type:      enums.MovementTypeRestock,
		Quantity:  10,
		Reason:    "Initial Stock",
	})
	if err != nil {
		t.Fatalf("record restock: %v", err)
	}

	if movement.ID == 0 {
		t.Fatal("expected journal row to receive a serial id")
	}
	if movement.PreviousStock != 0 || movement.NewStock != 10 {
		t.Fatalf("unexpected snapshot: previous=%d new=%d", movement.PreviousStock, movement.NewStock)
	}
	if !movement.Balanced() {
		t.Fatal("movement does not balance")
	}

	reloaded := env.reloadVariant(t, variant.ID)
	if reloaded.Stock != 10 {
		t.Fatalf("expected stock 10, got %d", reloaded.Stock)
	}
	if reloaded.LastRestockedAt == nil {
		t.Fatal("expected last_restocked_at to be set by restock")
	}
}

func TestRecordMovement_SaleDecrementsStock(t *testing.T) {
	env := newTestEnv(t)
	variant := env.seedVariant(t, 8)
	ref := uuid.New()

	movement, err := env.service.RecordMovement(context.Background(), MovementInput{
		VariantID:   variant.ID,
		Type:        enums.MovementTypeSale,
		Quantity:    -3,
		Reason:      "Sale",
		ReferenceID: &ref,
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if movement.PreviousStock != 8 || movement.NewStock != 5 {
		t.Fatalf("unexpected snapshot: previous=%d new=%d", movement.PreviousStock, movement.NewStock)
	}
	if movement.ReferenceID == nil || *movement.ReferenceID != ref {
		t.Fatal("expected reference id to be preserved")
	}

	reloaded := env.reloadVariant(t, variant.ID)
	if reloaded.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", reloaded.Stock)
	}
	if reloaded.LastRestockedAt != nil {
		t.Fatal("sale must not touch last_restocked_at")
	}
}

func TestRecordMovement_InsufficientStockRejectsAtomically(t *testing.T) {
	env := newTestEnv(t)
	variant := env.seedVariant(t, 3)

	_, err := env.service.RecordMovement(context.Background(), MovementInput{
		VariantID: variant.ID,
		Type:      enums.MovementTypeSale,
		Quantity:  -5,
		Reason:    "Sale",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	if count := env.movementCount(t, variant.ID); count != 0 {
		t.Fatalf("expected no journal rows after rejection, got %d", count)
	}
	if reloaded := env.reloadVariant(t, variant.ID); reloaded.Stock != 3 {
		t.Fatalf("expected stock unchanged at 3, got %d", reloaded.Stock)
	}
}

func TestRecordMovement_SignPolicy(t *testing.T) {
	env := newTestEnv(t)
	variant := env.seedVariant(t, 10)

	cases := []struct {
		name     string
		movement enums.MovementType
		quantity int
	}{
		{name: "negative restock", movement: enums.MovementTypeRestock, quantity: -1},
		{name: "positive sale", movement: enums.MovementTypeSale, quantity: 4},
		{name: "positive shrinkage", movement: enums.MovementTypeShrinkage, quantity: 2},
		{name: "negative return", movement: enums.MovementTypeReturn, quantity: -2},
		{name: "zero adjustment", movement: enums.MovementTypeAdjustment, quantity: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.service.RecordMovement(context.Background(), MovementInput{
				VariantID: variant.ID,
				Type:      tc.movement,
				Quantity:  tc.quantity,
				Reason:    "Manual Adjustment",
			})
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if count := env.movementCount(t, variant.ID); count != 0 {
		t.Fatalf("expected no journal rows, got %d", count)
	}
}

func TestRecordMovement_NegativeAdjustmentAllowed(t *testing.T) {
	env := newTestEnv(t)
	variant := env.seedVariant(t, 10)

	movement, err := env.service.RecordMovement(context.Background(), MovementInput{
		VariantID: variant.ID,
		Type:      enums.MovementTypeAdjustment,
		Quantity:  -4,
		Reason:    "Cycle Count Correction",
	})
	if err != nil {
		t.Fatalf("record adjustment: %v", err)
	}
	if movement.NewStock != 6 {
		t.Fatalf("expected new stock 6, got %d", movement.NewStock)
	}
}

func TestRecordMovement_MissingReason(t *testing.T) {
	env := newTestEnv(t)
	variant := env.seedVariant(t, 10)

	_, err := env.service.RecordMovement(context.Background(), MovementInput{
		VariantID: variant.ID,
		Type:      enums.MovementTypeRestock,
		Quantity:  5,
		Reason:    "   ",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordMovement_VariantNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.RecordMovement(context.Background(), MovementInput{
		VariantID: uuid.New(),
		Type:      enums.MovementTypeRestock,
		Quantity:  5,
		Reason:    "Restock",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestRecord_RollsBackWithCallerTransaction(t *testing.T) {
	env := newTestEnv(t)
	variant := env.seedVariant(t, 5)

	err := env.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := env.service.Record(context.Background(), tx, MovementInput{
			VariantID: variant.ID,
			Type:      enums.MovementTypeSale,
			Quantity:  -2,
			Reason:    "Sale",
		}); err != nil {
			return err
		}
		return errors.New("caller failed after recording")
	})
	if err == nil {
		t.Fatal("expected transaction error")
	}

	if count := env.movementCount(t, variant.ID); count != 0 {
		t.Fatalf("expected journal row rolled back, got %d rows", count)
	}
	if reloaded := env.reloadVariant(t, variant.ID); reloaded.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", reloaded.Stock)
	}
}

func TestRecordMovement_HonorsExplicitEventTime(t *testing.T) {
	env := newTestEnv(t)
	variant := env.seedVariant(t, 0)
	eventTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	movement, err := env.service.RecordMovement(context.Background(), MovementInput{
		VariantID:  variant.ID,
		Type:       enums.MovementTypeRestock,
		Quantity:   20,
		Reason:     "Backfilled Delivery",
		OccurredAt: eventTime,
	})
	if err != nil {
		t.Fatalf("record movement: %v", err)
	}
	if !movement.CreatedAt.Equal(eventTime) {
		t.Fatalf("expected created_at %s, got %s", eventTime, movement.CreatedAt)
	}

	reloaded := env.reloadVariant(t, variant.ID)
	if reloaded.LastRestockedAt == nil || !reloaded.LastRestockedAt.Equal(eventTime) {
		t.Fatalf("expected last_restocked_at %s, got %v", eventTime, reloaded.LastRestockedAt)
	}
}
