package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/internal/audit"
	"github.com/calebreyes/stockpilot-backend/internal/ledger"
	"github.com/calebreyes/stockpilot-backend/internal/movements"
	"github.com/calebreyes/stockpilot-backend/internal/refunds"
	"github.com/calebreyes/stockpilot-backend/pkg/config"
	"github.com/calebreyes/stockpilot-backend/pkg/db"
	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
)

type memoryStore struct {
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:idempotency:%s:%s", scope, id)
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

type testRouter struct {
	handler http.Handler
	db      *gorm.DB
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:routes_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.ProductVariant{},
		&models.StockMovement{},
		&models.SaleTransaction{},
		&models.SaleItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := db.NewWithConn(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client, nil, logg)
	if err != nil {
		t.Fatalf("new ledger service: %v", err)
	}
	movementsSvc, err := movements.NewService(movements.NewRepository(conn), logg)
	if err != nil {
		t.Fatalf("new movements service: %v", err)
	}
	auditSvc, err := audit.NewService(audit.NewRepository(conn), nil, logg, 0)
	if err != nil {
		t.Fatalf("new audit service: %v", err)
	}
	refundsSvc, err := refunds.NewService(refunds.NewRepository(conn), ledgerSvc, client, nil, logg)
	if err != nil {
		t.Fatalf("new refunds service: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"

	handler := NewRouter(cfg, logg, client, nil, newMemoryStore(), ledgerSvc, movementsSvc, auditSvc, refundsSvc)
	return &testRouter{handler: handler, db: conn}
}

func (tr *testRouter) seedVariant(t *testing.T, stock int) *models.ProductVariant {
	t.Helper()
	product := &models.Product{ID: uuid.New(), Name: "House Blend"}
	if err := tr.db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant := &models.ProductVariant{
		ID:        uuid.New(),
		ProductID: product.ID,
		SKU:       "SKU-" + uuid.NewString()[:8],
		Stock:     stock,
	}
	if err := tr.db.Create(variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}

func TestHealthAndPingRoutes(t *testing.T) {
	tr := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready", "/api/public/ping"} {
		resp := httptest.NewRecorder()
		tr.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	tr := newTestRouter(t)
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRecordAndListMovements(t *testing.T) {
	tr := newTestRouter(t)
	variant := tr.seedVariant(t, 0)

	body := fmt.Sprintf(`{"variant_id":%q,"type":"restock","quantity":10,"reason":"Initial Stock"}`, variant.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Data models.StockMovement `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created movement: %v", err)
	}
	if created.Data.NewStock != 10 {
		t.Fatalf("expected new stock 10, got %d", created.Data.NewStock)
	}

	listResp := httptest.NewRecorder()
	tr.handler.ServeHTTP(listResp, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/movements?variant_id="+variant.ID.String(), nil))
	if listResp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", listResp.Code, listResp.Body.String())
	}
	var page struct {
		Data struct {
			Movements []json.RawMessage `json:"movements"`
		} `json:"data"`
	}
	if err := json.Unmarshal(listResp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Data.Movements) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(page.Data.Movements))
	}
}

func TestRecordMovementReplaysIdempotently(t *testing.T) {
	tr := newTestRouter(t)
	variant := tr.seedVariant(t, 0)

	body := fmt.Sprintf(`{"variant_id":%q,"type":"restock","quantity":5,"reason":"Initial Stock"}`, variant.ID)
	key := uuid.NewString()

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		resp := httptest.NewRecorder()
		tr.handler.ServeHTTP(resp, req)
		return resp
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", first.Code, first.Body.String())
	}
	second := send()
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}

	var count int64
	if err := tr.db.Model(&models.StockMovement{}).Count(&count).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if count != 1 {
		t.Fatalf("replay must not append a second movement, found %d", count)
	}
}

func TestRecordMovementRequiresIdempotencyKey(t *testing.T) {
	tr := newTestRouter(t)
	variant := tr.seedVariant(t, 0)

	body := fmt.Sprintf(`{"variant_id":%q,"type":"restock","quantity":5,"reason":"Initial Stock"}`, variant.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestVariantAuditRoute(t *testing.T) {
	tr := newTestRouter(t)
	variant := tr.seedVariant(t, 0)

	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/variants/"+variant.ID.String()+"/audit", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data audit.VariantAudit `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if envelope.Data.Drift != 0 {
		t.Fatalf("expected zero drift, got %d", envelope.Data.Drift)
	}
}

func TestRefundRouteRejectsUnknownTransaction(t *testing.T) {
	tr := newTestRouter(t)

	body := fmt.Sprintf(`{"items":[{"item_id":%q,"quantity":1}]}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/"+uuid.NewString()+"/refunds", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", resp.Code, resp.Body.String())
	}
}
