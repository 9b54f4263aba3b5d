package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/internal/ledger"
	"github.com/calebreyes/stockpilot-backend/internal/movements"
	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	"github.com/calebreyes/stockpilot-backend/pkg/enums"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
	"github.com/calebreyes/stockpilot-backend/pkg/pagination"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

type testLedgerService struct {
	recordMovementFn func(ctx context.Context, input ledger.MovementInput) (*models.StockMovement, error)
}

func (s *testLedgerService) RecordMovement(ctx context.Context, input ledger.MovementInput) (*models.StockMovement, error) {
	if s.recordMovementFn != nil {
		return s.recordMovementFn(ctx, input)
	}
	return nil, nil
}

func (s *testLedgerService) Record(ctx context.Context, tx *gorm.DB, input ledger.MovementInput) (*models.StockMovement, error) {
	return nil, nil
}

type testMovementsService struct {
	listFn         func(ctx context.Context, filters movements.Filters, params pagination.Params) (*movements.Page, error)
	recentFn       func(ctx context.Context, limit int) ([]movements.Record, error)
	restockStatsFn func(ctx context.Context, variantID *uuid.UUID) (*movements.RestockStats, error)
}

func (s *testMovementsService) List(ctx context.Context, filters movements.Filters, params pagination.Params) (*movements.Page, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filters, params)
	}
	return &movements.Page{}, nil
}

func (s *testMovementsService) Recent(ctx context.Context, limit int) ([]movements.Record, error) {
	if s.recentFn != nil {
		return s.recentFn(ctx, limit)
	}
	return nil, nil
}

func (s *testMovementsService) RestockStats(ctx context.Context, variantID *uuid.UUID) (*movements.RestockStats, error) {
	if s.restockStatsFn != nil {
		return s.restockStatsFn(ctx, variantID)
	}
	return &movements.RestockStats{}, nil
}

func TestRecordMovementSuccess(t *testing.T) {
	variantID := uuid.New()
	var captured ledger.MovementInput
	svc := &testLedgerService{
		recordMovementFn: func(ctx context.Context, input ledger.MovementInput) (*models.StockMovement, error) {
			captured = input
			return &models.StockMovement{
				VariantID:     input.VariantID,
				Type:          input.Type,
				Quantity:      input.Quantity,
				PreviousStock: 0,
				NewStock:      input.Quantity,
				Reason:        input.Reason,
			}, nil
		},
	}

	body := `{"variant_id":"` + variantID.String() + `","type":"restock","quantity":10,"reason":"Initial Stock"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", strings.NewReader(body))
	resp := httptest.NewRecorder()
	RecordMovement(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.VariantID != variantID {
		t.Fatalf("unexpected variant id %s", captured.VariantID)
	}
	if captured.Type != enums.MovementTypeRestock {
		t.Fatalf("unexpected type %s", captured.Type)
	}
	if captured.Quantity != 10 {
		t.Fatalf("unexpected quantity %d", captured.Quantity)
	}
	if !captured.OccurredAt.IsZero() {
		t.Fatal("occurred_at should stay zero when omitted")
	}
}

func TestRecordMovementParsesOptionalFields(t *testing.T) {
	variantID := uuid.New()
	referenceID := uuid.New()
	var captured ledger.MovementInput
	svc := &testLedgerService{
		recordMovementFn: func(ctx context.Context, input ledger.MovementInput) (*models.StockMovement, error) {
			captured = input
			return &models.StockMovement{}, nil
		},
	}

	body := `{"variant_id":"` + variantID.String() + `","type":"sale","quantity":-2,"reason":"Sale",` +
		`"reference_id":"` + referenceID.String() + `","occurred_at":"2026-08-01T12:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", strings.NewReader(body))
	resp := httptest.NewRecorder()
	RecordMovement(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.ReferenceID == nil || *captured.ReferenceID != referenceID {
		t.Fatal("reference id not threaded through")
	}
	if captured.OccurredAt.IsZero() {
		t.Fatal("occurred_at not parsed")
	}
}

func TestRecordMovementRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid type", `{"variant_id":"` + uuid.NewString() + `","type":"teleport","quantity":1,"reason":"x"}`},
		{"missing reason", `{"variant_id":"` + uuid.NewString() + `","type":"restock","quantity":1}`},
		{"bad variant id", `{"variant_id":"nope","type":"restock","quantity":1,"reason":"x"}`},
		{"unknown field", `{"variant_id":"` + uuid.NewString() + `","type":"restock","quantity":1,"reason":"x","extra":true}`},
		{"bad timestamp", `{"variant_id":"` + uuid.NewString() + `","type":"restock","quantity":1,"reason":"x","occurred_at":"yesterday"}`},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", strings.NewReader(tt.body))
		resp := httptest.NewRecorder()
		RecordMovement(&testLedgerService{}, testLogger())(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", tt.name, resp.Code)
		}
	}
}

func TestRecordMovementMapsInsufficientStock(t *testing.T) {
	svc := &testLedgerService{
		recordMovementFn: func(ctx context.Context, input ledger.MovementInput) (*models.StockMovement, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "stock would go negative")
		},
	}

	body := `{"variant_id":"` + uuid.NewString() + `","type":"sale","quantity":-5,"reason":"Sale"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", strings.NewReader(body))
	resp := httptest.NewRecorder()
	RecordMovement(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestListMovementsThreadsFilters(t *testing.T) {
	variantID := uuid.New()
	var captured movements.Filters
	var capturedParams pagination.Params
	svc := &testMovementsService{
		listFn: func(ctx context.Context, filters movements.Filters, params pagination.Params) (*movements.Page, error) {
			captured = filters
			capturedParams = params
			return &movements.Page{}, nil
		},
	}

	url := "/api/v1/inventory/movements?type=sale&variant_id=" + variantID.String() +
		"&from=2026-08-01T00:00:00Z&to=2026-08-31T00:00:00Z&q=roast&limit=10"
	resp := httptest.NewRecorder()
	ListMovements(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, url, nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Type == nil || *captured.Type != enums.MovementTypeSale {
		t.Fatal("type filter not threaded")
	}
	if captured.VariantID == nil || *captured.VariantID != variantID {
		t.Fatal("variant filter not threaded")
	}
	if captured.From == nil || captured.To == nil {
		t.Fatal("time window not threaded")
	}
	if captured.Query != "roast" {
		t.Fatalf("unexpected query %q", captured.Query)
	}
	if capturedParams.Limit != 10 {
		t.Fatalf("unexpected limit %d", capturedParams.Limit)
	}
}

func TestListMovementsRejectsBadQueryParams(t *testing.T) {
	tests := []string{
		"/api/v1/inventory/movements?type=teleport",
		"/api/v1/inventory/movements?variant_id=nope",
		"/api/v1/inventory/movements?from=yesterday",
		"/api/v1/inventory/movements?limit=0",
		"/api/v1/inventory/movements?limit=lots",
	}
	for _, url := range tests {
		resp := httptest.NewRecorder()
		ListMovements(&testMovementsService{}, testLogger())(resp, httptest.NewRequest(http.MethodGet, url, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", url, resp.Code)
		}
	}
}

func TestRecentMovementsUsesLimit(t *testing.T) {
	var captured int
	svc := &testMovementsService{
		recentFn: func(ctx context.Context, limit int) ([]movements.Record, error) {
			captured = limit
			return []movements.Record{}, nil
		},
	}

	resp := httptest.NewRecorder()
	RecentMovements(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/movements/recent?limit=5", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured != 5 {
		t.Fatalf("unexpected limit %d", captured)
	}
}

func TestRestockStatsScopesToVariant(t *testing.T) {
	variantID := uuid.New()
	var captured *uuid.UUID
	svc := &testMovementsService{
		restockStatsFn: func(ctx context.Context, id *uuid.UUID) (*movements.RestockStats, error) {
			captured = id
			return &movements.RestockStats{TotalQuantity: 36, RestockCount: 3, AverageSize: 12}, nil
		},
	}

	resp := httptest.NewRecorder()
	RestockStats(svc, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/restock-stats?variant_id="+variantID.String(), nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured == nil || *captured != variantID {
		t.Fatal("variant scope not threaded")
	}

	var envelope struct {
		Data movements.RestockStats `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if envelope.Data.TotalQuantity != 36 {
		t.Fatalf("unexpected total %d", envelope.Data.TotalQuantity)
	}
}
