package movements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	pkgerrors "github.com/calebreyes/stockpilot-backend/pkg/errors"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
	"github.com/calebreyes/stockpilot-backend/pkg/pagination"
)

// Service is the read facade over the movement journal.
type Service interface {
	// List returns one filtered page of the ledger, newest first.
	List(ctx context.Context, filters Filters, params pagination.Params) (*Page, error)
	// Recent returns the newest movements across all variants.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// RestockStats rolls up restock volume, optionally scoped to one variant.
	RestockStats(ctx context.Context, variantID *uuid.UUID) (*RestockStats, error)
}

// VariantSummary carries the catalog fields shown alongside a movement.
type VariantSummary struct {
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
}

// Record is one journal row enriched with its catalog context.
type Record struct {
	models.StockMovement
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
}

// Page is one cursor page of the ledger.
type Page struct {
	Movements  []Record `json:"movements"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

// RestockStats summarizes restock activity.
type RestockStats struct {
	TotalQuantity int64      `json:"total_quantity"`
	RestockCount  int64      `json:"restock_count"`
	AverageSize   float64    `json:"average_size"`
	LastRestockAt *time.Time `json:"last_restock_at,omitempty"`
}

type service struct {
	repo *Repository
	logg *logger.Logger
}

// NewService wires the read facade with its repository.
func NewService(repo *Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("movements repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) List(ctx context.Context, filters Filters, params pagination.Params) (*Page, error) {
	if filters.Type != nil && !filters.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement type %q", *filters.Type))
	}
	if filters.From != nil && filters.To != nil && filters.From.After(*filters.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListMovements(ctx, filters, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing movements")
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	records, err := s.enrich(ctx, rows)
	if err != nil {
		return nil, err
	}

	page := &Page{Movements: records, HasMore: hasMore}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.repo.ListMovements(ctx, Filters{}, nil, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing recent movements")
	}
	return s.enrich(ctx, rows)
}

func (s *service) RestockStats(ctx context.Context, variantID *uuid.UUID) (*RestockStats, error) {
	if variantID != nil && *variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id must not be empty")
	}

	total, count, last, err := s.repo.RestockAggregate(ctx, variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregating restocks")
	}

	stats := &RestockStats{
		TotalQuantity: total,
		RestockCount:  count,
		LastRestockAt: last,
	}
	if count > 0 {
		stats.AverageSize = float64(total) / float64(count)
	}
	return stats, nil
}

func (s *service) enrich(ctx context.Context, rows []models.StockMovement) ([]Record, error) {
	seen := make(map[uuid.UUID]bool, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if !seen[row.VariantID] {
			seen[row.VariantID] = true
			ids = append(ids, row.VariantID)
		}
	}

	summaries, err := s.repo.VariantSummaries(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading variant summaries")
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		summary := summaries[row.VariantID]
		records = append(records, Record{
			StockMovement: row,
			SKU:           summary.SKU,
			ProductName:   summary.ProductName,
		})
	}
	return records, nil
}
