package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calebreyes/stockpilot-backend/api/controllers"
	"github.com/calebreyes/stockpilot-backend/api/middleware"
	"github.com/calebreyes/stockpilot-backend/internal/audit"
	"github.com/calebreyes/stockpilot-backend/internal/ledger"
	"github.com/calebreyes/stockpilot-backend/internal/movements"
	"github.com/calebreyes/stockpilot-backend/internal/refunds"
	"github.com/calebreyes/stockpilot-backend/pkg/config"
	"github.com/calebreyes/stockpilot-backend/pkg/db"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
	pkgredis "github.com/calebreyes/stockpilot-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP pkgredis.Pinger,
	idempotencyStore pkgredis.IdempotencyStore,
	ledgerService ledger.Service,
	movementsService movements.Service,
	auditService audit.Service,
	refundsService refunds.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/movements", controllers.RecordMovement(ledgerService, logg))
			r.Get("/movements", controllers.ListMovements(movementsService, logg))
			r.Get("/movements/recent", controllers.RecentMovements(movementsService, logg))
			r.Get("/restock-stats", controllers.RestockStats(movementsService, logg))
			r.Get("/variants/{variantId}/audit", controllers.VariantAudit(auditService, logg))
			r.Get("/variants/{variantId}/stockouts", controllers.VariantStockouts(auditService, logg))
		})

		r.Post("/sales/{transactionId}/refunds", controllers.RefundItems(refundsService, logg))
		r.Post("/sales/{transactionId}/refunds/full", controllers.RefundTransaction(refundsService, logg))
	})

	return r
}
