package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/calebreyes/stockpilot-backend/internal/audit"
	"github.com/calebreyes/stockpilot-backend/internal/ledger"
	"github.com/calebreyes/stockpilot-backend/internal/refunds"
	"github.com/calebreyes/stockpilot-backend/internal/seeder"
	"github.com/calebreyes/stockpilot-backend/pkg/config"
	"github.com/calebreyes/stockpilot-backend/pkg/db"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
	"github.com/calebreyes/stockpilot-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "seed"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, nil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	refundsService, err := refunds.NewService(refunds.NewRepository(dbClient.DB()), ledgerService, dbClient, nil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}
	auditService, err := audit.NewService(audit.NewRepository(dbClient.DB()), nil, logg, cfg.Audit.ChunkSize)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	s, err := seeder.New(seeder.Params{
		DB:      dbClient.DB(),
		Ledger:  ledgerService,
		Refunds: refundsService,
		Audit:   auditService,
		Logger:  logg,
		Config:  cfg.Seed,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create seeder", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"variants": cfg.Seed.Variants,
		"days":     cfg.Seed.DaysOfHistory,
	})
	logg.Info(ctx, "starting seed run")

	report, err := s.Run(ctx)
	if err != nil {
		logg.Error(ctx, "seed run finished with errors", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"variants_seeded":  report.VariantsSeeded,
		"movements":        report.MovementsRecorded,
		"sales":            report.SalesCreated,
		"refunds":          report.RefundsIssued,
		"variants_checked": report.Sweep.VariantsChecked,
	})
	logg.Info(ctx, "seed run complete")
}
