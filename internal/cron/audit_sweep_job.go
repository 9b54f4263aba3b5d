package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/calebreyes/stockpilot-backend/internal/audit"
	"github.com/calebreyes/stockpilot-backend/pkg/logger"
	pkgredis "github.com/calebreyes/stockpilot-backend/pkg/redis"
)

// AuditSweepJobName identifies the sweep in logs and metrics.
const AuditSweepJobName = "audit-sweep"

// Daily run counters outlive the day they count by one, so a dashboard can
// still compare yesterday against today.
const sweepRunCounterTTL = 48 * time.Hour

// AuditSweepJob periodically replays every variant's journal against the
// stored counter. A run that finds drift still succeeds; drift is reported,
// not repaired.
type AuditSweepJob struct {
	audit   audit.Service
	counter pkgredis.Counter
	logg    *logger.Logger
}

// NewAuditSweepJob wires the sweep job. The counter is optional; without it
// runs are still logged, just not tallied in Redis.
func NewAuditSweepJob(auditSvc audit.Service, counter pkgredis.Counter, logg *logger.Logger) (*AuditSweepJob, error) {
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &AuditSweepJob{audit: auditSvc, counter: counter, logg: logg}, nil
}

// Name implements Job.
func (j *AuditSweepJob) Name() string {
	return AuditSweepJobName
}

// Run implements Job.
func (j *AuditSweepJob) Run(ctx context.Context) error {
	report, err := j.audit.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("audit sweep: %w", err)
	}

	if run, countErr := j.countRun(ctx); countErr != nil {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{"error": countErr.Error()}), "sweep run counter unavailable")
	} else if run > 0 {
		ctx = j.logg.WithFields(ctx, map[string]any{"run_of_day": run})
	}

	if len(report.DriftedVariants) > 0 || report.ChainBreakCount > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"variants_checked": report.VariantsChecked,
			"drifted":          len(report.DriftedVariants),
			"chain_breaks":     report.ChainBreakCount,
		})
		j.logg.Warn(logCtx, "audit sweep found ledger inconsistencies")
	}
	return nil
}

func (j *AuditSweepJob) countRun(ctx context.Context) (int64, error) {
	if j.counter == nil {
		return 0, nil
	}
	key := j.counter.CounterKey(AuditSweepJobName + ":runs:" + time.Now().UTC().Format("2006-01-02"))
	return j.counter.IncrWithTTL(ctx, key, sweepRunCounterTTL)
}
