package storage

import (
	"context"
	"log/slog"
	"time"
)

// RetentionWorker trims the append-only operational logs: link check results
// and job run history. Rankings, pages, versions and alerts are kept.
type RetentionWorker struct {
	store   Store
	window  time.Duration
	period  time.Duration
	logger  *slog.Logger
	now     func() time.Time
	targets []purgeTarget
}

type purgeTarget struct {
	table string
	purge func(ctx context.Context, before time.Time) (int64, error)
}

// NewRetentionWorker purges rows older than retentionDays every period.
// A non-positive retentionDays disables purging.
func NewRetentionWorker(store Store, retentionDays int, period time.Duration, logger *slog.Logger) *RetentionWorker {
	return &RetentionWorker{
		store:  store,
		window: time.Duration(retentionDays) * 24 * time.Hour,
		period: period,
		logger: logger,
		now:    time.Now,
		targets: []purgeTarget{
			{"link_checks", store.PurgeOldLinkChecks},
			{"job_runs", store.PurgeOldJobRuns},
		},
	}
}

func (w *RetentionWorker) Run(ctx context.Context) {
	if w.window <= 0 || w.period <= 0 {
		w.logger.Info("retention disabled")
		return
	}
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	w.Purge(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Purge(ctx)
		}
	}
}

// Purge runs one pass over every target and returns the rows deleted per
// table. A failing table is logged and skipped.
func (w *RetentionWorker) Purge(ctx context.Context) map[string]int64 {
	before := w.now().Add(-w.window)
	deleted := make(map[string]int64, len(w.targets))
	for _, t := range w.targets {
		n, err := t.purge(ctx, before)
		if err != nil {
			w.logger.Error("retention purge failed", "table", t.table, "error", err)
			continue
		}
		deleted[t.table] = n
		if n > 0 {
			w.logger.Info("retention purge", "table", t.table, "deleted", n,
				"before", before.Format(time.RFC3339))
		}
	}
	return deleted
}
