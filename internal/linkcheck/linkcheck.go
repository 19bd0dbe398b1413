// Package linkcheck audits the outbound links embedded in published pages.
package linkcheck

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/y0f/rankwatch/internal/alert"
	"github.com/y0f/rankwatch/internal/content"
	"github.com/y0f/rankwatch/internal/metrics"
	"github.com/y0f/rankwatch/internal/storage"
)

// Alerter creates alerts. *alert.Manager satisfies it.
type Alerter interface {
	CreateAlert(ctx context.Context, alertType, severity, title string, message *string, metadata any) *storage.Alert
}

type Options struct {
	// CriticalAt is the broken count at which the run's alert is critical.
	CriticalAt int
}

// Report summarises one link-health run.
type Report struct {
	RunID   string   `json:"run_id"`
	Pages   int      `json:"pages"`
	Checked int      `json:"checked"`
	Broken  int      `json:"broken"`
	Errors  []string `json:"errors"`
}

type Auditor struct {
	store   storage.Store
	prober  Prober
	alerts  Alerter
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options
}

func NewAuditor(store storage.Store, prober Prober, alerts Alerter, m *metrics.Metrics, logger *slog.Logger, opts Options) *Auditor {
	if opts.CriticalAt <= 0 {
		opts.CriticalAt = alert.BrokenLinkCriticalThreshold
	}
	return &Auditor{store: store, prober: prober, alerts: alerts, metrics: m, logger: logger, opts: opts}
}

// RunLinkHealthCheck probes every link on every published page and returns
// the number of broken links found.
func (a *Auditor) RunLinkHealthCheck(ctx context.Context) (int, error) {
	rep, err := a.Run(ctx)
	if err != nil {
		return 0, err
	}
	return rep.Broken, nil
}

// Run is RunLinkHealthCheck with the full report.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	rep := &Report{RunID: uuid.NewString(), Errors: []string{}}
	log := a.logger.With("run_id", rep.RunID, "job", storage.JobLinkHealth)

	pages, err := a.store.ListPublishedPages(ctx)
	if err != nil {
		err = fmt.Errorf("load published pages: %w", err)
		a.finish(ctx, started, rep, err)
		return nil, err
	}
	rep.Pages = len(pages)
	log.Info("link health check started", "pages", len(pages))

	for _, p := range pages {
		if ctx.Err() != nil {
			break
		}
		checks, err := a.checkPage(ctx, rep.RunID, p)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %s", p.Slug, err))
			log.Warn("page skipped", "slug", p.Slug, "error", err)
			continue
		}
		if err := a.store.InsertLinkChecks(ctx, checks); err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: store results: %s", p.Slug, err))
			log.Error("store link checks", "slug", p.Slug, "error", err)
		}
		rep.Checked += len(checks)
		for _, c := range checks {
			if c.IsBroken {
				rep.Broken++
			}
		}
	}

	if rep.Broken > 0 {
		a.raiseBrokenLinkAlert(ctx, rep)
	}

	a.finish(ctx, started, rep, ctx.Err())
	log.Info("link health check finished", "checked", rep.Checked, "broken", rep.Broken,
		"duration", time.Since(started).Round(time.Millisecond))
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

// CheckPageLinks probes the links of a single page, stores the results under
// a fresh run id and returns them.
func (a *Auditor) CheckPageLinks(ctx context.Context, slug string) ([]*storage.LinkCheck, error) {
	p, err := a.store.GetPageBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	checks, err := a.checkPage(ctx, uuid.NewString(), p)
	if err != nil {
		return nil, err
	}
	if err := a.store.InsertLinkChecks(ctx, checks); err != nil {
		return nil, fmt.Errorf("store results: %w", err)
	}
	return checks, nil
}

// checkPage extracts the page's URLs and probes them one at a time. Probe
// failures are recorded as broken results, never returned.
func (a *Auditor) checkPage(ctx context.Context, runID string, p *storage.Page) ([]*storage.LinkCheck, error) {
	urls, err := content.ExtractURLsJSON(p.Content)
	if err != nil {
		return nil, err
	}

	checks := make([]*storage.LinkCheck, 0, len(urls))
	for _, u := range urls {
		res := a.prober.Probe(ctx, u)
		c := &storage.LinkCheck{
			RunID:      runID,
			SourceSlug: p.Slug,
			TargetURL:  u,
			StatusCode: res.StatusCode,
			IsBroken:   res.Broken(),
			CheckedAt:  time.Now().UTC(),
		}
		if res.Err != nil {
			c.Error = res.Err.Error()
		}
		a.metrics.LinkProbe(c.IsBroken)
		if c.IsBroken {
			a.logger.Debug("broken link", "slug", p.Slug, "url", u, "status", res.StatusCode, "error", c.Error)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func (a *Auditor) raiseBrokenLinkAlert(ctx context.Context, rep *Report) {
	if a.alerts == nil {
		return
	}
	msg := fmt.Sprintf("%d broken links found across %d published pages", rep.Broken, rep.Pages)
	a.alerts.CreateAlert(ctx, alert.TypeBrokenLink, alert.SeverityForCount(rep.Broken, a.opts.CriticalAt),
		"Broken links detected", &msg, map[string]any{
			"run_id":  rep.RunID,
			"broken":  rep.Broken,
			"checked": rep.Checked,
			"pages":   rep.Pages,
		})
}

func (a *Auditor) finish(ctx context.Context, started time.Time, rep *Report, fatal error) {
	a.metrics.ObserveRun(storage.JobLinkHealth, started, rep.Checked-rep.Broken, rep.Broken, fatal)
	if fatal == nil {
		a.metrics.SetBrokenLinks(rep.Broken)
	}

	errs := append([]string{}, rep.Errors...)
	if fatal != nil {
		errs = append(errs, fatal.Error())
	}
	run := &storage.JobRun{
		RunID:      rep.RunID,
		Job:        storage.JobLinkHealth,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Attempted:  rep.Checked,
		Succeeded:  rep.Checked - rep.Broken,
		Failed:     rep.Broken,
		Errors:     errs,
	}
	if err := a.store.InsertJobRun(context.WithoutCancel(ctx), run); err != nil {
		a.logger.Warn("record job run", "run_id", rep.RunID, "error", err)
	}
}
