// Package rankcheck runs the daily ranking sweep over every active keyword.
package rankcheck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/y0f/rankwatch/internal/alert"
	"github.com/y0f/rankwatch/internal/metrics"
	"github.com/y0f/rankwatch/internal/serp"
	"github.com/y0f/rankwatch/internal/storage"
)

// Querier looks up one keyword's ranking. *serp.Client satisfies it.
type Querier interface {
	CheckKeywordRanking(ctx context.Context, keyword, domain string) (*serp.Result, error)
}

// Alerter creates alerts. *alert.Manager satisfies it.
type Alerter interface {
	CreateAlert(ctx context.Context, alertType, severity, title string, message *string, metadata any) *storage.Alert
}

// ErrAlreadyRunning is returned when a sweep is started while another is
// still in progress on the same Scheduler.
var ErrAlreadyRunning = errors.New("rank check already running")

type Options struct {
	// RequestDelay is the pause between the end of one query and the start
	// of the next. Zero disables throttling.
	RequestDelay time.Duration
	// DropThreshold is the position loss that raises a ranking_drop alert.
	// Zero disables drop alerts.
	DropThreshold int
	// Location defines the calendar day a ranking is recorded under.
	Location *time.Location
}

// Summary is the result of one sweep.
type Summary struct {
	RunID   string   `json:"run_id"`
	Checked int      `json:"checked"`
	Found   int      `json:"found"`
	Errors  []string `json:"errors"`
}

type Scheduler struct {
	store   storage.Store
	client  Querier
	alerts  Alerter
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options
	now     func() time.Time
	running sync.Mutex
}

func NewScheduler(store storage.Store, client Querier, alerts Alerter, m *metrics.Metrics, logger *slog.Logger, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		store:   store,
		client:  client,
		alerts:  alerts,
		metrics: m,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// RunDailyRankCheck queries every keyword whose keyword and site are both
// active, one at a time, and upserts today's ranking for each. A failing
// keyword is recorded in Errors and the sweep moves on. Only configuration
// errors (missing API key) and store failures while loading keywords abort
// the run. Sweeps never overlap: a call made while one is in progress
// returns ErrAlreadyRunning without querying.
func (s *Scheduler) RunDailyRankCheck(ctx context.Context) (*Summary, error) {
	if !s.running.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Unlock()

	started := s.now()
	sum := &Summary{RunID: uuid.NewString(), Errors: []string{}}
	log := s.logger.With("run_id", sum.RunID, "job", storage.JobRankCheck)

	keywords, err := s.store.ListActiveKeywords(ctx)
	if err != nil {
		err = fmt.Errorf("load active keywords: %w", err)
		s.finish(ctx, started, sum, 0, err)
		return nil, err
	}
	log.Info("rank check started", "keywords", len(keywords))

	attempted := 0
	for i, kw := range keywords {
		if i > 0 {
			if err := pause(ctx, s.opts.RequestDelay); err != nil {
				// cancelled mid-sweep; everything written so far stands
				s.finish(ctx, started, sum, attempted, err)
				return sum, err
			}
		}
		attempted++

		if err := s.checkKeyword(ctx, kw, sum); err != nil {
			if errors.Is(err, serp.ErrMissingAPIKey) {
				s.finish(ctx, started, sum, attempted, err)
				return nil, err
			}
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %s", kw.Keyword, err))
			log.Warn("keyword check failed", "keyword", kw.Keyword, "keyword_id", kw.KeywordID, "error", err)
		}
	}

	s.finish(ctx, started, sum, attempted, nil)
	log.Info("rank check finished", "checked", sum.Checked, "found", sum.Found, "errors", len(sum.Errors),
		"duration", time.Since(started).Round(time.Millisecond))
	return sum, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Scheduler) checkKeyword(ctx context.Context, kw *storage.ActiveKeyword, sum *Summary) error {
	res, err := s.client.CheckKeywordRanking(ctx, kw.Keyword, kw.Domain)
	s.metrics.SERPQuery(err == nil)
	if err != nil {
		return err
	}

	today := s.now().In(s.opts.Location).Format("2006-01-02")
	prev, err := s.store.GetPreviousRanking(ctx, kw.KeywordID, today)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("load previous ranking", "keyword_id", kw.KeywordID, "error", err)
	}

	r := &storage.Ranking{
		KeywordID: kw.KeywordID,
		Date:      today,
		Position:  res.Position,
		URL:       res.URL,
		RawResult: res.Raw,
	}
	if err := s.store.UpsertRanking(ctx, r); err != nil {
		return fmt.Errorf("store ranking: %w", err)
	}

	sum.Checked++
	if r.Position != nil {
		sum.Found++
	}

	if prev != nil {
		s.evaluateChange(ctx, kw, prev, r)
	}
	return nil
}

// evaluateChange raises ranking_drop or ranking_lost against the most recent
// earlier observation.
func (s *Scheduler) evaluateChange(ctx context.Context, kw *storage.ActiveKeyword, prev, cur *storage.Ranking) {
	if s.alerts == nil || prev.Position == nil {
		return
	}
	meta := map[string]any{
		"keyword_id":        kw.KeywordID,
		"keyword":           kw.Keyword,
		"domain":            kw.Domain,
		"previous_date":     prev.Date,
		"previous_position": *prev.Position,
		"date":              cur.Date,
		"position":          cur.Position,
	}

	if cur.Position == nil {
		msg := fmt.Sprintf("%s was #%d on %s and is no longer in the observed results for %q",
			kw.Domain, *prev.Position, prev.Date, kw.Keyword)
		s.alerts.CreateAlert(ctx, alert.TypeRankingLost, alert.SeverityCritical,
			"Ranking lost: "+kw.Keyword, &msg, meta)
		return
	}

	drop := *cur.Position - *prev.Position
	if s.opts.DropThreshold <= 0 || drop < s.opts.DropThreshold {
		return
	}
	severity := alert.SeverityWarning
	if drop >= 2*s.opts.DropThreshold {
		severity = alert.SeverityCritical
	}
	meta["drop"] = drop
	msg := fmt.Sprintf("%s fell from #%d to #%d for %q", kw.Domain, *prev.Position, *cur.Position, kw.Keyword)
	s.alerts.CreateAlert(ctx, alert.TypeRankingDrop, severity, "Ranking drop: "+kw.Keyword, &msg, meta)
}

func (s *Scheduler) finish(ctx context.Context, started time.Time, sum *Summary, attempted int, fatal error) {
	s.metrics.ObserveRun(storage.JobRankCheck, started, sum.Checked, len(sum.Errors), fatal)
	if fatal == nil {
		s.metrics.SetKeywordsFound(sum.Found)
	}

	errs := append([]string{}, sum.Errors...)
	if fatal != nil {
		errs = append(errs, fatal.Error())
	}
	run := &storage.JobRun{
		RunID:      sum.RunID,
		Job:        storage.JobRankCheck,
		StartedAt:  started,
		FinishedAt: s.now(),
		Attempted:  attempted,
		Succeeded:  sum.Checked,
		Failed:     attempted - sum.Checked,
		Errors:     errs,
	}
	// the run may have been cancelled; the record is still wanted
	if err := s.store.InsertJobRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("record job run", "run_id", sum.RunID, "error", err)
	}
}
