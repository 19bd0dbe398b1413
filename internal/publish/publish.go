// Package publish promotes scheduled drafts to published pages.
package publish

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/y0f/rankwatch/internal/alert"
	"github.com/y0f/rankwatch/internal/metrics"
	"github.com/y0f/rankwatch/internal/storage"
)

// Messages returned to callers for rejected schedule requests.
const (
	ErrMsgNotDraft     = "Only draft pages can be scheduled"
	ErrMsgPageNotFound = "Page not found"
	ErrMsgNoPublishAt  = "publish time is required"
)

// CacheInvalidator drops cached stats after content changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Alerter creates alerts. *alert.Manager satisfies it.
type Alerter interface {
	CreateAlert(ctx context.Context, alertType, severity, title string, message *string, metadata any) *storage.Alert
}

// Result is the outcome of a schedule request.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Summary is the outcome of one publish sweep.
type Summary struct {
	RunID     string   `json:"run_id"`
	Published int      `json:"published"`
	Slugs     []string `json:"slugs"`
	Errors    []string `json:"errors"`
}

type Options struct {
	// SitemapRevalidateURL receives a POST after any page is published.
	// Empty disables the hook.
	SitemapRevalidateURL string
	HTTPClient           *http.Client
}

type Scheduler struct {
	store   storage.Store
	cache   CacheInvalidator
	alerts  Alerter
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options
	now     func() time.Time
}

func NewScheduler(store storage.Store, cache CacheInvalidator, alerts Alerter, m *metrics.Metrics, logger *slog.Logger, opts Options) *Scheduler {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Scheduler{
		store:   store,
		cache:   cache,
		alerts:  alerts,
		metrics: m,
		logger:  logger,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SchedulePage sets when a draft page will be published.
func (s *Scheduler) SchedulePage(ctx context.Context, pageID int64, publishAt time.Time) Result {
	if publishAt.IsZero() {
		return Result{Error: ErrMsgNoPublishAt}
	}
	p, err := s.store.GetPage(ctx, pageID)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{Error: ErrMsgPageNotFound}
	}
	if err != nil {
		s.logger.Error("schedule page: load", "page_id", pageID, "error", err)
		return Result{Error: "failed to load page"}
	}
	if p.Status != storage.PageDraft {
		return Result{Error: ErrMsgNotDraft}
	}

	at := publishAt.UTC()
	switch err := s.store.SetPageSchedule(ctx, pageID, &at); {
	case err == nil:
	case errors.Is(err, storage.ErrNotDraft):
		return Result{Error: ErrMsgNotDraft}
	case errors.Is(err, sql.ErrNoRows):
		return Result{Error: ErrMsgPageNotFound}
	default:
		s.logger.Error("schedule page", "page_id", pageID, "error", err)
		return Result{Error: "failed to schedule page"}
	}

	s.logger.Info("page scheduled", "page_id", pageID, "slug", p.Slug, "publish_at", at.Format(time.RFC3339))
	return Result{Success: true}
}

// UnschedulePage clears a draft's scheduled time. It reports false when the
// page is missing or no longer a draft.
func (s *Scheduler) UnschedulePage(ctx context.Context, pageID int64) bool {
	if err := s.store.SetPageSchedule(ctx, pageID, nil); err != nil {
		if !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, storage.ErrNotDraft) {
			s.logger.Error("unschedule page", "page_id", pageID, "error", err)
		}
		return false
	}
	return true
}

// PublishScheduledPages publishes every draft whose scheduled time has
// passed, oldest first. Each page is published in its own transaction; a
// failing page is recorded and the sweep continues.
func (s *Scheduler) PublishScheduledPages(ctx context.Context) (*Summary, error) {
	started := time.Now()
	now := s.now()
	sum := &Summary{RunID: uuid.NewString(), Slugs: []string{}, Errors: []string{}}
	log := s.logger.With("run_id", sum.RunID, "job", storage.JobPublish)

	due, err := s.store.ListDuePages(ctx, now)
	if err != nil {
		err = fmt.Errorf("load due pages: %w", err)
		s.finish(ctx, started, sum, 0, err)
		return nil, err
	}

	for _, p := range due {
		if ctx.Err() != nil {
			break
		}
		v, err := s.store.PublishPage(ctx, p.ID, now)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = errors.New("page not found")
			}
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %s", p.Slug, err))
			log.Warn("publish failed", "slug", p.Slug, "page_id", p.ID, "error", err)
			continue
		}
		sum.Published++
		sum.Slugs = append(sum.Slugs, p.Slug)
		s.metrics.PagePublished()
		log.Info("page published", "slug", p.Slug, "page_id", p.ID, "version", v.Version)
	}

	if sum.Published > 0 {
		s.afterPublish(ctx, sum.Slugs)
	}
	if len(sum.Errors) > 0 {
		s.raisePublishFailedAlert(ctx, sum)
	}

	s.finish(ctx, started, sum, len(due), ctx.Err())
	if len(due) > 0 {
		log.Info("publish sweep finished", "due", len(due), "published", sum.Published, "errors", len(sum.Errors))
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

func (s *Scheduler) afterPublish(ctx context.Context, slugs []string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate stats cache", "error", err)
		}
	}
	if s.opts.SitemapRevalidateURL != "" {
		if err := s.revalidateSitemap(ctx, slugs); err != nil {
			s.logger.Warn("sitemap revalidation failed", "error", err)
		}
	}
}

func (s *Scheduler) revalidateSitemap(ctx context.Context, slugs []string) error {
	body, _ := json.Marshal(map[string]any{"published": slugs})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.SitemapRevalidateURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("revalidate returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Scheduler) raisePublishFailedAlert(ctx context.Context, sum *Summary) {
	if s.alerts == nil {
		return
	}
	msg := strings.Join(sum.Errors, "\n")
	s.alerts.CreateAlert(ctx, alert.TypePublishFailed, alert.SeverityWarning,
		fmt.Sprintf("%d scheduled pages failed to publish", len(sum.Errors)), &msg,
		map[string]any{"run_id": sum.RunID, "errors": sum.Errors, "published": sum.Published})
}

func (s *Scheduler) finish(ctx context.Context, started time.Time, sum *Summary, attempted int, fatal error) {
	s.metrics.ObserveRun(storage.JobPublish, started, sum.Published, len(sum.Errors), fatal)

	errs := append([]string{}, sum.Errors...)
	if fatal != nil {
		errs = append(errs, fatal.Error())
	}
	run := &storage.JobRun{
		RunID:      sum.RunID,
		Job:        storage.JobPublish,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Attempted:  attempted,
		Succeeded:  sum.Published,
		Failed:     len(sum.Errors),
		Errors:     errs,
	}
	if err := s.store.InsertJobRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("record job run", "run_id", sum.RunID, "error", err)
	}
}
