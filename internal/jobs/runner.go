// Package jobs runs the batch jobs on their cron schedules inside the
// service process.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Func is one batch job invocation.
type Func func(ctx context.Context) error

type Runner struct {
	cron    *cron.Cron
	parser  cron.Parser
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewRunner creates a runner whose schedules are evaluated in loc. A job
// never overlaps itself: a tick that fires while the previous run is still
// going is skipped.
func NewRunner(loc *time.Location, logger *slog.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		parser:  parser,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add schedules fn under name. An empty schedule leaves the job unscheduled.
func (r *Runner) Add(name, spec string, fn Func) error {
	if spec == "" {
		r.logger.Info("job not scheduled", "job", name)
		return nil
	}
	sched, err := r.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse schedule for %s: %w", name, err)
	}

	id := r.cron.Schedule(sched, cron.FuncJob(func() {
		started := time.Now()
		r.logger.Info("scheduled job starting", "job", name)
		if err := fn(r.ctx); err != nil {
			r.logger.Error("scheduled job failed", "job", name, "error", err,
				"duration_ms", time.Since(started).Milliseconds())
			return
		}
		r.logger.Info("scheduled job finished", "job", name,
			"duration_ms", time.Since(started).Milliseconds())
	}))

	r.mu.Lock()
	r.entries[name] = id
	r.mu.Unlock()

	r.logger.Info("job scheduled", "job", name, "schedule", spec,
		"next_run", sched.Next(time.Now()).Format(time.RFC3339))
	return nil
}

// RunNow invokes a scheduled job synchronously through the same wrappers as
// the cron ticks. It reports false when name is not scheduled.
func (r *Runner) RunNow(name string) bool {
	r.mu.Lock()
	id, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	entry := r.cron.Entry(id)
	if !entry.Valid() {
		return false
	}
	entry.WrappedJob.Run()
	return true
}

// Next returns the next scheduled run of name, or the zero time.
func (r *Runner) Next(name string) time.Time {
	r.mu.Lock()
	id, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return r.cron.Entry(id).Next
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them to return
// or for ctx to expire.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	r.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.logger.Warn("jobs still running at shutdown")
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" {
		l.logger.Warn("cron: run skipped, previous run still in progress")
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
