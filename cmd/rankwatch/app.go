package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/y0f/rankwatch/internal/alert"
	"github.com/y0f/rankwatch/internal/api"
	"github.com/y0f/rankwatch/internal/config"
	"github.com/y0f/rankwatch/internal/jobs"
	"github.com/y0f/rankwatch/internal/linkcheck"
	"github.com/y0f/rankwatch/internal/metrics"
	"github.com/y0f/rankwatch/internal/notifier"
	"github.com/y0f/rankwatch/internal/publish"
	"github.com/y0f/rankwatch/internal/rankcheck"
	"github.com/y0f/rankwatch/internal/serp"
	"github.com/y0f/rankwatch/internal/server"
	"github.com/y0f/rankwatch/internal/stats"
	"github.com/y0f/rankwatch/internal/storage"
)

// app holds the wired services shared by serve and the one-shot commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *storage.SQLiteStore
	registry   *prometheus.Registry
	dispatcher *notifier.Dispatcher
	redis      *stats.RedisCache
	retention  *storage.RetentionWorker
	svc        api.Services
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.NewSQLiteStore(cfg.Database.Path, cfg.Database.MaxReadConns)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database opened", "path", cfg.Database.Path)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	a.dispatcher = notifier.NewDispatcher(notifier.ChannelsFromConfig(cfg.Notifications),
		cfg.LinkCheck.AllowPrivateTargets, logger)
	alerts := alert.NewManager(store, a.dispatcher, m, logger)

	var cache stats.Cache = stats.NewMemoryCache()
	if cfg.Stats.RedisAddress != "" {
		rc, err := stats.NewRedisCache(stats.RedisConfig{
			Address:  cfg.Stats.RedisAddress,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connect stats cache: %w", err)
		}
		a.redis = rc
		cache = rc
		logger.Info("stats cache using redis", "address", cfg.Stats.RedisAddress)
	}
	agg := stats.NewAggregator(store, cache, cfg.Stats.CacheTTL, cfg.Publish.DripRate, logger)

	serpClient := serp.NewClient(serp.Options{
		APIKey:   cfg.SERP.APIKey,
		Endpoint: cfg.SERP.Endpoint,
		Engine:   cfg.SERP.Engine,
		Region:   cfg.SERP.Region,
		Language: cfg.SERP.Language,
		Num:      cfg.SERP.Num,
		Timeout:  cfg.SERP.Timeout,
	}, nil)

	prober := linkcheck.NewHTTPProber(cfg.LinkCheck.Timeout, cfg.LinkCheck.UserAgent, cfg.LinkCheck.AllowPrivateTargets)

	a.svc = api.Services{
		RankCheck: rankcheck.NewScheduler(store, serpClient, alerts, m, logger, rankcheck.Options{
			RequestDelay:  cfg.SERP.RequestDelay,
			DropThreshold: cfg.Alerts.RankingDropThreshold,
			Location:      cfg.Location(),
		}),
		LinkHealth: linkcheck.NewAuditor(store, prober, alerts, m, logger, linkcheck.Options{
			CriticalAt: cfg.Alerts.BrokenLinkCritical,
		}),
		Publisher: publish.NewScheduler(store, agg, alerts, m, logger, publish.Options{
			SitemapRevalidateURL: cfg.Publish.SitemapRevalidateURL,
		}),
		Alerts: alerts,
		Stats:  agg,
	}
	a.retention = storage.NewRetentionWorker(store, cfg.Database.RetentionDays, cfg.Database.RetentionPeriod, logger)
	return a, nil
}

func (a *app) httpHandler() *server.Server {
	h := api.New(a.cfg, a.store, a.svc, a.logger, version)
	return server.NewServer(a.cfg, h, a.registry, a.logger)
}

// startSchedule registers the batch jobs with the in-process cron runner.
// It returns nil when scheduling is disabled and an external scheduler
// drives the cron endpoints instead.
func (a *app) startSchedule() (*jobs.Runner, error) {
	if !a.cfg.Schedule.Enabled {
		a.logger.Info("in-process schedule disabled")
		return nil, nil
	}
	r := jobs.NewRunner(a.cfg.Location(), a.logger)

	sched := []struct {
		name string
		spec string
		fn   jobs.Func
	}{
		{storage.JobRankCheck, a.cfg.Schedule.RankCheck, func(ctx context.Context) error {
			_, err := a.svc.RankCheck.RunDailyRankCheck(ctx)
			return err
		}},
		{storage.JobPublish, a.cfg.Schedule.Publish, func(ctx context.Context) error {
			_, err := a.svc.Publisher.PublishScheduledPages(ctx)
			return err
		}},
		{storage.JobLinkHealth, a.cfg.Schedule.LinkHealth, func(ctx context.Context) error {
			_, err := a.svc.LinkHealth.RunLinkHealthCheck(ctx)
			return err
		}},
	}
	for _, j := range sched {
		if err := r.Add(j.name, j.spec, j.fn); err != nil {
			return nil, err
		}
	}
	r.Start()
	return r, nil
}

func (a *app) close() {
	a.dispatcher.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close stats cache", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("close database", "error", err)
	}
}
