// Package metrics holds the Prometheus collectors shared by the batch jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rankwatch"

// Metrics is safe to use as a nil pointer; every method is then a no-op so
// components can be built without a registry in tests.
type Metrics struct {
	JobRunsTotal       *prometheus.CounterVec
	JobDurationSeconds *prometheus.HistogramVec
	JobItemsTotal      *prometheus.CounterVec
	JobLastSuccess     *prometheus.GaugeVec

	SERPQueriesTotal *prometheus.CounterVec
	KeywordsFound    prometheus.Gauge

	LinkProbesTotal *prometheus.CounterVec
	BrokenLinks     prometheus.Gauge

	PagesPublishedTotal prometheus.Counter
	AlertsCreatedTotal  *prometheus.CounterVec
}

// New registers all collectors on reg, or the default registerer when reg
// is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}

	m.JobRunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Total number of batch job runs by outcome.",
	}, []string{"job", "outcome"})

	m.JobDurationSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of batch job runs in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
	}, []string{"job"})

	m.JobItemsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_items_total",
		Help:      "Items processed by batch jobs by result.",
	}, []string{"job", "result"})

	m.JobLastSuccess = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the last run that completed without a fatal error.",
	}, []string{"job"})

	m.SERPQueriesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "serp",
		Name:      "queries_total",
		Help:      "SERP API queries by result.",
	}, []string{"result"})

	m.KeywordsFound = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "serp",
		Name:      "keywords_found",
		Help:      "Keywords whose domain was found in the last rank check.",
	})

	m.LinkProbesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "linkcheck",
		Name:      "probes_total",
		Help:      "Outbound link probes by result.",
	}, []string{"result"})

	m.BrokenLinks = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "linkcheck",
		Name:      "broken_links",
		Help:      "Broken links found by the last link health run.",
	})

	m.PagesPublishedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "pages_published_total",
		Help:      "Pages promoted from draft to published.",
	})

	m.AlertsCreatedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "created_total",
		Help:      "Alerts created by type and severity.",
	}, []string{"type", "severity"})

	return m
}

// ObserveRun records the outcome of one batch run.
func (m *Metrics) ObserveRun(job string, started time.Time, succeeded, failed int, fatal error) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case fatal != nil:
		outcome = "error"
	case failed > 0:
		outcome = "partial"
	}
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
	m.JobDurationSeconds.WithLabelValues(job).Observe(time.Since(started).Seconds())
	m.JobItemsTotal.WithLabelValues(job, "succeeded").Add(float64(succeeded))
	m.JobItemsTotal.WithLabelValues(job, "failed").Add(float64(failed))
	if fatal == nil {
		m.JobLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

func (m *Metrics) SERPQuery(ok bool) {
	if m == nil {
		return
	}
	m.SERPQueriesTotal.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SetKeywordsFound(n int) {
	if m == nil {
		return
	}
	m.KeywordsFound.Set(float64(n))
}

func (m *Metrics) LinkProbe(broken bool) {
	if m == nil {
		return
	}
	r := "ok"
	if broken {
		r = "broken"
	}
	m.LinkProbesTotal.WithLabelValues(r).Inc()
}

func (m *Metrics) SetBrokenLinks(n int) {
	if m == nil {
		return
	}
	m.BrokenLinks.Set(float64(n))
}

func (m *Metrics) PagePublished() {
	if m == nil {
		return
	}
	m.PagesPublishedTotal.Inc()
}

func (m *Metrics) AlertCreated(alertType, severity string) {
	if m == nil {
		return
	}
	m.AlertsCreatedTotal.WithLabelValues(alertType, severity).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
