package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRunOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun("rank_check", time.Now(), 3, 0, nil)
	m.ObserveRun("rank_check", time.Now(), 2, 1, nil)
	m.ObserveRun("rank_check", time.Now(), 0, 0, errors.New("missing key"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("rank_check", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("rank_check", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("rank_check", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.JobItemsTotal.WithLabelValues("rank_check", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobItemsTotal.WithLabelValues("rank_check", "failed")))
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SERPQuery(true)
	m.SERPQuery(false)
	m.LinkProbe(true)
	m.PagePublished()
	m.AlertCreated("broken_link", "critical")
	m.SetBrokenLinks(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SERPQueriesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkProbesTotal.WithLabelValues("broken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesPublishedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsCreatedTotal.WithLabelValues("broken_link", "critical")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BrokenLinks))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("publish", time.Now(), 1, 0, nil)
		m.SERPQuery(true)
		m.SetKeywordsFound(1)
		m.LinkProbe(false)
		m.SetBrokenLinks(0)
		m.PagePublished()
		m.AlertCreated("ranking_drop", "warning")
	})
}
