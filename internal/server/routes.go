package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	kwRead := s.api.Auth("keywords.read")
	kwWrite := s.api.Auth("keywords.write")
	pageRead := s.api.Auth("pages.read")
	pageWrite := s.api.Auth("pages.write")
	alertRead := s.api.Auth("alerts.read")
	alertWrite := s.api.Auth("alerts.write")
	jobsRun := s.api.Auth("jobs.run")
	cron := s.api.CronAuth

	mux.HandleFunc("GET /api/v1/health", s.api.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Scheduler triggers
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		mux.Handle(method+" /api/v1/cron/rank-check", cron(http.HandlerFunc(s.api.CronRankCheck)))
		mux.Handle(method+" /api/v1/cron/publish", cron(http.HandlerFunc(s.api.CronPublish)))
		mux.Handle(method+" /api/v1/cron/link-health", cron(http.HandlerFunc(s.api.CronLinkHealth)))
	}

	// Operator-initiated runs
	mux.Handle("POST /api/v1/jobs/rank-check", jobsRun(http.HandlerFunc(s.api.CronRankCheck)))
	mux.Handle("POST /api/v1/jobs/publish", jobsRun(http.HandlerFunc(s.api.CronPublish)))
	mux.Handle("POST /api/v1/jobs/link-health", jobsRun(http.HandlerFunc(s.api.CronLinkHealth)))
	mux.Handle("GET /api/v1/runs", jobsRun(http.HandlerFunc(s.api.ListJobRuns)))

	// Sites and keywords
	mux.Handle("GET /api/v1/sites", kwRead(http.HandlerFunc(s.api.ListSites)))
	mux.Handle("POST /api/v1/sites", kwWrite(http.HandlerFunc(s.api.CreateSite)))
	mux.Handle("GET /api/v1/sites/{id}", kwRead(http.HandlerFunc(s.api.GetSite)))
	mux.Handle("PATCH /api/v1/sites/{id}", kwWrite(http.HandlerFunc(s.api.UpdateSite)))
	mux.Handle("GET /api/v1/sites/{id}/keywords", kwRead(http.HandlerFunc(s.api.ListKeywords)))
	mux.Handle("POST /api/v1/sites/{id}/keywords", kwWrite(http.HandlerFunc(s.api.CreateKeyword)))
	mux.Handle("POST /api/v1/sites/{id}/keywords/import", kwWrite(http.HandlerFunc(s.api.ImportKeywords)))
	mux.Handle("PATCH /api/v1/keywords/{id}", kwWrite(http.HandlerFunc(s.api.UpdateKeyword)))
	mux.Handle("GET /api/v1/keywords/{id}/metrics", kwRead(http.HandlerFunc(s.api.KeywordMetrics)))
	mux.Handle("GET /api/v1/rankings", kwRead(http.HandlerFunc(s.api.ListRankings)))

	// Pages
	mux.Handle("GET /api/v1/pages", pageRead(http.HandlerFunc(s.api.ListPages)))
	mux.Handle("POST /api/v1/pages", pageWrite(http.HandlerFunc(s.api.CreatePage)))
	mux.Handle("GET /api/v1/pages/{id}", pageRead(http.HandlerFunc(s.api.GetPage)))
	mux.Handle("GET /api/v1/pages/{id}/versions", pageRead(http.HandlerFunc(s.api.ListPageVersions)))
	mux.Handle("GET /api/v1/pages/{id}/versions/{version}/diff", pageRead(http.HandlerFunc(s.api.PageVersionDiff)))
	mux.Handle("POST /api/v1/pages/{id}/schedule", pageWrite(http.HandlerFunc(s.api.SchedulePage)))
	mux.Handle("POST /api/v1/pages/{id}/unschedule", pageWrite(http.HandlerFunc(s.api.UnschedulePage)))
	mux.Handle("POST /api/v1/pages/{id}/check-links", pageWrite(http.HandlerFunc(s.api.CheckPageLinks)))
	mux.Handle("GET /api/v1/link-checks", pageRead(http.HandlerFunc(s.api.ListLinkChecks)))
	mux.Handle("GET /api/v1/stats", pageRead(http.HandlerFunc(s.api.Stats)))

	// Alerts
	mux.Handle("GET /api/v1/alerts", alertRead(http.HandlerFunc(s.api.ListAlerts)))
	mux.Handle("GET /api/v1/alerts/{id}", alertRead(http.HandlerFunc(s.api.GetAlert)))
	mux.Handle("POST /api/v1/alerts/{id}/acknowledge", alertWrite(http.HandlerFunc(s.api.AcknowledgeAlert)))
	mux.Handle("POST /api/v1/alerts/{id}/resolve", alertWrite(http.HandlerFunc(s.api.ResolveAlert)))

	exportRead := s.api.Auth("keywords.read", "pages.read", "alerts.read")
	mux.Handle("GET /api/v1/export/{dataset}", exportRead(http.HandlerFunc(s.api.Export)))
}
