package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/y0f/rankwatch/internal/export"
	"github.com/y0f/rankwatch/internal/httputil"
	"github.com/y0f/rankwatch/internal/storage"
)

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats.GetStats(r.Context())
	if err != nil {
		h.logger.Error("get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Export streams a whole dataset as CSV or JSON. The format defaults to CSV.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	dataset := r.PathValue("dataset")
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, "format must be csv or json")
		return
	}

	q, err := parseExportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, columns, err := export.Load(r.Context(), h.store, dataset, q)
	if err != nil {
		if errors.Is(err, export.ErrUnknownDataset) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("export", "dataset", dataset, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export")
		return
	}

	filename := fmt.Sprintf("%s-%s.%s", dataset, time.Now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if format == "json" {
		body, err := export.ToJSON(records)
		if err != nil {
			h.logger.Error("export json", "dataset", dataset, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to export")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(export.ToCSV(records, columns)))
}

func parseExportQuery(r *http.Request) (export.Query, error) {
	f, err := parseRankingFilter(r)
	if err != nil {
		return export.Query{}, err
	}
	q := export.Query{
		SiteID:     f.SiteID,
		KeywordID:  f.KeywordID,
		From:       f.From,
		To:         f.To,
		RunID:      r.URL.Query().Get("run_id"),
		BrokenOnly: r.URL.Query().Get("broken") == "true",
	}
	q.Statuses, err = parseStatuses(r.URL.Query().Get("status"))
	return q, err
}

func (h *Handler) ListJobRuns(w http.ResponseWriter, r *http.Request) {
	job := r.URL.Query().Get("job")
	switch job {
	case "", storage.JobRankCheck, storage.JobPublish, storage.JobLinkHealth:
	default:
		writeError(w, http.StatusBadRequest, "job must be one of: rank_check, publish, link_health")
		return
	}

	result, err := h.store.ListJobRuns(r.Context(), job, httputil.ParsePagination(r))
	if err != nil {
		h.logger.Error("list job runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list job runs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startTime).String(),
	})
}
