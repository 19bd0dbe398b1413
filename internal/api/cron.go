package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/y0f/rankwatch/internal/rankcheck"
	"github.com/y0f/rankwatch/internal/serp"
)

// Cron runs are detached from the caller so an HTTP client timing out does
// not abort a sweep halfway.

func (h *Handler) CronRankCheck(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.RankCheck.RunDailyRankCheck(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, rankcheck.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "rank check already running")
			return
		}
		if errors.Is(err, serp.ErrMissingAPIKey) {
			writeError(w, http.StatusInternalServerError, "serp api key not configured")
			return
		}
		h.logger.Error("cron rank check", "error", err)
		writeError(w, http.StatusInternalServerError, "rank check failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) CronPublish(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Publisher.PublishScheduledPages(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Error("cron publish", "error", err)
		writeError(w, http.StatusInternalServerError, "publish failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) CronLinkHealth(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.LinkHealth.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Error("cron link health", "error", err)
		writeError(w, http.StatusInternalServerError, "link health check failed")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
