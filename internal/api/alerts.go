package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/y0f/rankwatch/internal/alert"
	"github.com/y0f/rankwatch/internal/httputil"
)

// ListAlerts filters by a comma-separated status list; "open" is shorthand
// for active and acknowledged.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Alerts.ListAlerts(r.Context(), statuses, httputil.ParsePagination(r))
	if err != nil {
		h.logger.Error("list alerts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseStatuses(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		switch {
		case s == "open":
			out = append(out, alert.StatusActive, alert.StatusAcknowledged)
		case alert.ValidStatus(s):
			out = append(out, s)
		default:
			return nil, errors.New("status must be one of: active, acknowledged, resolved, open")
		}
	}
	return out, nil
}

func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.logger.Error("get alert", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, "acknowledge", h.svc.Alerts.AcknowledgeAlert)
}

func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, "resolve", h.svc.Alerts.ResolveAlert)
}

func (h *Handler) transitionAlert(w http.ResponseWriter, r *http.Request, action string,
	apply func(context.Context, int64) bool) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok := apply(r.Context(), id)
	a, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		h.logger.Error("get alert after "+action, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "cannot "+action+" a "+a.Status+" alert")
		return
	}
	h.logger.Info("alert "+action+"d", "alert_id", id, "api_key", httputil.GetAPIKeyName(r.Context()))
	writeJSON(w, http.StatusOK, a)
}
