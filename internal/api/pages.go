package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/y0f/rankwatch/internal/diff"
	"github.com/y0f/rankwatch/internal/httputil"
	"github.com/y0f/rankwatch/internal/publish"
	"github.com/y0f/rankwatch/internal/storage"
	"github.com/y0f/rankwatch/internal/validate"
)

type pageRequest struct {
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	RoutePattern string          `json:"route_pattern"`
	Tier         string          `json:"tier"`
	Content      json.RawMessage `json:"content"`
}

type scheduleRequest struct {
	PublishAt time.Time `json:"publish_at"`
}

func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.PageFilter{Status: q.Get("status"), RoutePattern: q.Get("route_pattern")}
	if f.Status != "" && f.Status != storage.PageDraft && f.Status != storage.PagePublished {
		writeError(w, http.StatusBadRequest, "status must be draft or published")
		return
	}

	result, err := h.store.ListPages(r.Context(), f, httputil.ParsePagination(r))
	if err != nil {
		h.logger.Error("list pages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreatePage adds a draft page.
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := &storage.Page{
		Slug:         req.Slug,
		Title:        req.Title,
		RoutePattern: req.RoutePattern,
		Tier:         req.Tier,
		Status:       storage.PageDraft,
		Content:      req.Content,
	}
	if err := validate.ValidatePage(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreatePage(r.Context(), p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "slug already exists")
			return
		}
		h.logger.Error("create page", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create page")
		return
	}
	h.invalidateStats(r)
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListPageVersions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPage(w, r)
	if !ok {
		return
	}
	versions, err := h.store.ListPageVersions(r.Context(), p.ID)
	if err != nil {
		h.logger.Error("list page versions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list page versions")
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// PageVersionDiff compares a published version with the one before it.
// Version 1 is compared with empty content.
func (h *Handler) PageVersionDiff(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPage(w, r)
	if !ok {
		return
	}
	n, err := httputil.ParsePathID(r, "version")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	versions, err := h.store.ListPageVersions(r.Context(), p.ID)
	if err != nil {
		h.logger.Error("list page versions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list page versions")
		return
	}

	var prev, cur *storage.PageVersion
	for _, v := range versions {
		switch int64(v.Version) {
		case n - 1:
			prev = v
		case n:
			cur = v
		}
	}
	if cur == nil {
		writeError(w, http.StatusNotFound, "version not found")
		return
	}

	res := diff.Result{ToVersion: cur.Version}
	var old json.RawMessage
	if prev != nil {
		old = prev.Content
		res.FromVersion = prev.Version
	}
	lines, err := diff.JSONContent(old, cur.Content)
	if err != nil {
		h.logger.Error("diff page versions", "page_id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to diff versions")
		return
	}
	res.Added, res.Removed = diff.Count(lines)
	res.Unified = diff.Unified(lines)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) SchedulePage(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req scheduleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.svc.Publisher.SchedulePage(r.Context(), id, req.PublishAt)
	if !res.Success {
		writeJSON(w, scheduleStatus(res.Error), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func scheduleStatus(msg string) int {
	switch msg {
	case publish.ErrMsgPageNotFound:
		return http.StatusNotFound
	case publish.ErrMsgNotDraft:
		return http.StatusConflict
	case publish.ErrMsgNoPublishAt:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) UnschedulePage(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok := h.svc.Publisher.UnschedulePage(r.Context(), id)
	writeJSON(w, http.StatusOK, publish.Result{Success: ok})
}

// CheckPageLinks probes the outbound links of one page immediately.
func (h *Handler) CheckPageLinks(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPage(w, r)
	if !ok {
		return
	}
	checks, err := h.svc.LinkHealth.CheckPageLinks(r.Context(), p.Slug)
	if err != nil {
		h.logger.Error("check page links", "slug", p.Slug, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check links")
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

func (h *Handler) ListLinkChecks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.LinkCheckFilter{
		RunID:      q.Get("run_id"),
		SourceSlug: q.Get("source_slug"),
		BrokenOnly: q.Get("broken") == "true",
	}
	result, err := h.store.ListLinkChecks(r.Context(), f, httputil.ParsePagination(r))
	if err != nil {
		h.logger.Error("list link checks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list link checks")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) loadPage(w http.ResponseWriter, r *http.Request) (*storage.Page, bool) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	p, err := h.store.GetPage(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "page not found")
			return nil, false
		}
		h.logger.Error("get page", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get page")
		return nil, false
	}
	return p, true
}

func (h *Handler) invalidateStats(r *http.Request) {
	if h.svc.Stats == nil {
		return
	}
	if err := h.svc.Stats.Invalidate(r.Context()); err != nil {
		h.logger.Warn("invalidate stats cache", "error", err)
	}
}
