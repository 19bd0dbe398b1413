package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/y0f/rankwatch/internal/analytics"
	"github.com/y0f/rankwatch/internal/httputil"
	"github.com/y0f/rankwatch/internal/keywords"
	"github.com/y0f/rankwatch/internal/storage"
	"github.com/y0f/rankwatch/internal/validate"
)

const dateLayout = "2006-01-02"

type siteRequest struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type keywordRequest struct {
	Keyword string `json:"keyword"`
	Active  *bool  `json:"active"`
}

func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.store.ListSites(r.Context())
	if err != nil {
		h.logger.Error("list sites", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req siteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	site := &storage.Site{Domain: req.Domain, Name: req.Name, Active: req.Active == nil || *req.Active}
	if err := validate.ValidateSite(site); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateSite(r.Context(), site); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "site already exists")
			return
		}
		h.logger.Error("create site", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create site")
		return
	}
	h.logger.Info("site created", "site_id", site.ID, "domain", site.Domain,
		"api_key", httputil.GetAPIKeyName(r.Context()))
	writeJSON(w, http.StatusCreated, site)
}

func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	site, err := h.store.GetSite(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "site not found")
			return
		}
		h.logger.Error("get site", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get site")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

// UpdateSite toggles whether a site's keywords are checked.
func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req activeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	if _, err := h.store.GetSite(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "site not found")
			return
		}
		h.logger.Error("get site for update", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get site")
		return
	}
	if err := h.store.SetSiteActive(r.Context(), id, *req.Active); err != nil {
		h.logger.Error("update site", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update site")
		return
	}

	site, err := h.store.GetSite(r.Context(), id)
	if err != nil {
		h.logger.Error("get site after update", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get site")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (h *Handler) ListKeywords(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.requireSite(w, r)
	if !ok {
		return
	}
	kws, err := h.store.ListKeywords(r.Context(), siteID)
	if err != nil {
		h.logger.Error("list keywords", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list keywords")
		return
	}
	writeJSON(w, http.StatusOK, kws)
}

func (h *Handler) CreateKeyword(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.requireSite(w, r)
	if !ok {
		return
	}
	var req keywordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	k := &storage.Keyword{SiteID: siteID, Keyword: req.Keyword, Active: req.Active == nil || *req.Active}
	if err := validate.ValidateKeyword(k); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.CreateKeyword(r.Context(), k); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "keyword already tracked for this site")
			return
		}
		h.logger.Error("create keyword", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create keyword")
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

// ImportKeywords bulk-creates keywords from a CSV request body with a
// keyword,active header.
func (h *Handler) ImportKeywords(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.requireSite(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	res, err := keywords.Import(r.Context(), h.store, siteID, r.Body)
	if err != nil {
		if errors.Is(err, keywords.ErrInvalidCSV) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("import keywords", "site_id", siteID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to import keywords")
		return
	}
	h.logger.Info("keywords imported", "site_id", siteID, "created", res.Created,
		"duplicates", res.Duplicates, "invalid", len(res.Errors))
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) UpdateKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req activeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	if _, err := h.store.GetKeyword(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "keyword not found")
			return
		}
		h.logger.Error("get keyword for update", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get keyword")
		return
	}
	if err := h.store.SetKeywordActive(r.Context(), id, *req.Active); err != nil {
		h.logger.Error("update keyword", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update keyword")
		return
	}
	k, err := h.store.GetKeyword(r.Context(), id)
	if err != nil {
		h.logger.Error("get keyword after update", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get keyword")
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (h *Handler) KeywordMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := parseRankingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.GetKeyword(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "keyword not found")
			return
		}
		h.logger.Error("get keyword", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get keyword")
		return
	}

	m, err := analytics.ComputeKeywordMetrics(r.Context(), h.store, id, f.From, f.To)
	if err != nil {
		h.logger.Error("compute keyword metrics", "keyword_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) ListRankings(w http.ResponseWriter, r *http.Request) {
	f, err := parseRankingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.store.ListRankings(r.Context(), f, httputil.ParsePagination(r))
	if err != nil {
		h.logger.Error("list rankings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rankings")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseRankingFilter(r *http.Request) (storage.RankingFilter, error) {
	var f storage.RankingFilter
	var err error
	if f.SiteID, err = httputil.ParseQueryID(r, "site_id"); err != nil {
		return f, err
	}
	if f.KeywordID, err = httputil.ParseQueryID(r, "keyword_id"); err != nil {
		return f, err
	}
	q := r.URL.Query()
	for _, d := range []struct {
		name string
		dst  *string
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(d.name)
		if v == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, v); err != nil {
			return f, errors.New(d.name + " must be a YYYY-MM-DD date")
		}
		*d.dst = v
	}
	return f, nil
}

// requireSite resolves the {id} path value to an existing site, writing the
// error response itself when it cannot.
func (h *Handler) requireSite(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httputil.ParseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if _, err := h.store.GetSite(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "site not found")
			return 0, false
		}
		h.logger.Error("get site", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get site")
		return 0, false
	}
	return id, true
}
