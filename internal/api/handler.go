package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/y0f/rankwatch/internal/alert"
	"github.com/y0f/rankwatch/internal/config"
	"github.com/y0f/rankwatch/internal/linkcheck"
	"github.com/y0f/rankwatch/internal/publish"
	"github.com/y0f/rankwatch/internal/rankcheck"
	"github.com/y0f/rankwatch/internal/stats"
	"github.com/y0f/rankwatch/internal/storage"
)

// Services are the components the API drives.
type Services struct {
	RankCheck  *rankcheck.Scheduler
	LinkHealth *linkcheck.Auditor
	Publisher  *publish.Scheduler
	Alerts     *alert.Manager
	Stats      *stats.Aggregator
}

type Handler struct {
	cfg       *config.Config
	store     storage.Store
	svc       Services
	logger    *slog.Logger
	startTime time.Time
	version   string
}

func New(cfg *config.Config, store storage.Store, svc Services, logger *slog.Logger, version string) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		svc:       svc,
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
