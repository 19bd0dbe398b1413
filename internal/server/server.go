package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/y0f/rankwatch/internal/api"
	"github.com/y0f/rankwatch/internal/config"
	"github.com/y0f/rankwatch/internal/httputil"
)

var _ http.Handler = (*Server)(nil)

type Server struct {
	cfg      *config.Config
	api      *api.Handler
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	limiter  *httputil.RateLimiter
	handler  http.Handler
}

// NewServer assembles the routed API behind the middleware chain. A nil
// gatherer serves the default Prometheus registry on /metrics.
func NewServer(cfg *config.Config, h *api.Handler, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:      cfg,
		api:      h,
		gatherer: gatherer,
		logger:   logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	handler = bodyLimit(cfg.Server.MaxBodySize)(handler)
	if cfg.Server.RateLimitPerSec > 0 {
		s.limiter = httputil.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst)
		handler = s.limiter.Middleware(cfg.TrustedNets(), writeError)(handler)
	}
	handler = secureHeaders()(handler)
	handler = logging(logger, cfg.TrustedNets())(handler)
	handler = requestID()(handler)
	handler = recovery(logger)(handler)

	s.handler = handler
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
