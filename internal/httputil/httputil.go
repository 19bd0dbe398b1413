package httputil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/y0f/rankwatch/internal/config"
	"github.com/y0f/rankwatch/internal/storage"
)

type ContextKey string

const (
	CtxKeyRequestID ContextKey = "request_id"
	CtxKeyAPIKey    ContextKey = "api_key"
)

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func GetAPIKeyName(ctx context.Context) string {
	if k, ok := ctx.Value(CtxKeyAPIKey).(*config.APIKeyConfig); ok {
		return k.Name
	}
	return ""
}

func GetAPIKey(ctx context.Context) *config.APIKeyConfig {
	if k, ok := ctx.Value(CtxKeyAPIKey).(*config.APIKeyConfig); ok {
		return k
	}
	return nil
}

func GenerateID() string {
	return uuid.NewString()
}

type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Code = code
	w.ResponseWriter.WriteHeader(code)
}

func ParsePagination(r *http.Request) storage.Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return storage.Pagination{Page: page, PerPage: perPage}
}

func ParseID(r *http.Request) (int64, error) {
	return ParsePathID(r, "id")
}

// ParsePathID parses the named path wildcard as a positive integer id.
func ParsePathID(r *http.Request, name string) (int64, error) {
	idStr := r.PathValue(name)
	if idStr == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", name, idStr)
	}
	return id, nil
}

// ParseQueryID parses an optional positive integer query parameter. Absent
// parameters yield 0.
func ParseQueryID(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", name, v)
	}
	return id, nil
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func ExtractIP(r *http.Request, trustedNets []net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	remoteIP := net.ParseIP(host)
	if remoteIP == nil || !IsTrusted(remoteIP, trustedNets) {
		return host
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if net.ParseIP(realIP) != nil {
			return realIP
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		for i := len(parts) - 1; i >= 0; i-- {
			ip := strings.TrimSpace(parts[i])
			parsed := net.ParseIP(ip)
			if parsed == nil {
				continue
			}
			if !IsTrusted(parsed, trustedNets) {
				return ip
			}
		}
		return strings.TrimSpace(parts[0])
	}

	return host
}

func IsTrusted(ip net.IP, nets []net.IPNet) bool {
	for i := range nets {
		if nets[i].Contains(ip) {
			return true
		}
	}
	return false
}
