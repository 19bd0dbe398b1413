package httputil

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y0f/rankwatch/internal/config"
)

func TestExtractIP(t *testing.T) {
	_, loopback, _ := net.ParseCIDR("127.0.0.0/8")
	trusted := []net.IPNet{*loopback}

	tests := []struct {
		name       string
		remoteAddr string
		xRealIP    string
		xff        string
		nets       []net.IPNet
		want       string
	}{
		{"untrusted peer", "203.0.113.9:5000", "", "", nil, "203.0.113.9"},
		{"untrusted ignores headers", "203.0.113.9:5000", "10.1.1.1", "10.2.2.2", trusted, "203.0.113.9"},
		{"trusted uses X-Real-IP", "127.0.0.1:5000", "198.51.100.4", "", trusted, "198.51.100.4"},
		{"trusted walks XFF from the right", "127.0.0.1:5000", "", "198.51.100.4, 127.0.0.2", trusted, "198.51.100.4"},
		{"all XFF trusted falls back to first", "127.0.0.1:5000", "", "127.0.0.3, 127.0.0.2", trusted, "127.0.0.3"},
		{"bare remote addr", "198.51.100.4", "", "", nil, "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ExtractIP(r, tt.nets))
		})
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()

	var status []int
	h := rl.Middleware(nil, func(w http.ResponseWriter, code int, _ string) {
		w.WriteHeader(code)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "198.51.100.4:1111"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		status = append(status, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, status)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.5:1111"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code, "other clients keep their own bucket")
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(0.5, 1)
	defer rl.Stop()

	h := rl.Middleware(nil, func(w http.ResponseWriter, code int, _ string) {
		w.WriteHeader(code)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(apiKey string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "198.51.100.9:1111"
		if apiKey != "" {
			r.Header.Set("X-API-Key", apiKey)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusNoContent, send("").Code)
	w := send("")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	// Same IP, but an API key gets its own bucket.
	assert.Equal(t, http.StatusNoContent, send("k1").Code)
	assert.Equal(t, http.StatusNoContent, send("k2").Code)
	assert.Equal(t, 3, rl.Len())
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	base := time.Now()
	rl.now = func() time.Time { return base }

	rl.Allow("a")
	rl.Allow("b")
	rl.now = func() time.Time { return base.Add(2 * time.Minute) }
	rl.Allow("b")

	rl.now = func() time.Time { return base.Add(4 * time.Minute) }
	rl.sweep()
	assert.Equal(t, 1, rl.Len())
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:5555"
	assert.Equal(t, "ip:203.0.113.7", ClientKey(r, nil))

	r.Header.Set("X-API-Key", "secret")
	assert.Equal(t, "key:"+config.HashSecret("secret")[:16], ClientKey(r, nil))
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query         string
		page, perPage int
	}{
		{"", 1, 20},
		{"?page=3&per_page=100", 3, 100},
		{"?page=0&per_page=101", 1, 20},
		{"?page=x&per_page=y", 1, 20},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/alerts"+tt.query, nil)
		p := ParsePagination(r)
		assert.Equal(t, tt.page, p.Page, tt.query)
		assert.Equal(t, tt.perPage, p.PerPage, tt.query)
	}
}

func TestParsePathID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/sites/7/keywords", nil)
	r.SetPathValue("id", "7")
	id, err := ParseID(r)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	for _, v := range []string{"", "abc", "0", "-4"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetPathValue("id", v)
		_, err := ParsePathID(r, "id")
		assert.Error(t, err, "value %q", v)
	}
}

func TestParseQueryID(t *testing.T) {
	id, err := ParseQueryID(httptest.NewRequest(http.MethodGet, "/rankings", nil), "site_id")
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = ParseQueryID(httptest.NewRequest(http.MethodGet, "/rankings?site_id=12", nil), "site_id")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = ParseQueryID(httptest.NewRequest(http.MethodGet, "/rankings?site_id=nope", nil), "site_id")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header, want string
	}{
		{"Bearer s3cret", "s3cret"},
		{"bearer s3cret", "s3cret"},
		{"Bearer ", ""},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/cron/publish", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, BearerToken(r), tt.header)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetAPIKeyName(ctx))
	assert.Nil(t, GetAPIKey(ctx))

	key := &config.APIKeyConfig{Name: "ops"}
	ctx = context.WithValue(ctx, CtxKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, CtxKeyAPIKey, key)
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "ops", GetAPIKeyName(ctx))
	assert.Same(t, key, GetAPIKey(ctx))
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &StatusWriter{ResponseWriter: rec, Code: http.StatusOK}
	sw.WriteHeader(http.StatusConflict)
	assert.Equal(t, http.StatusConflict, sw.Code)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
