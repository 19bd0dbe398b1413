package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/y0f/rankwatch/internal/safenet"
)

// ProbeResult is the outcome of one probe. StatusCode is nil when no
// response was received.
type ProbeResult struct {
	StatusCode *int
	Err        error
}

// Broken reports whether the target counts as a broken link.
func (r ProbeResult) Broken() bool {
	return r.StatusCode == nil || *r.StatusCode >= 400
}

// Prober checks one URL.
type Prober interface {
	Probe(ctx context.Context, url string) ProbeResult
}

// HTTPProber issues a single HEAD request per URL, following redirects.
type HTTPProber struct {
	client    *http.Client
	userAgent string
}

func NewHTTPProber(timeout time.Duration, userAgent string, allowPrivate bool) *HTTPProber {
	return &HTTPProber{
		client:    safenet.NewClient(timeout, allowPrivate),
		userAgent: userAgent,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ProbeResult{Err: fmt.Errorf("invalid request: %w", err)}
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	code := resp.StatusCode
	return ProbeResult{StatusCode: &code}
}
