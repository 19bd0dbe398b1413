// Package serp queries a search-engine-results API for the organic ranking
// of a domain under a keyword.
package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxBodyRead = 4 << 20 // 4MB, a 100-result page is well under this

// ErrMissingAPIKey is returned before any request is made when no API key is
// configured. Callers treat it as fatal for the whole batch.
var ErrMissingAPIKey = errors.New("serp: api key not configured")

// APIError is a failed query: either a non-2xx response or an error reported
// inside the response body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.Message != "" {
		return fmt.Sprintf("serp api returned %d: %s", e.StatusCode, e.Message)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("serp api returned %d", e.StatusCode)
	}
	return "serp api error: " + e.Message
}

type Options struct {
	APIKey   string
	Endpoint string
	Engine   string
	Region   string
	Language string
	Num      int
	Timeout  time.Duration
}

type Client struct {
	opts Options
	http *http.Client
}

// NewClient builds a client. hc may be nil, in which case a client with
// opts.Timeout is used.
func NewClient(opts Options, hc *http.Client) *Client {
	if opts.Engine == "" {
		opts.Engine = "google"
	}
	if opts.Num <= 0 {
		opts.Num = 100
	}
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{opts: opts, http: hc}
}

// OrganicResult is one unpaid result entry.
type OrganicResult struct {
	Position int    `json:"position"`
	Link     string `json:"link"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

type searchResponse struct {
	OrganicResults    []OrganicResult `json:"organic_results"`
	Error             string          `json:"error"`
	SearchInformation json.RawMessage `json:"search_information,omitempty"`
}

// Result is the ranking of a domain for one keyword. Position, URL and
// Snippet are all nil when the domain was not in the result window.
type Result struct {
	Position *int
	URL      *string
	Snippet  *string
	// Raw is a trimmed copy of the response kept for audit: the matching
	// entry, the window size and the engine's search information block.
	Raw json.RawMessage
}

type rawSummary struct {
	Matched           *OrganicResult  `json:"matched"`
	ResultCount       int             `json:"result_count"`
	SearchInformation json.RawMessage `json:"search_information,omitempty"`
}

// CheckKeywordRanking issues one query and returns the first organic result
// whose link contains domain.
func (c *Client) CheckKeywordRanking(ctx context.Context, keyword, domain string) (*Result, error) {
	if c.opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.New("serp: keyword is required")
	}

	resp, err := c.search(ctx, keyword)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	summary := rawSummary{ResultCount: len(resp.OrganicResults), SearchInformation: resp.SearchInformation}
	if match, pos := Match(resp.OrganicResults, domain); match != nil {
		link, snippet := match.Link, match.Snippet
		res.Position = &pos
		res.URL = &link
		res.Snippet = &snippet
		summary.Matched = match
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("serp: encode raw result: %w", err)
	}
	res.Raw = raw
	return res, nil
}

// Match returns the first result in rank order whose link contains domain,
// along with its position. A result without a position takes its 1-based
// index in the list.
func Match(results []OrganicResult, domain string) (*OrganicResult, int) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, 0
	}
	for i := range results {
		if strings.Contains(strings.ToLower(results[i].Link), domain) {
			pos := results[i].Position
			if pos <= 0 {
				pos = i + 1
			}
			return &results[i], pos
		}
	}
	return nil, 0
}

func (c *Client) search(ctx context.Context, keyword string) (*searchResponse, error) {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("engine", c.opts.Engine)
	if c.opts.Region != "" {
		q.Set("gl", c.opts.Region)
	}
	if c.opts.Language != "" {
		q.Set("hl", c.opts.Language)
	}
	q.Set("num", strconv.Itoa(c.opts.Num))
	q.Set("api_key", c.opts.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("serp: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serp: request failed: %w", redactKey(err, c.opts.APIKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return nil, fmt.Errorf("serp: read response: %w", err)
	}

	var out searchResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("serp: decode response: %w", decodeErr)
	}
	if out.Error != "" {
		return nil, &APIError{Message: out.Error}
	}
	return &out, nil
}

// redactKey strips the api key from transport errors, which embed the URL.
func redactKey(err error, key string) error {
	msg := err.Error()
	if key == "" || !strings.Contains(msg, key) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, key, "REDACTED"))
}
