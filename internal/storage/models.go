package storage

import (
	"encoding/json"
	"time"
)

// Page status values.
const (
	PageDraft     = "draft"
	PagePublished = "published"
)

// Batch job names recorded on JobRun.
const (
	JobRankCheck  = "rank_check"
	JobPublish    = "publish"
	JobLinkHealth = "link_health"
)

// Site is a tracked domain.
type Site struct {
	ID        int64     `json:"id"`
	Domain    string    `json:"domain"` // bare host, no scheme
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Keyword is a search phrase tracked for exactly one site.
type Keyword struct {
	ID        int64     `json:"id"`
	SiteID    int64     `json:"site_id"`
	Keyword   string    `json:"keyword"` // trimmed, lower-cased
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveKeyword is a keyword joined with its owning site. Only rows where
// both the keyword and the site are active are ever loaded into this shape.
type ActiveKeyword struct {
	KeywordID int64
	Keyword   string
	SiteID    int64
	Domain    string
}

// Ranking is one observation of a keyword's position on a calendar day.
// Position and URL are both nil when the domain was not in the result window.
type Ranking struct {
	ID        int64           `json:"id"`
	KeywordID int64           `json:"keyword_id"`
	Date      string          `json:"date"` // YYYY-MM-DD, site-local
	Position  *int            `json:"position"`
	URL       *string         `json:"url"`
	RawResult json.RawMessage `json:"raw_result,omitempty"`
	CheckedAt time.Time       `json:"checked_at"`

	// Joined fields (not stored on the row)
	Keyword string `json:"keyword,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// RankingFilter narrows ranking history queries.
type RankingFilter struct {
	SiteID    int64
	KeywordID int64
	From      string // inclusive YYYY-MM-DD
	To        string // inclusive YYYY-MM-DD
}

// Page is a programmatic SEO page.
type Page struct {
	ID                 int64           `json:"id"`
	Slug               string          `json:"slug"`
	Title              string          `json:"title"`
	RoutePattern       string          `json:"route_pattern"`
	Tier               string          `json:"tier,omitempty"`
	Status             string          `json:"status"` // draft, published
	Content            json.RawMessage `json:"content"`
	ScheduledPublishAt *time.Time      `json:"scheduled_publish_at,omitempty"`
	PublishedAt        *time.Time      `json:"published_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PageFilter narrows page listings.
type PageFilter struct {
	Status       string
	RoutePattern string
}

// PageVersion is the immutable snapshot written when a page is published.
type PageVersion struct {
	ID        int64           `json:"id"`
	PageID    int64           `json:"page_id"`
	Version   int             `json:"version"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// PageBreakdown counts pages for one (route pattern, tier, status) group.
type PageBreakdown struct {
	RoutePattern string `json:"route_pattern"`
	Tier         string `json:"tier,omitempty"`
	Status       string `json:"status"`
	Count        int64  `json:"count"`
}

// PageCounts holds the headline page totals.
type PageCounts struct {
	Total     int64 `json:"total"`
	Published int64 `json:"published"`
	Draft     int64 `json:"draft"`
}

// LinkCheck is one probe of one URL found on one page during one run.
type LinkCheck struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	SourceSlug string    `json:"source_slug"`
	TargetURL  string    `json:"target_url"`
	StatusCode *int      `json:"status_code"`
	IsBroken   bool      `json:"is_broken"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// LinkCheckFilter narrows link check history queries.
type LinkCheckFilter struct {
	RunID      string
	SourceSlug string
	BrokenOnly bool
}

// Alert is an operational alert raised by one of the batch jobs.
type Alert struct {
	ID             int64           `json:"id"`
	Type           string          `json:"type"`     // ranking_drop, ranking_lost, publish_failed, quality_gate_spike, broken_link
	Severity       string          `json:"severity"` // info, warning, critical
	Title          string          `json:"title"`
	Message        *string         `json:"message"`
	Metadata       json.RawMessage `json:"metadata"`
	Status         string          `json:"status"` // active, acknowledged, resolved
	CreatedAt      time.Time       `json:"created_at"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at"`
}

// JobRun records the outcome of one batch invocation.
type JobRun struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Job        string    `json:"job"` // rank_check, publish, link_health
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Errors     []string  `json:"errors"`
}

// Pagination contains parameters for list queries.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// PaginatedResult wraps a list response with metadata.
type PaginatedResult struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}
