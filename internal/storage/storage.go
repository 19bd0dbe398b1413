package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("already exists")
	// ErrAlreadyPublished is returned by PublishPage when the page is not a draft.
	ErrAlreadyPublished = errors.New("page already published")
	// ErrNotDraft is returned when a draft-only mutation targets a published page.
	ErrNotDraft = errors.New("page is not a draft")
)

// Store defines the complete storage interface. Lookups of a single row
// return sql.ErrNoRows when nothing matches.
type Store interface {
	// Sites
	CreateSite(ctx context.Context, s *Site) error
	GetSite(ctx context.Context, id int64) (*Site, error)
	ListSites(ctx context.Context) ([]*Site, error)
	SetSiteActive(ctx context.Context, id int64, active bool) error

	// Keywords
	CreateKeyword(ctx context.Context, k *Keyword) error
	GetKeyword(ctx context.Context, id int64) (*Keyword, error)
	ListKeywords(ctx context.Context, siteID int64) ([]*Keyword, error)
	SetKeywordActive(ctx context.Context, id int64, active bool) error
	ListActiveKeywords(ctx context.Context) ([]*ActiveKeyword, error)

	// Rankings
	UpsertRanking(ctx context.Context, r *Ranking) error
	GetRanking(ctx context.Context, keywordID int64, date string) (*Ranking, error)
	GetPreviousRanking(ctx context.Context, keywordID int64, before string) (*Ranking, error)
	ListRankings(ctx context.Context, f RankingFilter, p Pagination) (*PaginatedResult, error)
	ListRankingURLs(ctx context.Context) ([]string, error)

	// Pages
	CreatePage(ctx context.Context, p *Page) error
	GetPage(ctx context.Context, id int64) (*Page, error)
	GetPageBySlug(ctx context.Context, slug string) (*Page, error)
	ListPages(ctx context.Context, f PageFilter, p Pagination) (*PaginatedResult, error)
	ListPublishedPages(ctx context.Context) ([]*Page, error)
	ListDuePages(ctx context.Context, now time.Time) ([]*Page, error)
	ListPublishedSince(ctx context.Context, since time.Time) ([]*Page, error)
	ListPublishedSlugs(ctx context.Context) ([]string, error)
	SetPageSchedule(ctx context.Context, id int64, at *time.Time) error
	PublishPage(ctx context.Context, id int64, at time.Time) (*PageVersion, error)
	ListPageVersions(ctx context.Context, pageID int64) ([]*PageVersion, error)
	CountPages(ctx context.Context) (*PageCounts, error)
	PageBreakdowns(ctx context.Context) ([]*PageBreakdown, error)

	// Link checks
	InsertLinkChecks(ctx context.Context, checks []*LinkCheck) error
	ListLinkChecks(ctx context.Context, f LinkCheckFilter, p Pagination) (*PaginatedResult, error)

	// Alerts
	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id int64) (*Alert, error)
	ListAlerts(ctx context.Context, statuses []string, p Pagination) (*PaginatedResult, error)
	AcknowledgeAlert(ctx context.Context, id int64, at time.Time) (bool, error)
	ResolveAlert(ctx context.Context, id int64, at time.Time) (bool, error)

	// Job runs
	InsertJobRun(ctx context.Context, r *JobRun) error
	ListJobRuns(ctx context.Context, job string, p Pagination) (*PaginatedResult, error)

	// Data retention
	PurgeOldLinkChecks(ctx context.Context, before time.Time) (int64, error)
	PurgeOldJobRuns(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Close() error
}
