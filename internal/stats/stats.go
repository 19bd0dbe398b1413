// Package stats builds the read-only content dashboard numbers.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/y0f/rankwatch/internal/storage"
)

const (
	cacheKey        = "stats:overview"
	recentWindow    = 7 * 24 * time.Hour
	DefaultTTL      = 5 * time.Minute
	DefaultDripRate = 5
)

// RecentPage is a page published inside the recent window.
type RecentPage struct {
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	RoutePattern string    `json:"route_pattern"`
	PublishedAt  time.Time `json:"published_at"`
}

// Stats is the dashboard snapshot.
type Stats struct {
	Total             int64                    `json:"total"`
	Published         int64                    `json:"published"`
	Draft             int64                    `json:"draft"`
	Breakdown         []*storage.PageBreakdown `json:"breakdown"`
	RecentlyPublished []RecentPage             `json:"recently_published"`
	// EstimatedCompletion is when the remaining drafts are all published at
	// the drip rate. Nil when there are no drafts.
	EstimatedCompletion *time.Time `json:"estimated_completion"`
	DaysRemaining       int        `json:"days_remaining"`
	PagesRanking        int        `json:"pages_ranking"`
	GeneratedAt         time.Time  `json:"generated_at"`
}

type Aggregator struct {
	store    storage.Store
	cache    Cache
	ttl      time.Duration
	dripRate int
	logger   *slog.Logger
	now      func() time.Time
}

func NewAggregator(store storage.Store, cache Cache, ttl time.Duration, dripRate int, logger *slog.Logger) *Aggregator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if dripRate <= 0 {
		dripRate = DefaultDripRate
	}
	return &Aggregator{
		store:    store,
		cache:    cache,
		ttl:      ttl,
		dripRate: dripRate,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetStats returns the cached snapshot or builds a new one. Cache errors are
// logged and the snapshot is computed from the store.
func (a *Aggregator) GetStats(ctx context.Context) (*Stats, error) {
	if raw, ok, err := a.cache.Get(ctx, cacheKey); err != nil {
		a.logger.Warn("stats cache get", "error", err)
	} else if ok {
		var s Stats
		if err := json.Unmarshal(raw, &s); err == nil {
			return &s, nil
		}
	}

	s, err := a.compute(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(s); err == nil {
		if err := a.cache.Set(ctx, cacheKey, raw, a.ttl); err != nil {
			a.logger.Warn("stats cache set", "error", err)
		}
	}
	return s, nil
}

// Invalidate drops the cached snapshot.
func (a *Aggregator) Invalidate(ctx context.Context) error {
	return a.cache.Delete(ctx, cacheKey)
}

func (a *Aggregator) compute(ctx context.Context) (*Stats, error) {
	now := a.now()

	counts, err := a.store.CountPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	breakdown, err := a.store.PageBreakdowns(ctx)
	if err != nil {
		return nil, fmt.Errorf("page breakdown: %w", err)
	}
	recent, err := a.store.ListPublishedSince(ctx, now.Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("recently published: %w", err)
	}
	slugs, err := a.store.ListPublishedSlugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("published slugs: %w", err)
	}
	urls, err := a.store.ListRankingURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranking urls: %w", err)
	}

	s := &Stats{
		Total:             counts.Total,
		Published:         counts.Published,
		Draft:             counts.Draft,
		Breakdown:         breakdown,
		RecentlyPublished: make([]RecentPage, 0, len(recent)),
		PagesRanking:      CountPagesRanking(slugs, urls),
		GeneratedAt:       now,
	}
	if s.Breakdown == nil {
		s.Breakdown = []*storage.PageBreakdown{}
	}
	for _, p := range recent {
		rp := RecentPage{Slug: p.Slug, Title: p.Title, RoutePattern: p.RoutePattern}
		if p.PublishedAt != nil {
			rp.PublishedAt = *p.PublishedAt
		}
		s.RecentlyPublished = append(s.RecentlyPublished, rp)
	}
	s.EstimatedCompletion, s.DaysRemaining = EstimateCompletion(now, counts.Draft, a.dripRate)
	return s, nil
}

// EstimateCompletion returns the date the last of drafts is published at
// dripRate per day, and the number of days until then.
func EstimateCompletion(now time.Time, drafts int64, dripRate int) (*time.Time, int) {
	if drafts <= 0 || dripRate <= 0 {
		return nil, 0
	}
	days := int(math.Ceil(float64(drafts) / float64(dripRate)))
	y, m, d := now.Date()
	eta := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, days)
	return &eta, days
}

// CountPagesRanking counts slugs that appear as a substring of at least one
// ranking URL. A slug contained in a longer slug can match that page's URL
// too. The scan is O(slugs x urls).
func CountPagesRanking(slugs, urls []string) int {
	n := 0
	for _, slug := range slugs {
		if slug == "" {
			continue
		}
		for _, u := range urls {
			if strings.Contains(u, slug) {
				n++
				break
			}
		}
	}
	return n
}
