// Package analytics summarises a keyword's ranking history.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/y0f/rankwatch/internal/storage"
)

const pageSize = 500

// KeywordMetrics holds computed position metrics for a keyword over a date
// range. Position fields are nil when the domain never ranked in range.
type KeywordMetrics struct {
	KeywordID     int64    `json:"keyword_id"`
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
	DaysChecked   int      `json:"days_checked"`
	DaysFound     int      `json:"days_found"`
	VisibilityPct float64  `json:"visibility_pct"`
	Best          *int     `json:"best"`
	Worst         *int     `json:"worst"`
	Average       *float64 `json:"average"`
	Median        *float64 `json:"median"`
	Latest        *int     `json:"latest"`
	LatestDate    string   `json:"latest_date,omitempty"`
	// Change is first found position minus latest, so a climb is positive.
	// Nil unless the latest check found the domain.
	Change *int `json:"change"`
}

// ComputeKeywordMetrics calculates metrics for a keyword over [from, to].
// Empty bounds are open.
func ComputeKeywordMetrics(ctx context.Context, store storage.Store, keywordID int64, from, to string) (*KeywordMetrics, error) {
	rows, err := history(ctx, store, storage.RankingFilter{KeywordID: keywordID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	m := Summarize(rows)
	m.KeywordID = keywordID
	m.From, m.To = from, to
	return m, nil
}

// history returns every ranking matching f, oldest day first.
func history(ctx context.Context, store storage.Store, f storage.RankingFilter) ([]*storage.Ranking, error) {
	var out []*storage.Ranking
	for page := 1; ; page++ {
		res, err := store.ListRankings(ctx, f, storage.Pagination{Page: page, PerPage: pageSize})
		if err != nil {
			return nil, fmt.Errorf("list rankings: %w", err)
		}
		rows, _ := res.Data.([]*storage.Ranking)
		out = append(out, rows...)
		if page >= res.TotalPages {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Summarize computes metrics from rankings ordered oldest first.
func Summarize(rows []*storage.Ranking) *KeywordMetrics {
	m := &KeywordMetrics{DaysChecked: len(rows)}
	if len(rows) == 0 {
		return m
	}

	var positions []int
	for _, r := range rows {
		if r.Position != nil {
			positions = append(positions, *r.Position)
		}
	}
	m.DaysFound = len(positions)
	m.VisibilityPct = float64(m.DaysFound) / float64(m.DaysChecked) * 100

	last := rows[len(rows)-1]
	m.LatestDate = last.Date
	m.Latest = last.Position

	if len(positions) == 0 {
		return m
	}
	if last.Position != nil {
		change := positions[0] - *last.Position
		m.Change = &change
	}

	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	best, worst := sorted[0], sorted[len(sorted)-1]
	m.Best, m.Worst = &best, &worst

	sum := 0
	for _, p := range sorted {
		sum += p
	}
	avg := float64(sum) / float64(len(sorted))
	m.Average = &avg

	med := median(sorted)
	m.Median = &med
	return m
}

func median(sorted []int) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}
