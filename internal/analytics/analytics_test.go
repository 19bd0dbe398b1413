package analytics

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y0f/rankwatch/internal/storage"
)

func testStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "rankwatch-analytics-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := storage.NewSQLiteStore(tmpFile.Name(), 2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func intp(v int) *int { return &v }

func TestComputeKeywordMetrics(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	site := &storage.Site{Domain: "example.com", Name: "Example", Active: true}
	require.NoError(t, store.CreateSite(ctx, site))
	kw := &storage.Keyword{SiteID: site.ID, Keyword: "emergency plumber", Active: true}
	require.NoError(t, store.CreateKeyword(ctx, kw))

	// Days 1..6: 12, 9, not found, 5, 7, 4. Day 7 is outside the range.
	positions := []*int{intp(12), intp(9), nil, intp(5), intp(7), intp(4), intp(1)}
	for i, p := range positions {
		require.NoError(t, store.UpsertRanking(ctx, &storage.Ranking{
			KeywordID: kw.ID, Date: fmt.Sprintf("2026-03-%02d", i+1), Position: p, RawResult: []byte(`{}`),
		}))
	}

	m, err := ComputeKeywordMetrics(ctx, store, kw.ID, "2026-03-01", "2026-03-06")
	require.NoError(t, err)

	assert.Equal(t, kw.ID, m.KeywordID)
	assert.Equal(t, 6, m.DaysChecked)
	assert.Equal(t, 5, m.DaysFound)
	assert.InDelta(t, 83.33, m.VisibilityPct, 0.01)
	assert.Equal(t, 4, *m.Best)
	assert.Equal(t, 12, *m.Worst)
	assert.InDelta(t, 7.4, *m.Average, 0.001)
	assert.Equal(t, 7.0, *m.Median)
	assert.Equal(t, 4, *m.Latest)
	assert.Equal(t, "2026-03-06", m.LatestDate)
	assert.Equal(t, 8, *m.Change)
}

func TestSummarizeNeverFound(t *testing.T) {
	m := Summarize([]*storage.Ranking{{Date: "2026-03-01"}, {Date: "2026-03-02"}})
	assert.Equal(t, 2, m.DaysChecked)
	assert.Zero(t, m.DaysFound)
	assert.Zero(t, m.VisibilityPct)
	assert.Nil(t, m.Best)
	assert.Nil(t, m.Average)
	assert.Nil(t, m.Latest)
	assert.Nil(t, m.Change)
	assert.Equal(t, "2026-03-02", m.LatestDate)
}

func TestSummarizeLostLatest(t *testing.T) {
	m := Summarize([]*storage.Ranking{
		{Date: "2026-03-01", Position: intp(3)},
		{Date: "2026-03-02", Position: intp(6)},
		{Date: "2026-03-03"},
	})
	assert.Nil(t, m.Latest)
	assert.Nil(t, m.Change)
	assert.Equal(t, 4.5, *m.Median)
}

func TestSummarizeEmpty(t *testing.T) {
	m := Summarize(nil)
	assert.Zero(t, m.DaysChecked)
	assert.Empty(t, m.LatestDate)
}
