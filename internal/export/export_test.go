package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y0f/rankwatch/internal/storage"
)

func testStore(t *testing.T) storage.Store {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "rankwatch-export-test-*.db")
	require.NoError(t, err)
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := storage.NewSQLiteStore(tmpFile.Name(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var testColumns = []Column{
	{Key: "name", Label: "Name"},
	{Key: "note", Label: "Note"},
	{Key: "count", Label: "Count"},
}

func TestToCSVQuoting(t *testing.T) {
	out := ToCSV([]Record{
		{"name": "plain", "note": `He said "hi", bye`, "count": 3},
		{"name": "multi\nline", "note": nil, "count": 1.5},
	}, testColumns)

	lines := strings.SplitN(out, "\n", 2)
	assert.Equal(t, "Name,Note,Count", lines[0])
	assert.Contains(t, out, `plain,"He said ""hi"", bye",3`)
	assert.Contains(t, out, "\"multi\nline\",,1.5")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestToCSVRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	records := []Record{
		{"name": "a,b", "note": "x\r\ny", "count": true},
		{"name": `q"uote`, "note": created, "count": int64(42)},
		{"name": "map", "note": map[string]int{"k": 1}, "count": nil},
	}

	r := csv.NewReader(strings.NewReader(ToCSV(records, testColumns)))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"Name", "Note", "Count"}, rows[0])
	assert.Equal(t, []string{"a,b", "x\ny", "true"}, rows[1]) // encoding/csv normalizes \r\n inside quotes
	assert.Equal(t, []string{`q"uote`, "2026-03-04T05:06:07Z", "42"}, rows[2])
	assert.Equal(t, []string{"map", `{"k":1}`, ""}, rows[3])
}

func TestToCSVEmpty(t *testing.T) {
	assert.Equal(t, "Name,Note,Count", ToCSV(nil, testColumns))
}

func TestToJSON(t *testing.T) {
	out, err := ToJSON([]Record{{"n": 1}})
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"n\": 1\n  }\n]", out)

	out, err = ToJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestLoadRankings(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	site := &storage.Site{Domain: "example.com", Name: "Example", Active: true}
	require.NoError(t, store.CreateSite(ctx, site))
	kw := &storage.Keyword{SiteID: site.ID, Keyword: "best widgets", Active: true}
	require.NoError(t, store.CreateKeyword(ctx, kw))

	pos, url := 4, "https://example.com/widgets"
	require.NoError(t, store.UpsertRanking(ctx, &storage.Ranking{
		KeywordID: kw.ID, Date: "2026-03-01", Position: &pos, URL: &url, RawResult: []byte(`{}`),
	}))
	require.NoError(t, store.UpsertRanking(ctx, &storage.Ranking{
		KeywordID: kw.ID, Date: "2026-03-02", RawResult: []byte(`{}`),
	}))

	recs, cols, err := Load(ctx, store, DatasetRankings, Query{SiteID: site.ID})
	require.NoError(t, err)
	assert.Equal(t, RankingColumns, cols)
	require.Len(t, recs, 2)

	byDate := map[string]Record{}
	for _, r := range recs {
		byDate[r["date"].(string)] = r
	}
	assert.Equal(t, 4, byDate["2026-03-01"]["position"])
	assert.Equal(t, url, byDate["2026-03-01"]["url"])
	assert.Nil(t, byDate["2026-03-02"]["position"])
	assert.Equal(t, "best widgets", byDate["2026-03-02"]["keyword"])
}

func TestLoadAlertsJSON(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	msg := "3 broken links"
	require.NoError(t, store.CreateAlert(ctx, &storage.Alert{
		Type: "broken_link", Severity: "warning", Title: "Broken links", Message: &msg,
		Metadata: []byte(`{"broken":3}`), Status: "active",
	}))

	recs, _, err := Load(ctx, store, DatasetAlerts, Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	out, err := ToJSON(recs)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "broken_link", decoded[0]["type"])
	assert.Equal(t, map[string]any{"broken": float64(3)}, decoded[0]["metadata"])
	assert.Nil(t, decoded[0]["resolved_at"])
}

func TestLoadUnknownDataset(t *testing.T) {
	_, _, err := Load(context.Background(), testStore(t), "monitors", Query{})
	assert.True(t, errors.Is(err, ErrUnknownDataset))
}
