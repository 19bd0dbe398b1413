package linkcheck

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y0f/rankwatch/internal/alert"
	"github.com/y0f/rankwatch/internal/storage"
)

func testStore(t *testing.T) storage.Store {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "rankwatch-linkcheck-test-*.db")
	require.NoError(t, err)
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store, err := storage.NewSQLiteStore(tmpFile.Name(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func targetServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProberClassification(t *testing.T) {
	srv := targetServer(t)
	p := NewHTTPProber(300*time.Millisecond, "rankwatch-test", true)
	ctx := context.Background()

	notFound := p.Probe(ctx, srv.URL+"/missing")
	require.NotNil(t, notFound.StatusCode)
	assert.Equal(t, 404, *notFound.StatusCode)
	assert.True(t, notFound.Broken())

	ok := p.Probe(ctx, srv.URL+"/ok")
	require.NotNil(t, ok.StatusCode)
	assert.Equal(t, 200, *ok.StatusCode)
	assert.False(t, ok.Broken())

	redirected := p.Probe(ctx, srv.URL+"/moved")
	require.NotNil(t, redirected.StatusCode)
	assert.Equal(t, 200, *redirected.StatusCode, "redirects are followed")

	timeout := p.Probe(ctx, srv.URL+"/slow")
	assert.Nil(t, timeout.StatusCode)
	assert.Error(t, timeout.Err)
	assert.True(t, timeout.Broken())
}

func TestHTTPProberBlocksPrivateTargets(t *testing.T) {
	srv := targetServer(t)
	p := NewHTTPProber(time.Second, "", false)

	res := p.Probe(context.Background(), srv.URL+"/ok")
	assert.Nil(t, res.StatusCode)
	assert.True(t, res.Broken())
	assert.ErrorContains(t, res.Err, "blocked")
}

type recordingAlerter struct {
	alerts []*storage.Alert
	fail   bool
}

func (r *recordingAlerter) CreateAlert(_ context.Context, alertType, severity, title string, message *string, _ any) *storage.Alert {
	if r.fail {
		return nil
	}
	a := &storage.Alert{Type: alertType, Severity: severity, Title: title, Message: message}
	r.alerts = append(r.alerts, a)
	return a
}

func createPage(t *testing.T, store storage.Store, slug, status string, doc any) *storage.Page {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	p := &storage.Page{Slug: slug, Title: slug, RoutePattern: "/services/[slug]", Status: status, Content: raw}
	require.NoError(t, store.CreatePage(context.Background(), p))
	return p
}

func TestRunLinkHealthCheck(t *testing.T) {
	srv := targetServer(t)
	store := testStore(t)
	createPage(t, store, "plumbing", storage.PagePublished, map[string]any{
		"intro": "Call us or visit " + srv.URL + "/ok.",
		"links": []any{srv.URL + "/missing", map[string]any{"href": srv.URL + "/ok"}},
	})
	createPage(t, store, "drains", storage.PagePublished, map[string]any{
		"body": []any{"see " + srv.URL + "/slow", 42, nil},
	})
	createPage(t, store, "draft-page", storage.PageDraft, map[string]any{
		"body": srv.URL + "/missing",
	})

	alerts := &recordingAlerter{}
	a := NewAuditor(store, NewHTTPProber(300*time.Millisecond, "", true), alerts, nil, testLogger(), Options{})

	rep, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Pages)
	assert.Equal(t, 3, rep.Checked, "duplicate URL on a page is probed once")
	assert.Equal(t, 2, rep.Broken)

	res, err := store.ListLinkChecks(context.Background(), storage.LinkCheckFilter{RunID: rep.RunID}, storage.Pagination{Page: 1, PerPage: 50})
	require.NoError(t, err)
	checks := res.Data.([]*storage.LinkCheck)
	require.Len(t, checks, 3)

	byURL := map[string]*storage.LinkCheck{}
	for _, c := range checks {
		byURL[c.TargetURL] = c
	}
	require.Contains(t, byURL, srv.URL+"/slow")
	assert.Nil(t, byURL[srv.URL+"/slow"].StatusCode)
	assert.True(t, byURL[srv.URL+"/slow"].IsBroken)
	assert.NotEmpty(t, byURL[srv.URL+"/slow"].Error)
	assert.False(t, byURL[srv.URL+"/ok"].IsBroken)
	assert.Equal(t, 404, *byURL[srv.URL+"/missing"].StatusCode)

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, alert.TypeBrokenLink, alerts.alerts[0].Type)
	assert.Equal(t, alert.SeverityWarning, alerts.alerts[0].Severity)
}

func TestRunLinkHealthCheckAppendsHistory(t *testing.T) {
	srv := targetServer(t)
	store := testStore(t)
	createPage(t, store, "plumbing", storage.PagePublished, map[string]any{"a": srv.URL + "/missing"})

	a := NewAuditor(store, NewHTTPProber(time.Second, "", true), nil, nil, testLogger(), Options{})
	for i := 0; i < 2; i++ {
		n, err := a.RunLinkHealthCheck(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	res, err := store.ListLinkChecks(context.Background(), storage.LinkCheckFilter{SourceSlug: "plumbing"}, storage.Pagination{Page: 1, PerPage: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
}

func TestAlertFailureDoesNotChangeCount(t *testing.T) {
	srv := targetServer(t)
	store := testStore(t)
	createPage(t, store, "plumbing", storage.PagePublished, map[string]any{"a": srv.URL + "/missing"})

	a := NewAuditor(store, NewHTTPProber(time.Second, "", true), &recordingAlerter{fail: true}, nil, testLogger(), Options{})
	n, err := a.RunLinkHealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNoAlertWhenAllHealthy(t *testing.T) {
	srv := targetServer(t)
	store := testStore(t)
	createPage(t, store, "plumbing", storage.PagePublished, map[string]any{"a": srv.URL + "/ok"})

	alerts := &recordingAlerter{}
	a := NewAuditor(store, NewHTTPProber(time.Second, "", true), alerts, nil, testLogger(), Options{})
	n, err := a.RunLinkHealthCheck(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, alerts.alerts)
}

func TestCheckPageLinks(t *testing.T) {
	srv := targetServer(t)
	store := testStore(t)
	createPage(t, store, "drains", storage.PageDraft, map[string]any{"a": srv.URL + "/ok", "b": srv.URL + "/missing"})

	a := NewAuditor(store, NewHTTPProber(time.Second, "", true), nil, nil, testLogger(), Options{})
	checks, err := a.CheckPageLinks(context.Background(), "drains")
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.Equal(t, checks[0].RunID, checks[1].RunID)
	assert.False(t, checks[0].IsBroken)
	assert.True(t, checks[1].IsBroken)

	_, err = a.CheckPageLinks(context.Background(), "nope")
	assert.Error(t, err)
}
