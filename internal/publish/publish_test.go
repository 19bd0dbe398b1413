package publish

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
	tmpFile, err := os.CreateTemp("", "rankwatch-publish-test-*.db")
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

type countingCache struct{ invalidations int }

func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return nil
}

type recordingAlerter struct{ alerts []*storage.Alert }

func (r *recordingAlerter) CreateAlert(_ context.Context, alertType, severity, title string, message *string, _ any) *storage.Alert {
	a := &storage.Alert{Type: alertType, Severity: severity, Title: title, Message: message}
	r.alerts = append(r.alerts, a)
	return a
}

func createPage(t *testing.T, store storage.Store, slug, status string, scheduled *time.Time) *storage.Page {
	t.Helper()
	p := &storage.Page{
		Slug:               slug,
		Title:              slug,
		RoutePattern:       "/services/[slug]",
		Status:             status,
		Content:            json.RawMessage(`{"body":"` + slug + `"}`),
		ScheduledPublishAt: scheduled,
	}
	require.NoError(t, store.CreatePage(context.Background(), p))
	return p
}

func ptr(t time.Time) *time.Time { return &t }

func TestSchedulePage(t *testing.T) {
	store := testStore(t)
	s := NewScheduler(store, nil, nil, nil, testLogger(), Options{})
	ctx := context.Background()

	draft := createPage(t, store, "draft", storage.PageDraft, nil)
	published := createPage(t, store, "live", storage.PagePublished, nil)
	future := time.Now().Add(24 * time.Hour).Truncate(time.Second).UTC()

	t.Run("draft with future time", func(t *testing.T) {
		res := s.SchedulePage(ctx, draft.ID, future)
		assert.True(t, res.Success)
		assert.Empty(t, res.Error)

		got, err := store.GetPage(ctx, draft.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ScheduledPublishAt)
		assert.True(t, future.Equal(*got.ScheduledPublishAt))
	})

	t.Run("published page rejected", func(t *testing.T) {
		res := s.SchedulePage(ctx, published.ID, future)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "draft")
		assert.Equal(t, ErrMsgNotDraft, res.Error)
	})

	t.Run("missing page", func(t *testing.T) {
		res := s.SchedulePage(ctx, 9999, future)
		assert.False(t, res.Success)
		assert.Equal(t, ErrMsgPageNotFound, res.Error)
	})

	t.Run("zero time", func(t *testing.T) {
		res := s.SchedulePage(ctx, draft.ID, time.Time{})
		assert.False(t, res.Success)
	})
}

func TestUnschedulePage(t *testing.T) {
	store := testStore(t)
	s := NewScheduler(store, nil, nil, nil, testLogger(), Options{})
	ctx := context.Background()

	draft := createPage(t, store, "draft", storage.PageDraft, ptr(time.Now().Add(time.Hour)))
	published := createPage(t, store, "live", storage.PagePublished, nil)

	assert.True(t, s.UnschedulePage(ctx, draft.ID))
	got, err := store.GetPage(ctx, draft.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ScheduledPublishAt)

	assert.False(t, s.UnschedulePage(ctx, published.ID))
	assert.False(t, s.UnschedulePage(ctx, 9999))
}

func TestPublishScheduledPages(t *testing.T) {
	var hookBody map[string][]string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewDecoder(r.Body).Decode(&hookBody)
	}))
	defer hook.Close()

	store := testStore(t)
	cache := &countingCache{}
	alerts := &recordingAlerter{}
	s := NewScheduler(store, cache, alerts, nil, testLogger(), Options{SitemapRevalidateURL: hook.URL})
	ctx := context.Background()

	now := time.Now().UTC()
	older := createPage(t, store, "older", storage.PageDraft, ptr(now.Add(-2*time.Hour)))
	newer := createPage(t, store, "newer", storage.PageDraft, ptr(now.Add(-time.Hour)))
	later := createPage(t, store, "later", storage.PageDraft, ptr(now.Add(time.Hour)))
	createPage(t, store, "unscheduled", storage.PageDraft, nil)

	sum, err := s.PublishScheduledPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Published)
	assert.Equal(t, []string{"older", "newer"}, sum.Slugs)
	assert.Empty(t, sum.Errors)
	assert.Equal(t, 1, cache.invalidations)
	assert.Equal(t, []string{"older", "newer"}, hookBody["published"])
	assert.Empty(t, alerts.alerts)

	for _, id := range []int64{older.ID, newer.ID} {
		p, err := store.GetPage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, storage.PagePublished, p.Status)
		versions, err := store.ListPageVersions(ctx, id)
		require.NoError(t, err)
		assert.Len(t, versions, 1, "exactly one snapshot per publish")
	}

	p, err := store.GetPage(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.PageDraft, p.Status)

	again, err := s.PublishScheduledPages(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Published)
	assert.Equal(t, 1, cache.invalidations, "no invalidation without a publish")
}

// staleDueStore returns pages from ListDuePages that have already been
// published, as a racing second publisher would see them.
type staleDueStore struct {
	storage.Store
	stale []*storage.Page
}

func (s *staleDueStore) ListDuePages(ctx context.Context, now time.Time) ([]*storage.Page, error) {
	due, err := s.Store.ListDuePages(ctx, now)
	if err != nil {
		return nil, err
	}
	return append(s.stale, due...), nil
}

func TestPublishAlreadyPublishedIsReported(t *testing.T) {
	base := testStore(t)
	ctx := context.Background()
	live := createPage(t, base, "already-live", storage.PagePublished, nil)
	createPage(t, base, "due", storage.PageDraft, ptr(time.Now().Add(-time.Minute)))

	alerts := &recordingAlerter{}
	s := NewScheduler(&staleDueStore{Store: base, stale: []*storage.Page{live}}, nil, alerts, nil, testLogger(), Options{})

	sum, err := s.PublishScheduledPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Published)
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, "already-live: page already published", sum.Errors[0])

	versions, err := base.ListPageVersions(ctx, live.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, alert.TypePublishFailed, alerts.alerts[0].Type)
}
