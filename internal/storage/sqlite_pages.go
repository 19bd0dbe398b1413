package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const pageColumns = `id, slug, title, route_pattern, tier, status, content,
	scheduled_publish_at, published_at, created_at, updated_at`

func scanPage(row scanner) (*Page, error) {
	var p Page
	var content, createdAt, updatedAt string
	var scheduled, published sql.NullString
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.RoutePattern, &p.Tier, &p.Status, &content,
		&scheduled, &published, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Content = []byte(content)
	p.ScheduledPublishAt = parseTimePtr(scheduled)
	p.PublishedAt = parseTimePtr(published)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func scanPages(rows *sql.Rows) ([]*Page, error) {
	defer rows.Close()
	pages := []*Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *SQLiteStore) CreatePage(ctx context.Context, p *Page) error {
	now := formatTime(time.Now())
	if p.Status == "" {
		p.Status = PageDraft
	}
	content := string(p.Content)
	if content == "" {
		content = "{}"
	}
	res, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO seo_pages (slug, title, route_pattern, tier, status, content, scheduled_publish_at, published_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Slug, p.Title, p.RoutePattern, p.Tier, p.Status, content,
		formatTimePtr(p.ScheduledPublishAt), formatTimePtr(p.PublishedAt), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	id, _ := res.LastInsertId()
	p.ID = id
	p.Content = []byte(content)
	p.CreatedAt = parseTime(now)
	p.UpdatedAt = parseTime(now)
	return nil
}

func (s *SQLiteStore) GetPage(ctx context.Context, id int64) (*Page, error) {
	return scanPage(s.readDB.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM seo_pages WHERE id=?`, id))
}

func (s *SQLiteStore) GetPageBySlug(ctx context.Context, slug string) (*Page, error) {
	return scanPage(s.readDB.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM seo_pages WHERE slug=?`, slug))
}

func (s *SQLiteStore) ListPages(ctx context.Context, f PageFilter, p Pagination) (*PaginatedResult, error) {
	where := "1=1"
	args := []any{}
	if f.Status != "" {
		where += " AND status=?"
		args = append(args, f.Status)
	}
	if f.RoutePattern != "" {
		where += " AND route_pattern=?"
		args = append(args, f.RoutePattern)
	}

	var total int64
	if err := s.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM seo_pages WHERE "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	args = append(args, p.PerPage, offsetOf(p))
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM seo_pages WHERE `+where+` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	pages, err := scanPages(rows)
	if err != nil {
		return nil, err
	}

	return &PaginatedResult{
		Data:       pages,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages(total, p.PerPage),
	}, nil
}

// ListPublishedPages loads every published page with its content in one query.
func (s *SQLiteStore) ListPublishedPages(ctx context.Context) ([]*Page, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM seo_pages WHERE status='published' ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	return scanPages(rows)
}

// ListDuePages returns drafts whose scheduled publish time is at or before now,
// oldest schedule first.
func (s *SQLiteStore) ListDuePages(ctx context.Context, now time.Time) ([]*Page, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM seo_pages
		 WHERE status='draft' AND scheduled_publish_at IS NOT NULL AND scheduled_publish_at <= ?
		 ORDER BY scheduled_publish_at, id`, formatTime(now))
	if err != nil {
		return nil, err
	}
	return scanPages(rows)
}

func (s *SQLiteStore) ListPublishedSince(ctx context.Context, since time.Time) ([]*Page, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM seo_pages
		 WHERE status='published' AND published_at >= ?
		 ORDER BY published_at DESC`, formatTime(since))
	if err != nil {
		return nil, err
	}
	return scanPages(rows)
}

func (s *SQLiteStore) ListPublishedSlugs(ctx context.Context) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT slug FROM seo_pages WHERE status='published' ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// SetPageSchedule sets or clears (at == nil) the scheduled publish time of a
// draft. It returns ErrNotDraft when the page exists but is not a draft.
func (s *SQLiteStore) SetPageSchedule(ctx context.Context, id int64, at *time.Time) error {
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE seo_pages SET scheduled_publish_at=?, updated_at=? WHERE id=? AND status='draft'`,
		formatTimePtr(at), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	var status string
	if err := s.writeDB.QueryRowContext(ctx, `SELECT status FROM seo_pages WHERE id=?`, id).Scan(&status); err != nil {
		return err
	}
	return ErrNotDraft
}

// PublishPage flips a draft to published and writes the next version
// snapshot in a single transaction. A page that is already published yields
// ErrAlreadyPublished and nothing is written.
func (s *SQLiteStore) PublishPage(ctx context.Context, id int64, at time.Time) (*PageVersion, error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(at)
	res, err := tx.ExecContext(ctx,
		`UPDATE seo_pages SET status='published', published_at=?, updated_at=? WHERE id=? AND status='draft'`,
		ts, ts, id)
	if err != nil {
		return nil, fmt.Errorf("update page status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update page status: %w", err)
	}
	if n == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM seo_pages WHERE id=?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		if err != nil {
			return nil, fmt.Errorf("read page status: %w", err)
		}
		return nil, ErrAlreadyPublished
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM page_versions WHERE page_id=?`, id).Scan(&next); err != nil {
		return nil, fmt.Errorf("next version: %w", err)
	}

	v := &PageVersion{PageID: id, Version: next}
	var content string
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO page_versions (page_id, version, content, created_at)
		 SELECT id, ?, content, ? FROM seo_pages WHERE id=?
		 RETURNING id, content`, next, ts, id).Scan(&v.ID, &content); err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	v.Content = []byte(content)
	v.CreatedAt = parseTime(ts)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit publish: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) ListPageVersions(ctx context.Context, pageID int64) ([]*PageVersion, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, page_id, version, content, created_at FROM page_versions WHERE page_id=? ORDER BY version`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []*PageVersion{}
	for rows.Next() {
		var v PageVersion
		var content, createdAt string
		if err := rows.Scan(&v.ID, &v.PageID, &v.Version, &content, &createdAt); err != nil {
			return nil, err
		}
		v.Content = []byte(content)
		v.CreatedAt = parseTime(createdAt)
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStore) CountPages(ctx context.Context) (*PageCounts, error) {
	var c PageCounts
	err := s.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status='published' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status='draft' THEN 1 ELSE 0 END), 0)
		 FROM seo_pages`).Scan(&c.Total, &c.Published, &c.Draft)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) PageBreakdowns(ctx context.Context) ([]*PageBreakdown, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT route_pattern, tier, status, COUNT(*)
		 FROM seo_pages GROUP BY route_pattern, tier, status
		 ORDER BY route_pattern, tier, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*PageBreakdown{}
	for rows.Next() {
		var b PageBreakdown
		if err := rows.Scan(&b.RoutePattern, &b.Tier, &b.Status, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
