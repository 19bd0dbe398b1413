package storage

import (
	"context"
	"database/sql"
	"time"
)

// UpsertRanking writes the observation for (keyword_id, date), replacing any
// earlier observation for the same day.
func (s *SQLiteStore) UpsertRanking(ctx context.Context, r *Ranking) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	checkedAt := formatTime(r.CheckedAt)
	var position, url any
	if r.Position != nil {
		position = *r.Position
	}
	if r.URL != nil {
		url = *r.URL
	}
	err := s.writeDB.QueryRowContext(ctx,
		`INSERT INTO ranking_history (keyword_id, date, position, url, raw_result, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(keyword_id, date) DO UPDATE SET
			position=excluded.position,
			url=excluded.url,
			raw_result=excluded.raw_result,
			checked_at=excluded.checked_at
		 RETURNING id`,
		r.KeywordID, r.Date, position, url, nullRaw(r.RawResult), checkedAt).Scan(&r.ID)
	if err != nil {
		return err
	}
	r.CheckedAt = parseTime(checkedAt)
	return nil
}

const rankingColumns = `r.id, r.keyword_id, r.date, r.position, r.url, r.raw_result, r.checked_at, k.keyword, s.domain`

const rankingJoin = `FROM ranking_history r
		 JOIN tracked_keywords k ON k.id = r.keyword_id
		 JOIN tracked_sites s ON s.id = k.site_id`

func scanRanking(row scanner) (*Ranking, error) {
	var r Ranking
	var position sql.NullInt64
	var url, raw sql.NullString
	var checkedAt string
	if err := row.Scan(&r.ID, &r.KeywordID, &r.Date, &position, &url, &raw, &checkedAt, &r.Keyword, &r.Domain); err != nil {
		return nil, err
	}
	if position.Valid {
		p := int(position.Int64)
		r.Position = &p
	}
	if url.Valid {
		u := url.String
		r.URL = &u
	}
	if raw.Valid && raw.String != "" {
		r.RawResult = []byte(raw.String)
	}
	r.CheckedAt = parseTime(checkedAt)
	return &r, nil
}

func (s *SQLiteStore) GetRanking(ctx context.Context, keywordID int64, date string) (*Ranking, error) {
	return scanRanking(s.readDB.QueryRowContext(ctx,
		`SELECT `+rankingColumns+` `+rankingJoin+` WHERE r.keyword_id=? AND r.date=?`, keywordID, date))
}

// GetPreviousRanking returns the most recent observation strictly before date.
func (s *SQLiteStore) GetPreviousRanking(ctx context.Context, keywordID int64, before string) (*Ranking, error) {
	return scanRanking(s.readDB.QueryRowContext(ctx,
		`SELECT `+rankingColumns+` `+rankingJoin+`
		 WHERE r.keyword_id=? AND r.date < ? ORDER BY r.date DESC LIMIT 1`, keywordID, before))
}

func (s *SQLiteStore) ListRankings(ctx context.Context, f RankingFilter, p Pagination) (*PaginatedResult, error) {
	where := "1=1"
	args := []any{}
	if f.SiteID > 0 {
		where += " AND k.site_id=?"
		args = append(args, f.SiteID)
	}
	if f.KeywordID > 0 {
		where += " AND r.keyword_id=?"
		args = append(args, f.KeywordID)
	}
	if f.From != "" {
		where += " AND r.date >= ?"
		args = append(args, f.From)
	}
	if f.To != "" {
		where += " AND r.date <= ?"
		args = append(args, f.To)
	}

	var total int64
	if err := s.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) "+rankingJoin+" WHERE "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	args = append(args, p.PerPage, offsetOf(p))
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+rankingColumns+` `+rankingJoin+`
		 WHERE `+where+` ORDER BY r.date DESC, k.keyword LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rankings := []*Ranking{}
	for rows.Next() {
		r, err := scanRanking(rows)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedResult{
		Data:       rankings,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages(total, p.PerPage),
	}, nil
}

// ListRankingURLs returns every distinct non-null URL ever recorded.
func (s *SQLiteStore) ListRankingURLs(ctx context.Context) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT DISTINCT url FROM ranking_history WHERE url IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
