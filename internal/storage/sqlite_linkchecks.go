package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertLinkChecks appends a batch of probe results in one transaction.
func (s *SQLiteStore) InsertLinkChecks(ctx context.Context, checks []*LinkCheck) error {
	if len(checks) == 0 {
		return nil
	}

	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO link_checks (run_id, source_slug, target_url, status_code, is_broken, error, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range checks {
		if c.CheckedAt.IsZero() {
			c.CheckedAt = time.Now().UTC()
		}
		var code any
		if c.StatusCode != nil {
			code = *c.StatusCode
		}
		res, err := stmt.ExecContext(ctx, c.RunID, c.SourceSlug, c.TargetURL, code,
			boolToInt(c.IsBroken), c.Error, formatTime(c.CheckedAt))
		if err != nil {
			return fmt.Errorf("insert link check %s: %w", c.TargetURL, err)
		}
		c.ID, _ = res.LastInsertId()
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListLinkChecks(ctx context.Context, f LinkCheckFilter, p Pagination) (*PaginatedResult, error) {
	where := "1=1"
	args := []any{}
	if f.RunID != "" {
		where += " AND run_id=?"
		args = append(args, f.RunID)
	}
	if f.SourceSlug != "" {
		where += " AND source_slug=?"
		args = append(args, f.SourceSlug)
	}
	if f.BrokenOnly {
		where += " AND is_broken=1"
	}

	var total int64
	if err := s.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM link_checks WHERE "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	args = append(args, p.PerPage, offsetOf(p))
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, run_id, source_slug, target_url, status_code, is_broken, error, checked_at
		 FROM link_checks WHERE `+where+` ORDER BY id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checks := []*LinkCheck{}
	for rows.Next() {
		var c LinkCheck
		var code sql.NullInt64
		var checkedAt string
		if err := rows.Scan(&c.ID, &c.RunID, &c.SourceSlug, &c.TargetURL, &code, &c.IsBroken, &c.Error, &checkedAt); err != nil {
			return nil, err
		}
		if code.Valid {
			v := int(code.Int64)
			c.StatusCode = &v
		}
		c.CheckedAt = parseTime(checkedAt)
		checks = append(checks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedResult{
		Data:       checks,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages(total, p.PerPage),
	}, nil
}

func (s *SQLiteStore) PurgeOldLinkChecks(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx,
		`DELETE FROM link_checks WHERE checked_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
