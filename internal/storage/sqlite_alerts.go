package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *Alert) error {
	now := formatTime(time.Now())
	metadata := string(a.Metadata)
	if metadata == "" {
		metadata = "{}"
	}
	var message any
	if a.Message != nil {
		message = *a.Message
	}
	res, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO alerts (type, severity, title, message, metadata, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Type, a.Severity, a.Title, message, metadata, a.Status, now)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	a.ID = id
	a.Metadata = []byte(metadata)
	a.CreatedAt = parseTime(now)
	return nil
}

const alertColumns = `id, type, severity, title, message, metadata, status, created_at, acknowledged_at, resolved_at`

func scanAlert(row scanner) (*Alert, error) {
	var a Alert
	var message, ackAt, resAt sql.NullString
	var metadata, createdAt string
	err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Title, &message, &metadata, &a.Status,
		&createdAt, &ackAt, &resAt)
	if err != nil {
		return nil, err
	}
	if message.Valid {
		m := message.String
		a.Message = &m
	}
	a.Metadata = []byte(metadata)
	a.CreatedAt = parseTime(createdAt)
	a.AcknowledgedAt = parseTimePtr(ackAt)
	a.ResolvedAt = parseTimePtr(resAt)
	return &a, nil
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	return scanAlert(s.readDB.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id=?`, id))
}

// ListAlerts returns alerts whose status is one of statuses (all when empty),
// newest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context, statuses []string, p Pagination) (*PaginatedResult, error) {
	where := "1=1"
	args := []any{}
	if len(statuses) > 0 {
		where += " AND status IN (" + strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",") + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}

	var total int64
	if err := s.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	args = append(args, p.PerPage, offsetOf(p))
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE `+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []*Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedResult{
		Data:       alerts,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages(total, p.PerPage),
	}, nil
}

// AcknowledgeAlert moves an active or acknowledged alert to acknowledged.
// It reports false when no row was eligible.
func (s *SQLiteStore) AcknowledgeAlert(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE alerts SET status='acknowledged', acknowledged_at=COALESCE(acknowledged_at, ?)
		 WHERE id=? AND status IN ('active','acknowledged')`, formatTime(at), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ResolveAlert moves an active or acknowledged alert to resolved and stamps
// resolved_at. Already-resolved rows are never touched.
func (s *SQLiteStore) ResolveAlert(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE alerts SET status='resolved', resolved_at=?
		 WHERE id=? AND status IN ('active','acknowledged')`, formatTime(at), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
