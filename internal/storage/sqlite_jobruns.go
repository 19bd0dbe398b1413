package storage

import (
	"context"
	"encoding/json"
	"time"
)

func (s *SQLiteStore) InsertJobRun(ctx context.Context, r *JobRun) error {
	if r.Errors == nil {
		r.Errors = []string{}
	}
	errs, _ := json.Marshal(r.Errors)
	res, err := s.writeDB.ExecContext(ctx,
		`INSERT INTO job_runs (run_id, job, started_at, finished_at, attempted, succeeded, failed, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Job, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Attempted, r.Succeeded, r.Failed, string(errs))
	if err != nil {
		return err
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListJobRuns(ctx context.Context, job string, p Pagination) (*PaginatedResult, error) {
	where := "1=1"
	args := []any{}
	if job != "" {
		where += " AND job=?"
		args = append(args, job)
	}

	var total int64
	if err := s.readDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM job_runs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	args = append(args, p.PerPage, offsetOf(p))
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT id, run_id, job, started_at, finished_at, attempted, succeeded, failed, errors
		 FROM job_runs WHERE `+where+` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*JobRun{}
	for rows.Next() {
		var r JobRun
		var startedAt, finishedAt, errs string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Job, &startedAt, &finishedAt,
			&r.Attempted, &r.Succeeded, &r.Failed, &errs); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt)
		json.Unmarshal([]byte(errs), &r.Errors)
		if r.Errors == nil {
			r.Errors = []string{}
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PaginatedResult{
		Data:       runs,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages(total, p.PerPage),
	}, nil
}

func (s *SQLiteStore) PurgeOldJobRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.writeDB.ExecContext(ctx,
		`DELETE FROM job_runs WHERE started_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
