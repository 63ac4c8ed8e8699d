package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertBroadcastJob writes the latest snapshot of a broadcast job.
func (db *DB) UpsertBroadcastJob(j *BroadcastJob) error {
	var end sql.NullInt64
	if j.EndTime != nil {
		end = sql.NullInt64{Int64: j.EndTime.UnixMilli(), Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO broadcast_jobs (id, connection_id, status, mode, total, sent, failed, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			sent = excluded.sent,
			failed = excluded.failed,
			end_time = excluded.end_time`,
		j.ID, j.ConnectionID, j.Status, j.Mode, j.Total, j.Sent, j.Failed, j.StartTime.UnixMilli(), end)
	return err
}

// ListBroadcastJobs returns job snapshots, newest first.
func (db *DB) ListBroadcastJobs(limit int) ([]BroadcastJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, connection_id, status, mode, total, sent, failed, start_time, end_time
		FROM broadcast_jobs
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []BroadcastJob
	for rows.Next() {
		j, err := scanBroadcastJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// GetBroadcastJob returns the last snapshot of id, or nil if there is none.
func (db *DB) GetBroadcastJob(id string) (*BroadcastJob, error) {
	row := db.QueryRow(`
		SELECT id, connection_id, status, mode, total, sent, failed, start_time, end_time
		FROM broadcast_jobs WHERE id = ?`, id)
	j, err := scanBroadcastJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func scanBroadcastJob(row interface{ Scan(...any) error }) (*BroadcastJob, error) {
	var j BroadcastJob
	var start int64
	var end sql.NullInt64
	if err := row.Scan(&j.ID, &j.ConnectionID, &j.Status, &j.Mode, &j.Total, &j.Sent, &j.Failed, &start, &end); err != nil {
		return nil, err
	}
	j.StartTime = time.UnixMilli(start)
	if end.Valid {
		t := time.UnixMilli(end.Int64)
		j.EndTime = &t
	}
	return &j, nil
}
