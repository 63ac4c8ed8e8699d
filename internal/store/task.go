package store

import (
	"database/sql"
	"errors"
	"time"
)

// InsertTask persists a scheduled task.
func (db *DB) InsertTask(t *Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO scheduled_tasks (id, connection_id, recipient, body, fire_at, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ConnectionID, t.Recipient, t.Body, t.FireAt.UnixMilli(), t.Recurring, t.CreatedAt.UnixMilli())
	return err
}

// GetTask returns a task by id, or nil if it does not exist.
func (db *DB) GetTask(id string) (*Task, error) {
	row := db.QueryRow(`
		SELECT id, connection_id, recipient, body, fire_at, recurring, created_at
		FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListTasks returns every persisted task ordered by fire time.
func (db *DB) ListTasks() ([]Task, error) {
	rows, err := db.Query(`
		SELECT id, connection_id, recipient, body, fire_at, recurring, created_at
		FROM scheduled_tasks
		ORDER BY fire_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task. Reports whether a row was deleted.
func (db *DB) DeleteTask(id string) (bool, error) {
	res, err := db.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var fireAt, createdAt int64
	if err := s.Scan(&t.ID, &t.ConnectionID, &t.Recipient, &t.Body, &fireAt, &t.Recurring, &createdAt); err != nil {
		return nil, err
	}
	t.FireAt = time.UnixMilli(fireAt)
	t.CreatedAt = time.UnixMilli(createdAt)
	return &t, nil
}

// RescheduleTask moves a task to a new fire time. Reports whether the task exists.
func (db *DB) RescheduleTask(id string, fireAt time.Time) (bool, error) {
	res, err := db.Exec(`UPDATE scheduled_tasks SET fire_at = ? WHERE id = ?`, fireAt.UnixMilli(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
