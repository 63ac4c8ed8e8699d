package store

import "time"

// RecordConnectionEvent appends a lifecycle diagnostic for a connection.
func (db *DB) RecordConnectionEvent(connectionID, kind, detail string) error {
	_, err := db.Exec(`INSERT INTO connection_events (connection_id, kind, detail, created_at) VALUES (?, ?, ?, ?)`,
		connectionID, kind, detail, time.Now().UnixMilli())
	return err
}

// ListConnectionEvents returns the latest diagnostics of a connection, newest first.
func (db *DB) ListConnectionEvents(connectionID string, limit int) ([]ConnectionEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, connection_id, kind, detail, created_at
		FROM connection_events
		WHERE connection_id = ?
		ORDER BY id DESC
		LIMIT ?`, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ConnectionEvent
	for rows.Next() {
		var e ConnectionEvent
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
