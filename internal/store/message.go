package store

import (
	"strings"
	"time"
)

// InsertMessage appends a message to the ledger and sets m.ID.
func (db *DB) InsertMessage(m *Message) error {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	res, err := db.Exec(`
		INSERT INTO messages (connection_id, direction, counterparty, display_name, body, attachment_name,
			message_type, group_name, external_id, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ConnectionID, string(m.Direction), m.Counterparty, m.DisplayName, m.Body, m.AttachmentName,
		m.MessageType, m.GroupName, m.ExternalID, m.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// MessageFilter narrows ListMessages. Zero values mean no restriction.
type MessageFilter struct {
	Direction Direction
	Query     string // case-insensitive substring of body or counterparty
	BeforeTs  int64
	Limit     int
}

// ListMessages returns a connection's messages, newest first.
func (db *DB) ListMessages(connectionID string, f MessageFilter) ([]Message, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	where := []string{"connection_id = ?"}
	args := []any{connectionID}
	if f.BeforeTs > 0 {
		where = append(where, "timestamp < ?")
		args = append(args, f.BeforeTs)
	}
	if f.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(f.Direction))
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		where = append(where, "(LOWER(body) LIKE ? OR counterparty LIKE ?)")
		args = append(args, like, like)
	}
	args = append(args, f.Limit)

	rows, err := db.Query(`
		SELECT id, connection_id, direction, counterparty, display_name, body, attachment_name,
			message_type, group_name, external_id, timestamp
		FROM messages
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var dir string
		if err := rows.Scan(&m.ID, &m.ConnectionID, &dir, &m.Counterparty, &m.DisplayName, &m.Body,
			&m.AttachmentName, &m.MessageType, &m.GroupName, &m.ExternalID, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Direction = Direction(dir)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of ledger entries per direction for a connection.
func (db *DB) CountMessages(connectionID string) (map[Direction]int, error) {
	rows, err := db.Query(`SELECT direction, COUNT(*) FROM messages WHERE connection_id = ? GROUP BY direction`, connectionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := map[Direction]int{}
	for rows.Next() {
		var dir string
		var n int
		if err := rows.Scan(&dir, &n); err != nil {
			return nil, err
		}
		counts[Direction(dir)] = n
	}
	return counts, rows.Err()
}
