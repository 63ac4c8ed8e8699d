package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ListKeywordReplies returns keyword rules in match order.
func (db *DB) ListKeywordReplies() ([]KeywordReply, error) {
	rows, err := db.Query(`SELECT id, keyword, response, position FROM keyword_replies ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []KeywordReply
	for rows.Next() {
		var k KeywordReply
		if err := rows.Scan(&k.ID, &k.Keyword, &k.Response, &k.Position); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// AddKeywordReply appends a rule after the existing ones.
func (db *DB) AddKeywordReply(k *KeywordReply) error {
	var next int
	if err := db.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM keyword_replies`).Scan(&next); err != nil {
		return err
	}
	res, err := db.Exec(`INSERT INTO keyword_replies (keyword, response, position, created_at) VALUES (?, ?, ?, ?)`,
		k.Keyword, k.Response, next, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	k.ID = id
	k.Position = next
	return nil
}

// DeleteKeywordReply removes a rule. Reports whether a row was deleted.
func (db *DB) DeleteKeywordReply(id int64) (bool, error) {
	res, err := db.Exec(`DELETE FROM keyword_replies WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReplaceKeywordReplies swaps the whole rule list in one transaction, keeping slice order.
func (db *DB) ReplaceKeywordReplies(rules []KeywordReply) error {
	now := time.Now().UnixMilli()
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM keyword_replies`); err != nil {
			return err
		}
		for i, r := range rules {
			if _, err := tx.Exec(`INSERT INTO keyword_replies (keyword, response, position, created_at) VALUES (?, ?, ?, ?)`,
				r.Keyword, r.Response, i, now); err != nil {
				return fmt.Errorf("insert rule %d: %w", i, err)
			}
		}
		return nil
	})
}
