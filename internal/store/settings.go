package store

import (
	"database/sql"
	"errors"
	"time"
)

const (
	settingWebhookURL    = "webhook.url"
	settingWebhookSecret = "webhook.secret"
)

// GetSetting returns a setting value, or "" and false if unset.
func (db *DB) GetSetting(key string) (string, bool, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetSetting stores a setting value.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// WebhookSettings returns the configured notification target.
func (db *DB) WebhookSettings() (WebhookSettings, error) {
	var ws WebhookSettings
	var err error
	if ws.URL, _, err = db.GetSetting(settingWebhookURL); err != nil {
		return ws, err
	}
	if ws.Secret, _, err = db.GetSetting(settingWebhookSecret); err != nil {
		return ws, err
	}
	return ws, nil
}

// SetWebhookSettings replaces the notification target.
func (db *DB) SetWebhookSettings(ws WebhookSettings) error {
	if err := db.SetSetting(settingWebhookURL, ws.URL); err != nil {
		return err
	}
	return db.SetSetting(settingWebhookSecret, ws.Secret)
}

// SeedWebhookSettings stores ws only if no webhook URL has been configured yet.
func (db *DB) SeedWebhookSettings(ws WebhookSettings) error {
	if ws.URL == "" {
		return nil
	}
	_, ok, err := db.GetSetting(settingWebhookURL)
	if err != nil || ok {
		return err
	}
	return db.SetWebhookSettings(ws)
}
