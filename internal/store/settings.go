package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Well-known settings keys.
const (
	SettingActivePlan   = "active_plan"
	SettingSessionToken = "session_token"
	SettingSessionUser  = "session_user"
	SettingLastSync     = "last_sync" // RFC 3339, last successful round trip
	SettingSyncHalted   = "sync_halted"
)

// Setting reads a setting. Returns ("", false, nil) if unset.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting writes a setting, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a setting. Deleting an unset key is not an error.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

// SyncHalted reports whether automatic sync was halted by an auth rejection
// in this or an earlier process.
func (s *Store) SyncHalted(ctx context.Context) (bool, error) {
	_, ok, err := s.Setting(ctx, SettingSyncHalted)
	return ok, err
}

// SetSyncHalted records or clears the auth halt.
func (s *Store) SetSyncHalted(ctx context.Context, halted bool) error {
	if !halted {
		return s.DeleteSetting(ctx, SettingSyncHalted)
	}
	return s.SetSetting(ctx, SettingSyncHalted, "1")
}
