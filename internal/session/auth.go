package session

import (
	"context"

	"github.com/BigJazzz/mosaic/internal/store"
)

// SaveLogin persists the session token and username, and resumes sync if
// it was halted by an auth rejection, in this or an earlier process.
func (s *Session) SaveLogin(ctx context.Context, username, token string) error {
	if err := s.store.SetSetting(ctx, store.SettingSessionToken, token); err != nil {
		return err
	}
	if err := s.store.SetSetting(ctx, store.SettingSessionUser, username); err != nil {
		return err
	}
	if err := s.store.SetSyncHalted(ctx, false); err != nil {
		return err
	}
	if sy := s.syncer(); sy != nil {
		return sy.Resume(ctx)
	}
	return nil
}

// Token returns the persisted session token, or "" if signed out.
func (s *Session) Token(ctx context.Context) (string, error) {
	tok, _, err := s.store.Setting(ctx, store.SettingSessionToken)
	return tok, err
}

// User returns the persisted username, or "" if signed out.
func (s *Session) User(ctx context.Context) (string, error) {
	u, _, err := s.store.Setting(ctx, store.SettingSessionUser)
	return u, err
}

// Logout forgets the session token. Queued submissions are kept.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.DeleteSetting(ctx, store.SettingSessionToken); err != nil {
		return err
	}
	return s.store.DeleteSetting(ctx, store.SettingSessionUser)
}
