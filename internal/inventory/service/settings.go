package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/slogx"
)

// SettingsService owns the process-wide configuration row. The row is loaded
// once at startup and cached; reads go through Current(), writes go through
// Save() which persists and refreshes the cache atomically. Nothing else in
// the process reads the settings table directly.
type SettingsService struct {
	Store store.Store
	Gate  *Gate

	mu      sync.RWMutex
	current domain.Settings
}

// Load populates the cache from the store. Call once at startup and after
// any operation that rewrites settings out of band (restore, clear).
func (s *SettingsService) Load(ctx context.Context) error {
	settings, err := s.Store.Settings().GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	return nil
}

// Current returns the cached settings.
func (s *SettingsService) Current() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SessionEpoch returns the cached session epoch, used by the session signer.
func (s *SettingsService) SessionEpoch() int64 {
	return s.Current().SessionEpoch
}

// Save persists new settings and refreshes the cache. Admin only; the change
// is audited with before/after values in the same transaction.
func (s *SettingsService) Save(ctx context.Context, actor domain.User, next domain.Settings) error {
	if !actor.Role.Elevated() {
		return ErrUnauthorized
	}

	release, err := s.Gate.Mutate()
	if err != nil {
		return err
	}
	defer release()

	before := s.Current()

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Settings().SaveSettings(ctx, next); err != nil {
			return err
		}

		beforeJSON, _ := json.Marshal(before)
		afterJSON, _ := json.Marshal(next)
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:  actor.Username,
			Action: domain.ActionSettingsUpdated,
			Before: beforeJSON,
			After:  afterJSON,
		})
		return err
	})
	if err != nil {
		return err
	}

	// Epoch is owned by restore/clear; carry the live value forward.
	next.SessionEpoch = before.SessionEpoch
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	slogx.FromContext(ctx).Info("settings updated", "actor", actor.Username)
	return nil
}
