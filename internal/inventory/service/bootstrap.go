package service

import (
	"context"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/cryptox"
	"github.com/assetops/stocktake/pkg/idx"
	"github.com/assetops/stocktake/pkg/slogx"
)

// BootstrapService seeds the first administrator so a fresh or cleared
// database is never left without a way in.
type BootstrapService struct {
	Store store.Store

	AdminUsername string
	// AdminPassword may be empty, in which case a password is generated and
	// logged exactly once at seed time.
	AdminPassword string
}

func (s *BootstrapService) username() string {
	if s.AdminUsername != "" {
		return s.AdminUsername
	}
	return "admin"
}

// EnsureAdmin seeds the bootstrap administrator when the users table is
// empty. Called once at startup, before the listener opens.
func (s *BootstrapService) EnsureAdmin(ctx context.Context) error {
	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return s.SeedAdmin(ctx, tx)
	})
}

// SeedAdmin creates the bootstrap administrator inside the caller's
// transaction. The database clear operation reuses it so the wiped state
// still has an account.
func (s *BootstrapService) SeedAdmin(ctx context.Context, tx store.Tx) error {
	password := s.AdminPassword
	generated := false
	if password == "" {
		var err error
		password, err = cryptox.GeneratePassword()
		if err != nil {
			return err
		}
		generated = true
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := domain.User{
		ID:           idx.New().String(),
		Username:     s.username(),
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Users().CreateUser(ctx, admin); err != nil {
		return err
	}

	log := slogx.FromContext(ctx)
	if generated {
		// The only place this password ever appears. Rotate it after first login.
		log.Warn("bootstrap admin seeded with generated password",
			"username", admin.Username, "password", password)
	} else {
		log.Info("bootstrap admin seeded", "username", admin.Username)
	}
	return nil
}
