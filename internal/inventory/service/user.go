package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/cryptox"
	"github.com/assetops/stocktake/pkg/idx"
	"github.com/assetops/stocktake/pkg/slogx"
)

var ErrUsernameTaken = errors.New("username already taken")

// UserService handles account administration. Authentication concerns live
// in AuthService; this is the admin-facing CRUD surface.
type UserService struct {
	Store store.Store
	Gate  *Gate
}

// CreateUserParams describes a new password account. An empty Password asks
// the service to generate one, returned exactly once in the result.
type CreateUserParams struct {
	Username string
	Password string
	Role     domain.Role
}

// CreatedUser carries the new account plus the generated password, when one
// was generated.
type CreatedUser struct {
	User              domain.User
	GeneratedPassword string
}

func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.Store.Users().GetUserByUsername(ctx, username)
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.Store.Users().ListUsers(ctx)
}

// Create adds a password account. Admin only; the creation is audited under
// the acting administrator.
func (s *UserService) Create(ctx context.Context, actor domain.User, params CreateUserParams) (CreatedUser, error) {
	if !actor.Role.Elevated() {
		return CreatedUser{}, ErrUnauthorized
	}

	username := strings.ToLower(strings.TrimSpace(params.Username))
	if username == "" {
		return CreatedUser{}, fmt.Errorf("username is required")
	}
	if _, err := domain.ParseRole(string(params.Role)); err != nil {
		return CreatedUser{}, err
	}

	password := params.Password
	generated := false
	if password == "" {
		var err error
		password, err = cryptox.GeneratePassword()
		if err != nil {
			return CreatedUser{}, err
		}
		generated = true
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return CreatedUser{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.withMutation(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return err
		}
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:    actor.Username,
			Action:   domain.ActionUserCreated,
			EntityID: user.Username,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return CreatedUser{}, ErrUsernameTaken
		}
		return CreatedUser{}, err
	}

	slogx.FromContext(ctx).Info("user created",
		"actor_id", actor.ID, "user_id", user.ID, "role", user.Role)

	out := CreatedUser{User: user}
	if generated {
		out.GeneratedPassword = password
	}
	return out, nil
}

func (s *UserService) withMutation(ctx context.Context, fn func(tx store.Tx) error) error {
	release, err := s.Gate.Mutate()
	if err != nil {
		return err
	}
	defer release()

	return s.Store.WithTx(ctx, fn)
}
