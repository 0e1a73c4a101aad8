package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/idx"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func seedUser(t *testing.T, st *Store, username string) domain.User {
	t.Helper()

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: "x",
		Role:         domain.RoleStandard,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), user))
	return user
}

func pendingChange(user domain.User, entityID string) domain.PendingChange {
	now := time.Now().UTC()
	return domain.PendingChange{
		ID:          idx.New().String(),
		EntityType:  domain.EntityEquipment,
		EntityID:    entityID,
		Op:          domain.OpUpdate,
		Name:        "Thing",
		Payload:     json.RawMessage(`{"k":"v"}`),
		SubmittedBy: user.Username,
		Status:      domain.ChangePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestUsersRepo(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	t.Run("empty at first", func(t *testing.T) {
		empty, err := st.Users().IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)
	})

	user := seedUser(t, st, "alice")

	t.Run("lookup by id and username", func(t *testing.T) {
		byID, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", byID.Username)

		byName, err := st.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, user.ID, byName.ID)

		_, err = st.Users().GetUserByUsername(ctx, "nobody")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("timestamps survive the round trip", func(t *testing.T) {
		got, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, got.CreatedAt.Equal(user.CreatedAt))
		require.True(t, got.UpdatedAt.Equal(user.UpdatedAt))
	})

	t.Run("duplicate username", func(t *testing.T) {
		dup := user
		dup.ID = idx.New().String()
		err := st.Users().CreateUser(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("totp lifecycle", func(t *testing.T) {
		require.NoError(t, st.Users().UpdateTOTPSecret(ctx, user.ID, "SECRET"))

		staged, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, staged.TOTPSecret)
		require.False(t, staged.SecondFactorActive())

		require.NoError(t, st.Users().EnableTOTP(ctx, user.ID))
		enabled, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, enabled.SecondFactorActive())

		require.NoError(t, st.Users().DisableTOTP(ctx, user.ID))
		disabled, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.Nil(t, disabled.TOTPSecret)
		require.False(t, disabled.SecondFactorActive())
	})
}

func TestChangesRepoOnePendingPerEntity(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	user := seedUser(t, st, "alice")

	first := pendingChange(user, "entity-1")
	require.NoError(t, st.Changes().CreateChange(ctx, first))

	t.Run("stored row carries the submitted timestamps", func(t *testing.T) {
		got, err := st.Changes().GetChange(ctx, first.ID)
		require.NoError(t, err)
		require.True(t, got.CreatedAt.Equal(first.CreatedAt))
		require.True(t, got.UpdatedAt.Equal(first.UpdatedAt))
	})

	t.Run("second pending change for the same entity is rejected", func(t *testing.T) {
		err := st.Changes().CreateChange(ctx, pendingChange(user, "entity-1"))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("a different entity is fine", func(t *testing.T) {
		require.NoError(t, st.Changes().CreateChange(ctx, pendingChange(user, "entity-2")))
	})

	t.Run("finalizing frees the slot", func(t *testing.T) {
		reason := "no"
		require.NoError(t, st.Changes().FinalizeChange(ctx, first.ID, domain.ChangeRejected, &reason))
		require.NoError(t, st.Changes().CreateChange(ctx, pendingChange(user, "entity-1")))
	})
}

func TestChangesRepoFinalizeGuards(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	user := seedUser(t, st, "alice")
	change := pendingChange(user, "entity-1")
	require.NoError(t, st.Changes().CreateChange(ctx, change))

	require.NoError(t, st.Changes().FinalizeChange(ctx, change.ID, domain.ChangeApproved, nil))

	// Terminal rows and unknown ids both report not found; the caller
	// re-reads to tell them apart.
	err := st.Changes().FinalizeChange(ctx, change.ID, domain.ChangeRejected, nil)
	require.ErrorIs(t, err, store.ErrNotFound)

	err = st.Changes().FinalizeChange(ctx, "no-such-id", domain.ChangeApproved, nil)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := st.Changes().GetChange(ctx, change.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ChangeApproved, got.Status)
}

func TestAuditRepoAppendAssignsSequence(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	first, err := st.Audit().AppendAudit(ctx, domain.AuditEntry{Actor: "a", Action: "login success"})
	require.NoError(t, err)
	second, err := st.Audit().AppendAudit(ctx, domain.AuditEntry{Actor: "b", Action: "login failed"})
	require.NoError(t, err)
	require.Greater(t, second, first)

	entries, err := st.Audit().ListAudit(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, first, entries[0].Seq)
	require.Equal(t, second, entries[1].Seq)
	require.False(t, entries[0].CreatedAt.IsZero())
}

func TestStateRoundTrip(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	user := seedUser(t, st, "alice")
	require.NoError(t, st.Entities().UpsertEntity(ctx, domain.Entity{
		ID:         "e1",
		EntityType: domain.EntityEquipment,
		Name:       "Laptop",
		Data:       json.RawMessage(`{"serial":"SN1"}`),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}))
	seq, err := st.Audit().AppendAudit(ctx, domain.AuditEntry{Actor: "alice", Action: "direct change"})
	require.NoError(t, err)

	blob, err := st.DumpState(ctx)
	require.NoError(t, err)

	// Diverge, then load the dump back.
	require.NoError(t, st.Entities().DeleteEntity(ctx, domain.EntityEquipment, "e1"))
	_, err = st.Audit().AppendAudit(ctx, domain.AuditEntry{Actor: "alice", Action: "direct change"})
	require.NoError(t, err)

	require.NoError(t, st.LoadState(ctx, blob))

	restored, err := st.Entities().GetEntity(ctx, domain.EntityEquipment, "e1")
	require.NoError(t, err)
	require.Equal(t, "Laptop", restored.Name)

	entries, err := st.Audit().ListAudit(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, seq, entries[0].Seq)

	users, err := st.Users().ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, user.ID, users[0].ID)

	t.Run("sequence continues past the restored ledger", func(t *testing.T) {
		next, err := st.Audit().AppendAudit(ctx, domain.AuditEntry{Actor: "alice", Action: "database restore"})
		require.NoError(t, err)
		require.Greater(t, next, seq)
	})
}

func TestReset(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	seedUser(t, st, "alice")
	_, err := st.Audit().AppendAudit(ctx, domain.AuditEntry{Actor: "alice", Action: "login success"})
	require.NoError(t, err)
	require.NoError(t, st.Backups().SaveBackup(ctx, domain.BackupRecord{
		TakenAt: time.Now().UTC(),
		State:   []byte("blob"),
	}))

	require.NoError(t, st.Reset(ctx))

	empty, err := st.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	entries, err := st.Audit().ListAudit(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)

	status, err := st.Backups().BackupStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.HasBackup)

	// The ledger restarts from one.
	seq, err := st.Audit().AppendAudit(ctx, domain.AuditEntry{Actor: "admin", Action: "database clear"})
	require.NoError(t, err)
	require.EqualValues(t, 1, seq)
}

func TestSettingsRepo(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	settings, err := st.Settings().GetSettings(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, settings.SessionEpoch)

	settings.CompanyName = "Initech"
	settings.SSOEnabled = true
	settings.SSOLoginURL = "https://idp.example/login"
	require.NoError(t, st.Settings().SaveSettings(ctx, settings))

	got, err := st.Settings().GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, "Initech", got.CompanyName)
	require.True(t, got.SSOEnabled)

	epoch, err := st.Settings().BumpSessionEpoch(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, epoch)

	got, err = st.Settings().GetSettings(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.SessionEpoch)
}

func TestChallengesRepo(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	user := seedUser(t, st, "alice")
	challenge := domain.LoginChallenge{
		ID:        idx.New().String(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, st.Challenges().CreateChallenge(ctx, challenge))

	got, err := st.Challenges().GetChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.UserID)
	require.Zero(t, got.Attempts)

	bumped, err := st.Challenges().IncrementChallengeAttempts(ctx, challenge.ID)
	require.NoError(t, err)
	require.Equal(t, 1, bumped.Attempts)

	expired := domain.LoginChallenge{
		ID:        idx.New().String(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, st.Challenges().CreateChallenge(ctx, expired))
	require.NoError(t, st.Challenges().DeleteExpiredChallenges(ctx))

	_, err = st.Challenges().GetChallenge(ctx, expired.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// The live one survives the sweep.
	_, err = st.Challenges().GetChallenge(ctx, challenge.ID)
	require.NoError(t, err)
}
