package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
)

func equipmentCreate(name string) domain.ChangeRequest {
	return domain.ChangeRequest{
		EntityType: domain.EntityEquipment,
		Op:         domain.OpCreate,
		Name:       name,
		Payload:    json.RawMessage(`{"serial":"SN-1234","location":"HQ"}`),
	}
}

func TestSubmitDirectForAdmins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)

	result, err := env.approvals.Submit(ctx, admin, equipmentCreate("Laptop 14"))
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.NotEmpty(t, result.EntityID)

	entity, err := env.store.Entities().GetEntity(ctx, domain.EntityEquipment, result.EntityID)
	require.NoError(t, err)
	require.Equal(t, "Laptop 14", entity.Name)

	// No pending row: the change went straight through.
	pending, err := env.approvals.List(ctx, true)
	require.NoError(t, err)
	require.Empty(t, pending)

	entry := env.lastAudit(t)
	require.Equal(t, domain.ActionDirectChange, entry.Action)
	require.Equal(t, "root", entry.Actor)
	require.Nil(t, entry.Before, "created from nothing")
	require.NotNil(t, entry.After)
}

func TestSubmitQueuesForStandardUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.createUser(t, "alice", "pw", domain.RoleStandard)

	result, err := env.approvals.Submit(ctx, user, equipmentCreate("Monitor 27"))
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.Equal(t, domain.ChangePending, result.Change.Status)
	require.Equal(t, "alice", result.Change.SubmittedBy)

	// Nothing lands on the canonical record before review.
	_, err = env.store.Entities().GetEntity(ctx, domain.EntityEquipment, result.EntityID)
	require.ErrorIs(t, err, store.ErrNotFound)

	entry := env.lastAudit(t)
	require.Equal(t, domain.ActionChangeSubmitted, entry.Action)
}

func TestSubmitRejectsConflictingPendingChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)
	alice := env.createUser(t, "alice", "pw", domain.RoleStandard)
	bob := env.createUser(t, "bob", "pw", domain.RoleStandard)

	created, err := env.approvals.Submit(ctx, admin, equipmentCreate("Printer"))
	require.NoError(t, err)

	update := domain.ChangeRequest{
		EntityType: domain.EntityEquipment,
		EntityID:   created.EntityID,
		Op:         domain.OpUpdate,
		Name:       "Printer (2nd floor)",
		Payload:    json.RawMessage(`{"location":"2F"}`),
	}

	_, err = env.approvals.Submit(ctx, alice, update)
	require.NoError(t, err)

	// Bob's competing proposal is rejected, not silently superseded.
	_, err = env.approvals.Submit(ctx, bob, update)
	require.ErrorIs(t, err, ErrConflictingPendingChange)
}

func TestSubmitConflictUnderConcurrency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)
	created, err := env.approvals.Submit(ctx, admin, equipmentCreate("Router"))
	require.NoError(t, err)

	const submitters = 8
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		user := env.createUser(t, "user-"+string(rune('a'+i)), "pw", domain.RoleStandard)

		wg.Add(1)
		go func(i int, user domain.User) {
			defer wg.Done()
			_, errs[i] = env.approvals.Submit(ctx, user, domain.ChangeRequest{
				EntityType: domain.EntityEquipment,
				EntityID:   created.EntityID,
				Op:         domain.OpUpdate,
				Name:       "Router",
				Payload:    json.RawMessage(`{"firmware":"v2"}`),
			})
		}(i, user)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, ErrConflictingPendingChange)
		}
	}
	require.Equal(t, 1, winners, "exactly one pending change per entity")
}

func TestApproveAppliesAndFinalizes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)
	alice := env.createUser(t, "alice", "pw", domain.RoleStandard)

	result, err := env.approvals.Submit(ctx, alice, equipmentCreate("Dock"))
	require.NoError(t, err)

	t.Run("standard users may not review", func(t *testing.T) {
		err := env.approvals.Approve(ctx, alice, result.Change.ID)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	require.NoError(t, env.approvals.Approve(ctx, admin, result.Change.ID))

	entity, err := env.store.Entities().GetEntity(ctx, domain.EntityEquipment, result.EntityID)
	require.NoError(t, err)
	require.Equal(t, "Dock", entity.Name)

	change, err := env.approvals.Get(ctx, result.Change.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ChangeApproved, change.Status)

	entry := env.lastAudit(t)
	require.Equal(t, domain.ActionChangeApproved, entry.Action)
	require.Equal(t, "root", entry.Actor)

	t.Run("a second review fails", func(t *testing.T) {
		err := env.approvals.Approve(ctx, admin, result.Change.ID)
		require.ErrorIs(t, err, ErrAlreadyFinalized)

		err = env.approvals.Reject(ctx, admin, result.Change.ID, "too late")
		require.ErrorIs(t, err, ErrAlreadyFinalized)
	})
}

func TestRejectLeavesRecordUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)
	alice := env.createUser(t, "alice", "pw", domain.RoleStandard)

	created, err := env.approvals.Submit(ctx, admin, equipmentCreate("Switch"))
	require.NoError(t, err)

	result, err := env.approvals.Submit(ctx, alice, domain.ChangeRequest{
		EntityType: domain.EntityEquipment,
		EntityID:   created.EntityID,
		Op:         domain.OpDelete,
	})
	require.NoError(t, err)

	t.Run("reason is mandatory", func(t *testing.T) {
		err := env.approvals.Reject(ctx, admin, result.Change.ID, "")
		require.ErrorIs(t, err, ErrRejectReasonRequired)
	})

	require.NoError(t, env.approvals.Reject(ctx, admin, result.Change.ID, "still in service"))

	// The record survives the rejected delete.
	_, err = env.store.Entities().GetEntity(ctx, domain.EntityEquipment, created.EntityID)
	require.NoError(t, err)

	change, err := env.approvals.Get(ctx, result.Change.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ChangeRejected, change.Status)
	require.NotNil(t, change.RejectReason)
	require.Equal(t, "still in service", *change.RejectReason)

	// The rejected change no longer blocks new submissions.
	_, err = env.approvals.Submit(ctx, alice, domain.ChangeRequest{
		EntityType: domain.EntityEquipment,
		EntityID:   created.EntityID,
		Op:         domain.OpUpdate,
		Name:       "Switch",
		Payload:    json.RawMessage(`{"ports":48}`),
	})
	require.NoError(t, err)
}

func TestApproveUnknownChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)

	err := env.approvals.Approve(ctx, admin, "no-such-change")
	require.ErrorIs(t, err, ErrUnknownChange)
}

func TestSubmitValidatesRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)

	t.Run("update requires an entity id", func(t *testing.T) {
		_, err := env.approvals.Submit(ctx, admin, domain.ChangeRequest{
			EntityType: domain.EntityEquipment,
			Op:         domain.OpUpdate,
			Name:       "X",
			Payload:    json.RawMessage(`{}`),
		})
		require.ErrorIs(t, err, ErrInvalidChangeRequest)
	})

	t.Run("create must not carry an entity id", func(t *testing.T) {
		_, err := env.approvals.Submit(ctx, admin, domain.ChangeRequest{
			EntityType: domain.EntityEquipment,
			EntityID:   "preassigned",
			Op:         domain.OpCreate,
			Name:       "X",
			Payload:    json.RawMessage(`{}`),
		})
		require.ErrorIs(t, err, ErrInvalidChangeRequest)
	})

	t.Run("create requires a payload", func(t *testing.T) {
		_, err := env.approvals.Submit(ctx, admin, domain.ChangeRequest{
			EntityType: domain.EntityEquipment,
			Op:         domain.OpCreate,
			Name:       "X",
		})
		require.ErrorIs(t, err, ErrInvalidChangeRequest)
	})
}
