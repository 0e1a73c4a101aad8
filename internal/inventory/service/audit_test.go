package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/assetops/stocktake/internal/inventory/domain"
)

func TestAuditSequenceIsStrictlyIncreasing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)

	const writers = 6
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.approvals.Submit(ctx, admin, equipmentCreate(fmt.Sprintf("Device %d", i)))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := env.audit.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, writers)

	for i := 1; i < len(entries); i++ {
		require.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}
}

func TestAuditListFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)
	alice := env.createUser(t, "alice", "pw", domain.RoleStandard)

	created, err := env.approvals.Submit(ctx, admin, equipmentCreate("Laptop"))
	require.NoError(t, err)
	_, err = env.approvals.Submit(ctx, alice, domain.ChangeRequest{
		EntityType: domain.EntityLicense,
		Op:         domain.OpCreate,
		Name:       "CAD Suite",
		Payload:    json.RawMessage(`{"seats":5}`),
	})
	require.NoError(t, err)

	t.Run("by actor", func(t *testing.T) {
		entries, err := env.audit.List(ctx, domain.AuditFilter{Actor: "alice"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, domain.ActionChangeSubmitted, entries[0].Action)
	})

	t.Run("by action", func(t *testing.T) {
		entries, err := env.audit.List(ctx, domain.AuditFilter{Action: domain.ActionDirectChange})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, created.EntityID, entries[0].EntityID)
	})

	t.Run("by entity type", func(t *testing.T) {
		entries, err := env.audit.List(ctx, domain.AuditFilter{EntityType: string(domain.EntityLicense)})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "alice", entries[0].Actor)
	})

	t.Run("after seq with limit", func(t *testing.T) {
		all, err := env.audit.List(ctx, domain.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)

		entries, err := env.audit.List(ctx, domain.AuditFilter{AfterSeq: all[0].Seq, Limit: 1})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, all[1].Seq, entries[0].Seq)
	})
}

func TestFailedMutationLeavesNoAuditEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.createUser(t, "root", "pw", domain.RoleAdmin)
	alice := env.createUser(t, "alice", "pw", domain.RoleStandard)
	bob := env.createUser(t, "bob", "pw", domain.RoleStandard)

	created, err := env.approvals.Submit(ctx, admin, equipmentCreate("Scanner"))
	require.NoError(t, err)

	update := domain.ChangeRequest{
		EntityType: domain.EntityEquipment,
		EntityID:   created.EntityID,
		Op:         domain.OpUpdate,
		Name:       "Scanner",
		Payload:    json.RawMessage(`{"dpi":600}`),
	}
	_, err = env.approvals.Submit(ctx, alice, update)
	require.NoError(t, err)

	before, err := env.audit.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)

	// Bob's conflicting submission rolls back wholesale, ledger included.
	_, err = env.approvals.Submit(ctx, bob, update)
	require.ErrorIs(t, err, ErrConflictingPendingChange)

	after, err := env.audit.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
}
