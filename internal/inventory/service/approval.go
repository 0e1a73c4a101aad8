package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assetops/stocktake/internal/inventory/domain"
	"github.com/assetops/stocktake/internal/inventory/store"
	"github.com/assetops/stocktake/pkg/idx"
	"github.com/assetops/stocktake/pkg/slogx"
)

var (
	ErrInvalidChangeRequest     = errors.New("invalid change request")
	ErrConflictingPendingChange = errors.New("entity already has a pending change")
	ErrAlreadyFinalized         = errors.New("change has already been finalized")
	ErrRejectReasonRequired     = errors.New("a rejection reason is required")
	ErrUnknownChange            = errors.New("unknown change")
)

// SubmitResult tells the caller what happened to their change: applied on the
// spot (administrators) or parked for review (standard users).
type SubmitResult struct {
	Applied bool
	// Change is set when the submission was queued for review.
	Change domain.PendingChange
	// EntityID is the id of the affected record. For creates it is allocated
	// at submit time, before any approval.
	EntityID string
}

// ApprovalService runs the dual-track mutation workflow over equipment and
// license records.
type ApprovalService struct {
	Store store.Store
	Gate  *Gate
}

// Submit routes a proposed change by the actor's role: administrators apply
// immediately, standard users queue a pending change. Either way the target
// entity id is fixed at submit time.
func (s *ApprovalService) Submit(ctx context.Context, actor domain.User, req domain.ChangeRequest) (SubmitResult, error) {
	if err := validateRequest(req); err != nil {
		return SubmitResult{}, err
	}

	entityID := req.EntityID
	if req.Op == domain.OpCreate {
		if entityID != "" {
			return SubmitResult{}, fmt.Errorf("%w: create must not carry an entity id", ErrInvalidChangeRequest)
		}
		entityID = idx.New().String()
	} else if entityID == "" {
		return SubmitResult{}, fmt.Errorf("%w: %s requires an entity id", ErrInvalidChangeRequest, req.Op)
	}

	if actor.Role.Elevated() {
		return s.applyDirect(ctx, actor, req, entityID)
	}
	return s.queue(ctx, actor, req, entityID)
}

func validateRequest(req domain.ChangeRequest) error {
	if _, err := ParseOp(string(req.Op)); err != nil {
		return err
	}
	if req.Op != domain.OpDelete && len(req.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrInvalidChangeRequest, req.Op)
	}
	return nil
}

// ParseOp validates a change operation from the wire.
func ParseOp(s string) (domain.ChangeOp, error) {
	switch domain.ChangeOp(s) {
	case domain.OpCreate:
		return domain.OpCreate, nil
	case domain.OpUpdate:
		return domain.OpUpdate, nil
	case domain.OpDelete:
		return domain.OpDelete, nil
	default:
		return "", fmt.Errorf("unknown change operation %q", s)
	}
}

func (s *ApprovalService) applyDirect(ctx context.Context, actor domain.User, req domain.ChangeRequest, entityID string) (SubmitResult, error) {
	err := s.withMutation(ctx, func(tx store.Tx) error {
		before, err := snapshotEntity(ctx, tx, req.EntityType, entityID)
		if err != nil {
			return err
		}

		if err := applyChange(ctx, tx, req, entityID); err != nil {
			return err
		}

		after, err := snapshotEntity(ctx, tx, req.EntityType, entityID)
		if err != nil {
			return err
		}

		_, err = tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:      actor.Username,
			Action:     domain.ActionDirectChange,
			EntityType: string(req.EntityType),
			EntityID:   entityID,
			Before:     before,
			After:      after,
		})
		return err
	})
	if err != nil {
		return SubmitResult{}, err
	}

	slogx.FromContext(ctx).Info("direct change applied",
		"actor_id", actor.ID, "entity_type", req.EntityType, "entity_id", entityID, "op", req.Op)
	return SubmitResult{Applied: true, EntityID: entityID}, nil
}

func (s *ApprovalService) queue(ctx context.Context, actor domain.User, req domain.ChangeRequest, entityID string) (SubmitResult, error) {
	now := time.Now().UTC()
	change := domain.PendingChange{
		ID:          idx.New().String(),
		EntityType:  req.EntityType,
		EntityID:    entityID,
		Op:          req.Op,
		Name:        req.Name,
		Payload:     req.Payload,
		SubmittedBy: actor.Username,
		Status:      domain.ChangePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.withMutation(ctx, func(tx store.Tx) error {
		if err := tx.Changes().CreateChange(ctx, change); err != nil {
			return err
		}
		_, err := tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:      actor.Username,
			Action:     domain.ActionChangeSubmitted,
			EntityType: string(req.EntityType),
			EntityID:   entityID,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return SubmitResult{}, ErrConflictingPendingChange
		}
		return SubmitResult{}, err
	}

	slogx.FromContext(ctx).Info("change queued for review",
		"actor_id", actor.ID, "change_id", change.ID, "entity_id", entityID)
	return SubmitResult{Change: change, EntityID: entityID}, nil
}

// Approve applies a pending change to the canonical record and closes it, as
// one transaction. A change that lost a review race fails ErrAlreadyFinalized.
func (s *ApprovalService) Approve(ctx context.Context, reviewer domain.User, changeID string) error {
	if !reviewer.Role.Elevated() {
		return ErrUnauthorized
	}

	err := s.withMutation(ctx, func(tx store.Tx) error {
		change, err := tx.Changes().GetChange(ctx, changeID)
		if err != nil {
			return err
		}
		if change.Status != domain.ChangePending {
			return ErrAlreadyFinalized
		}

		req := domain.ChangeRequest{
			EntityType: change.EntityType,
			EntityID:   change.EntityID,
			Op:         change.Op,
			Name:       change.Name,
			Payload:    change.Payload,
		}

		before, err := snapshotEntity(ctx, tx, change.EntityType, change.EntityID)
		if err != nil {
			return err
		}

		if err := applyChange(ctx, tx, req, change.EntityID); err != nil {
			return err
		}

		after, err := snapshotEntity(ctx, tx, change.EntityType, change.EntityID)
		if err != nil {
			return err
		}

		if err := tx.Changes().FinalizeChange(ctx, changeID, domain.ChangeApproved, nil); err != nil {
			return err
		}

		_, err = tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:      reviewer.Username,
			Action:     domain.ActionChangeApproved,
			EntityType: string(change.EntityType),
			EntityID:   change.EntityID,
			Before:     before,
			After:      after,
		})
		return err
	})
	if err != nil {
		return s.mapFinalizeErr(ctx, changeID, err)
	}

	slogx.FromContext(ctx).Info("change approved", "reviewer_id", reviewer.ID, "change_id", changeID)
	return nil
}

// Reject closes a pending change without touching the canonical record.
// A non-empty reason is mandatory.
func (s *ApprovalService) Reject(ctx context.Context, reviewer domain.User, changeID, reason string) error {
	if !reviewer.Role.Elevated() {
		return ErrUnauthorized
	}
	if reason == "" {
		return ErrRejectReasonRequired
	}

	err := s.withMutation(ctx, func(tx store.Tx) error {
		change, err := tx.Changes().GetChange(ctx, changeID)
		if err != nil {
			return err
		}
		if change.Status != domain.ChangePending {
			return ErrAlreadyFinalized
		}

		if err := tx.Changes().FinalizeChange(ctx, changeID, domain.ChangeRejected, &reason); err != nil {
			return err
		}

		_, err = tx.Audit().AppendAudit(ctx, domain.AuditEntry{
			Actor:      reviewer.Username,
			Action:     domain.ActionChangeRejected,
			EntityType: string(change.EntityType),
			EntityID:   change.EntityID,
		})
		return err
	})
	if err != nil {
		return s.mapFinalizeErr(ctx, changeID, err)
	}

	slogx.FromContext(ctx).Info("change rejected", "reviewer_id", reviewer.ID, "change_id", changeID)
	return nil
}

// mapFinalizeErr distinguishes a genuinely unknown change id from a change
// that a concurrent reviewer finalized between our read and our write.
func (s *ApprovalService) mapFinalizeErr(ctx context.Context, changeID string, err error) error {
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, getErr := s.Store.Changes().GetChange(ctx, changeID); getErr == nil {
		return ErrAlreadyFinalized
	}
	return ErrUnknownChange
}

func (s *ApprovalService) List(ctx context.Context, pendingOnly bool) ([]domain.PendingChange, error) {
	return s.Store.Changes().ListChanges(ctx, pendingOnly)
}

func (s *ApprovalService) Get(ctx context.Context, id string) (domain.PendingChange, error) {
	change, err := s.Store.Changes().GetChange(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.PendingChange{}, ErrUnknownChange
	}
	return change, err
}

// ListEntities exposes the canonical records for the read surfaces.
func (s *ApprovalService) ListEntities(ctx context.Context, typ domain.EntityType) ([]domain.Entity, error) {
	return s.Store.Entities().ListEntities(ctx, typ)
}

func (s *ApprovalService) GetEntity(ctx context.Context, typ domain.EntityType, id string) (domain.Entity, error) {
	return s.Store.Entities().GetEntity(ctx, typ, id)
}

// applyChange mutates the canonical record per the request, inside the
// caller's transaction.
func applyChange(ctx context.Context, tx store.Tx, req domain.ChangeRequest, entityID string) error {
	switch req.Op {
	case domain.OpCreate, domain.OpUpdate:
		now := time.Now().UTC()
		entity := domain.Entity{
			ID:         entityID,
			EntityType: req.EntityType,
			Name:       req.Name,
			Data:       req.Payload,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if existing, err := tx.Entities().GetEntity(ctx, req.EntityType, entityID); err == nil {
			entity.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.Entities().UpsertEntity(ctx, entity)
	case domain.OpDelete:
		return tx.Entities().DeleteEntity(ctx, req.EntityType, entityID)
	default:
		return fmt.Errorf("unknown change operation %q", req.Op)
	}
}

// snapshotEntity captures a record's content for the audit before/after
// columns; nil when the record does not exist on that side of the change.
func snapshotEntity(ctx context.Context, tx store.Tx, typ domain.EntityType, id string) (json.RawMessage, error) {
	entity, err := tx.Entities().GetEntity(ctx, typ, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data,omitempty"`
	}{Name: entity.Name, Data: entity.Data})
}

func (s *ApprovalService) withMutation(ctx context.Context, fn func(tx store.Tx) error) error {
	release, err := s.Gate.Mutate()
	if err != nil {
		return err
	}
	defer release()

	return s.Store.WithTx(ctx, fn)
}
