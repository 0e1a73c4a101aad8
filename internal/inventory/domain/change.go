package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType is the closed set of record kinds the approval workflow governs.
type EntityType string

const (
	EntityEquipment EntityType = "equipment"
	EntityLicense   EntityType = "license"
)

func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityEquipment:
		return EntityEquipment, nil
	case EntityLicense:
		return EntityLicense, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", s)
	}
}

// ChangeOp is what a proposed change does to its target record.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeStatus is the workflow state of a proposed change.
// Approved and Rejected are terminal.
type ChangeStatus string

const (
	ChangePending  ChangeStatus = "pending"
	ChangeApproved ChangeStatus = "approved"
	ChangeRejected ChangeStatus = "rejected"
)

// ChangeRequest is a proposed mutation entering the workflow.
type ChangeRequest struct {
	EntityType EntityType
	EntityID   string // empty for creates; an id is allocated at submit time
	Op         ChangeOp
	Name       string          // display name of the target record
	Payload    json.RawMessage // proposed record content; nil for deletes
}

// PendingChange tracks a proposed mutation awaiting review.
type PendingChange struct {
	ID           string
	EntityType   EntityType
	EntityID     string
	Op           ChangeOp
	Name         string
	Payload      json.RawMessage
	SubmittedBy  string
	Status       ChangeStatus
	RejectReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Entity is a canonical equipment or license record. The detail surfaces
// live elsewhere; the workflow engine only applies payloads to these rows.
type Entity struct {
	ID         string
	EntityType EntityType
	Name       string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
