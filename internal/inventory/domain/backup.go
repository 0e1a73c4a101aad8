package domain

import "time"

// BackupRecord is the single retained snapshot slot. Each backup overwrites
// it; there is deliberately no history.
type BackupRecord struct {
	TakenAt time.Time
	State   []byte // opaque serialized datastore state
}

// BackupStatus reports slot existence without exposing content.
type BackupStatus struct {
	HasBackup bool
	TakenAt   *time.Time
}
