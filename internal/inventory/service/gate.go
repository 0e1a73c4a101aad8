package service

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrDatabaseBusy     = errors.New("database busy")
	ErrBackupInProgress = errors.New("backup in progress")
)

// Gate coordinates ordinary mutations with the exclusive snapshot operations
// (backup, restore, clear). Mutations hold the gate shared; a snapshot
// operation holds it exclusively. While an exclusive operation runs,
// mutations fail fast with ErrDatabaseBusy rather than queueing behind an
// operation of unbounded duration. Plain reads never touch the gate.
type Gate struct {
	mu        sync.RWMutex
	exclusive atomic.Bool
}

// Mutate acquires the gate in shared mode. The returned release function
// must be called when the mutation's transaction has committed or rolled
// back.
func (g *Gate) Mutate() (release func(), err error) {
	if g.exclusive.Load() {
		return nil, ErrDatabaseBusy
	}
	g.mu.RLock()

	// An exclusive operation may have begun between the check and the lock;
	// it would be blocked waiting on us, so back out.
	if g.exclusive.Load() {
		g.mu.RUnlock()
		return nil, ErrDatabaseBusy
	}
	return g.mu.RUnlock, nil
}

// Exclusive acquires the gate exclusively for a snapshot operation. A second
// exclusive caller fails immediately with ErrBackupInProgress; in-flight
// mutations are drained before Exclusive returns. The operation is not
// cancellable once started: partial completion is strictly worse than
// blocking.
func (g *Gate) Exclusive() (release func(), err error) {
	if !g.exclusive.CompareAndSwap(false, true) {
		return nil, ErrBackupInProgress
	}
	g.mu.Lock()

	return func() {
		g.exclusive.Store(false)
		g.mu.Unlock()
	}, nil
}
