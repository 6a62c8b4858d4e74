package deploy

import "sync"

// LockManager serializes deployments per application directory.
//
// The outer mutex protects the locks map; each application then has its own
// mutex for the actual deployment lock. Different applications can deploy
// concurrently, but a given application directory only ever has one
// deployment mutating it at a time. Interleaving two tree replacements would
// corrupt the capture/restore ordering, so a second caller is rejected
// immediately rather than queued.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockManager creates a new lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock attempts to acquire the deployment lock for an application.
// Non-blocking: returns false immediately when a deployment is already in
// flight.
func (lm *LockManager) TryLock(appName string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[appName]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[appName] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases the deployment lock for an application. Safe to call for a
// name that was never locked (no-op).
func (lm *LockManager) Unlock(appName string) {
	lm.mu.Lock()
	lock := lm.locks[appName]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}
