package security

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskforge/internal/core"
)

// LockOp is the access mode a lock is held for.
type LockOp string

const (
	LockRead    LockOp = "read"
	LockWrite   LockOp = "write"
	LockExecute LockOp = "execute"
)

// Lock is one advisory lock record (spec.md §4.1).
type Lock struct {
	ID             string
	Resource       string
	Op             LockOp
	OwnerSessionID string
	AcquiredAt     time.Time
	ExpiresAt      time.Time
}

type lockTable struct {
	mu    sync.Mutex
	locks map[string][]*Lock // resource -> held locks (many readers, or one writer)
	byID  map[string]*Lock

	cronRunner *cron.Cron
}

func newLockTable() *lockTable {
	return &lockTable{
		locks: make(map[string][]*Lock),
		byID:  make(map[string]*Lock),
	}
}

// AcquireLock grants a read/write/execute lock on resource, enforcing
// write-exclusivity: a write lock excludes all other locks on the same
// resource, reads share with reads (spec.md §4.1).
func (g *Gate) AcquireLock(resource string, op LockOp, ownerSessionID string, maxDuration, timeout time.Duration) (*Lock, *core.Error) {
	deadline := time.Now().Add(timeout)
	for {
		if lock, busy := g.locks.tryAcquire(resource, op, ownerSessionID, maxDuration); !busy {
			if lock != nil {
				g.audit.Log(EventSecurity, SeverityLow, "acquireLock", "granted",
					map[string]any{"resource": resource, "op": op, "lockId": lock.ID})
				return lock, nil
			}
		}
		if time.Now().After(deadline) {
			g.audit.Log(EventSecurity, SeverityMedium, "acquireLock", "busy",
				map[string]any{"resource": resource, "op": op})
			return nil, core.NewError(core.KindPermission, "lock busy on %s", resource)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (t *lockTable) tryAcquire(resource string, op LockOp, owner string, maxDuration time.Duration) (*Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpiredLocked(resource)

	existing := t.locks[resource]
	if len(existing) > 0 {
		if op == LockWrite || existing[0].Op == LockWrite {
			return nil, true // busy
		}
		// read shares with read
	}

	now := time.Now()
	lock := &Lock{
		ID:             core.NewID("lock"),
		Resource:       resource,
		Op:             op,
		OwnerSessionID: owner,
		AcquiredAt:     now,
		ExpiresAt:      now.Add(maxDuration),
	}
	t.locks[resource] = append(t.locks[resource], lock)
	t.byID[lock.ID] = lock
	return lock, false
}

func (t *lockTable) evictExpiredLocked(resource string) {
	now := time.Now()
	kept := t.locks[resource][:0]
	for _, l := range t.locks[resource] {
		if now.After(l.ExpiresAt) {
			delete(t.byID, l.ID)
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		delete(t.locks, resource)
	} else {
		t.locks[resource] = kept
	}
}

// ReleaseLock releases a previously acquired lock by id.
func (g *Gate) ReleaseLock(lockID string) *core.Error {
	t := g.locks
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.byID[lockID]
	if !ok {
		return core.NewError(core.KindValidation, "unknown lock id %s", lockID)
	}
	delete(t.byID, lockID)
	held := t.locks[lock.Resource]
	for i, l := range held {
		if l.ID == lockID {
			t.locks[lock.Resource] = append(held[:i], held[i+1:]...)
			break
		}
	}
	if len(t.locks[lock.Resource]) == 0 {
		delete(t.locks, lock.Resource)
	}
	g.audit.Log(EventSecurity, SeverityLow, "releaseLock", "released",
		map[string]any{"resource": lock.Resource, "lockId": lockID})
	return nil
}

// StartLockCleanup runs a background sweep every interval that evicts
// expired locks and audits the eviction, scheduled via robfig/cron
// (SPEC_FULL.md §11) rather than a bare time.Ticker.
func (g *Gate) StartLockCleanup(interval time.Duration) error {
	t := g.locks
	t.cronRunner = cron.New()
	_, err := t.cronRunner.AddFunc(every(interval), func() {
		t.mu.Lock()
		for resource := range t.locks {
			before := len(t.locks[resource])
			t.evictExpiredLocked(resource)
			if after := len(t.locks[resource]); after < before {
				g.audit.Log(EventSecurity, SeverityLow, "lockCleanup", "evicted",
					map[string]any{"resource": resource, "count": before - after})
			}
		}
		t.mu.Unlock()
	})
	if err != nil {
		return err
	}
	t.cronRunner.Start()
	return nil
}

// StopLockCleanup stops the background sweep started by StartLockCleanup.
func (g *Gate) StopLockCleanup() {
	if g.locks.cronRunner != nil {
		ctx := g.locks.cronRunner.Stop()
		<-ctx.Done()
	}
}

// every builds a cron spec equivalent to a fixed interval, e.g. "@every 1m0s".
func every(d time.Duration) string {
	return "@every " + d.String()
}
