package storage

import (
	"sync"

	"taskforge/internal/core"
)

// TxStatus is the lifecycle state of a Transaction (spec.md §4.2).
type TxStatus string

const (
	TxPending    TxStatus = "pending"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolledBack"
	TxFailed     TxStatus = "failed"
)

// undoFunc restores the pre-image of one buffered mutation.
type undoFunc func() error

// Transaction groups operations against the Storage Engine so they can be
// rolled back as a unit. Grounded on the straga-Mimir_lite storage
// transaction (other_examples/8397216f…), adapted from its buffered
// node/edge WAL to TaskForge's entities: each mutation here applies
// immediately (spec.md §4.2: "rollback data is captured as pre-images
// before each mutation"), and Rollback replays the captured pre-images in
// reverse order rather than replaying a pending buffer.
type Transaction struct {
	mu     sync.Mutex
	ID     string
	Status TxStatus
	engine *Engine
	undo   []undoFunc
}

// BeginTransaction starts a new Transaction bound to this engine.
func (e *Engine) BeginTransaction() *Transaction {
	return &Transaction{ID: core.NewID("tx"), Status: TxPending, engine: e}
}

// record appends an undo step; called by the typed helpers below after each
// successful mutation.
func (tx *Transaction) record(u undoFunc) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.undo = append(tx.undo, u)
}

// UpdateTask mutates a task within the transaction, capturing its pre-image
// for rollback.
func (tx *Transaction) UpdateTask(id string, mutate func(*core.Task)) core.Result[*core.Task] {
	pre := tx.engine.Tasks.Get(id)
	if !pre.IsOk() {
		tx.Status = TxFailed
		return pre
	}
	preImage := *pre.Value
	res := tx.engine.Tasks.Update(id, mutate)
	if !res.IsOk() {
		tx.Status = TxFailed
		return res
	}
	tx.record(func() error {
		_ = tx.engine.Tasks.Update(id, func(t *core.Task) { *t = preImage })
		return nil
	})
	return res
}

// DeleteTask deletes a task within the transaction, capturing enough state
// to recreate it on rollback.
func (tx *Transaction) DeleteTask(id string) core.Result[struct{}] {
	pre := tx.engine.Tasks.Get(id)
	if !pre.IsOk() {
		tx.Status = TxFailed
		return core.Fail[struct{}](pre.Err)
	}
	preImage := pre.Value
	res := tx.engine.Tasks.Delete(id)
	if !res.IsOk() {
		tx.Status = TxFailed
		return res
	}
	tx.record(func() error {
		_ = tx.engine.Tasks.Create(preImage)
		return nil
	})
	return res
}

// CreateTask creates a task within the transaction; rollback deletes it.
func (tx *Transaction) CreateTask(t *core.Task) core.Result[*core.Task] {
	res := tx.engine.Tasks.Create(t)
	if !res.IsOk() {
		tx.Status = TxFailed
		return res
	}
	id := t.ID
	tx.record(func() error {
		_ = tx.engine.Tasks.Delete(id)
		return nil
	})
	return res
}

// Commit finalizes the transaction; no further rollback is possible.
func (tx *Transaction) Commit() *core.Error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status == TxFailed {
		return core.NewError(core.KindSystem, "cannot commit a failed transaction %s", tx.ID)
	}
	tx.Status = TxCommitted
	return nil
}

// Rollback replays the captured pre-images in reverse order.
func (tx *Transaction) Rollback() *core.Error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status == TxCommitted {
		return core.NewError(core.KindValidation, "cannot roll back committed transaction %s", tx.ID)
	}
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](); err != nil {
			return core.NewError(core.KindSystem, "rollback step %d of %s: %v", i, tx.ID, err)
		}
	}
	tx.Status = TxRolledBack
	return nil
}
