package signals

import (
	"sync"

	"gorm.io/gorm"
)

// TxHooks is a callback list attached to one unit of work. Callbacks queued
// with AfterCommit run only once the enclosing transaction has committed;
// a rolled-back transaction discards them. This is what keeps the dump jobs
// from racing the rows they are about to read: enqueue-after-commit, never
// enqueue-on-event.
type TxHooks struct {
	mu        sync.Mutex
	callbacks []func()
}

// AfterCommit queues a callback to run after a successful commit.
func (h *TxHooks) AfterCommit(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, fn)
}

func (h *TxHooks) flush() {
	h.mu.Lock()
	callbacks := h.callbacks
	h.callbacks = nil
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (h *TxHooks) discard() {
	h.mu.Lock()
	h.callbacks = nil
	h.mu.Unlock()
}

// InTransaction runs fn inside a database transaction and flushes the queued
// hooks only if the transaction commits.
func InTransaction(db *gorm.DB, fn func(tx *gorm.DB, hooks *TxHooks) error) error {
	hooks := &TxHooks{}
	err := db.Transaction(func(tx *gorm.DB) error {
		return fn(tx, hooks)
	})
	if err != nil {
		hooks.discard()
		return err
	}
	hooks.flush()
	return nil
}
