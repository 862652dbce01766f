// README: Unit of work: job and ledger writes committed together.
package dispatch

import (
	"context"
	"sync"

	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
)

// Tx exposes the repositories bound to one unit of work.
type Tx struct {
	Jobs   job.Repository
	Ledger ledger.Repository
}

// UnitOfWork runs fn atomically. An error from fn discards its writes.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// MemoryUoW serializes every unit of work behind one lock. The memory stores
// cannot roll back, so fn performs its checks before its writes; every ledger
// change is paired with a job version bump, so a stale plan fails on the job
// compare-and-swap before anything is written.
type MemoryUoW struct {
	mu sync.Mutex
	tx Tx
}

func NewMemoryUoW(jobs *job.MemStore, led *ledger.MemStore) *MemoryUoW {
	return &MemoryUoW{tx: Tx{Jobs: jobs, Ledger: led}}
}

func (u *MemoryUoW) Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(ctx, u.tx)
}
