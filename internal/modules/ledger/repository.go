package ledger

import (
	"context"

	"plow/internal/types"
)

// Repository persists transactions and entries. Update succeeds only when the
// stored status still equals expected.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	Get(ctx context.Context, id types.ID) (*Transaction, error)
	Update(ctx context.Context, t *Transaction, expected Status) (bool, error)
	ListByJob(ctx context.Context, jobID types.ID) ([]*Transaction, error)
	AppendEntry(ctx context.Context, e *Entry) error
	Entries(ctx context.Context, jobID types.ID) ([]*Entry, error)
}
