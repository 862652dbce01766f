package job

import (
	"context"

	"plow/internal/types"
)

// Repository persists jobs. Update is a compare-and-swap on Version: it
// succeeds only when the stored version equals expected, and then stores
// expected+1 into j.Version.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id types.ID) (*Job, error)
	Update(ctx context.Context, j *Job, expected int64) (bool, error)
	ListByOperator(ctx context.Context, operatorID types.ID, statuses ...Status) ([]*Job, error)
	ListByClient(ctx context.Context, clientID types.ID) ([]*Job, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, jobID types.ID) ([]*Event, error)
	// LockOperator serializes check-then-act on one operator's job set for
	// the rest of the enclosing unit of work.
	LockOperator(ctx context.Context, operatorID types.ID) error
}

// NonTerminal lists every status an operator queue is built from.
var NonTerminal = []Status{StatusPending, StatusAccepted, StatusEnRoute, StatusInProgress, StatusPhotoProof}
