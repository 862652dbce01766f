// README: Lifecycle notification events and sink contract.
package notify

import (
	"context"
	"time"

	"plow/internal/types"
)

type Kind string

const (
	KindJobCreated      Kind = "job_created"
	KindJobStatusChange Kind = "job_status_change"
	KindPayment         Kind = "payment"
)

type Event struct {
	Kind          Kind      `json:"kind"`
	JobID         types.ID  `json:"job_id"`
	ClientID      types.ID  `json:"client_id"`
	OperatorID    *types.ID `json:"operator_id,omitempty"`
	FromStatus    string    `json:"from_status,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Amount        int64     `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	At            time.Time `json:"at"`
}

// Recipients are the parties a push notification goes to.
func (e Event) Recipients() []types.ID {
	out := []types.ID{e.ClientID}
	if e.OperatorID != nil && *e.OperatorID != e.ClientID {
		out = append(out, *e.OperatorID)
	}
	return out
}

// Sink delivers an event somewhere. Errors are logged, never propagated to
// the operation that produced the event.
type Sink interface {
	Name() string
	Send(ctx context.Context, e Event) error
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(Event) {}
