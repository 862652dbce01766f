// README: Facade commands and results.
package dispatch

import (
	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/matching"
	"plow/internal/modules/payment"
	"plow/internal/types"
)

type CreateCommand struct {
	ClientID types.ID `validate:"required"`
	// OperatorID books a specific operator; only they may accept.
	OperatorID *types.ID
	// RequestID makes the create idempotent for a client.
	RequestID        string            `validate:"omitempty,max=128"`
	Details          job.Details
	PaymentMethod    job.PaymentMethod `validate:"required,oneof=card cash e-transfer"`
	PaymentMethodRef string            `validate:"required_if=PaymentMethod card,max=255"`
}

type AcceptCommand struct {
	JobID      types.ID `validate:"required"`
	OperatorID types.ID `validate:"required"`
}

type AdvanceCommand struct {
	JobID       types.ID      `validate:"required"`
	ActorID     types.ID      `validate:"required"`
	Event       job.EventKind `validate:"required"`
	EvidenceRef string        `validate:"max=1024"`
	Reason      string        `validate:"max=512"`
}

type CancelCommand struct {
	JobID   types.ID `validate:"required"`
	ActorID types.ID `validate:"required"`
	Reason  string   `validate:"max=512"`
}

type CompleteCommand struct {
	JobID types.ID `validate:"required"`
	// ActorID is empty when the platform completes the job itself.
	ActorID     types.ID
	EvidenceRef string `validate:"max=1024"`
	// CashReceived and TipAmount are reported by the operator for
	// off-platform payments, in minor units.
	CashReceived *int64 `validate:"omitempty,gt=0"`
	TipAmount    *int64 `validate:"omitempty,gte=0"`
	// SkipReview is honoured for administrators only.
	SkipReview bool
}

type ReopenCommand struct {
	JobID            types.ID `validate:"required"`
	AdminID          types.ID `validate:"required"`
	PaymentMethodRef string   `validate:"max=255"`
}

type RefundCommand struct {
	JobID   types.ID `validate:"required"`
	AdminID types.ID `validate:"required"`
	Reason  string   `validate:"max=512"`
}

type CompleteResult struct {
	Job         *job.Job               `json:"job"`
	Transaction *ledger.Transaction    `json:"transaction,omitempty"`
	Capture     *payment.CaptureResult `json:"-"`
}

type JobTransactions struct {
	Transactions []*ledger.Transaction `json:"transactions"`
	Entries      []*ledger.Entry       `json:"entries"`
}

// OpenJob is a board listing an operator may accept.
type OpenJob struct {
	Job        *job.Job `json:"job"`
	DistanceKm float64  `json:"distance_km"`
}

func toOpenJob(j *job.Job, h matching.Hit) OpenJob {
	return OpenJob{Job: j, DistanceKm: h.DistanceKm}
}
