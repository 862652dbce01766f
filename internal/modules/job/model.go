// README: Job aggregate, status definitions and error kinds.
package job

import (
	"errors"
	"fmt"
	"time"

	"plow/internal/types"
)

type Status string

const (
	StatusNone       Status = ""
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusEnRoute    Status = "en-route"
	StatusInProgress Status = "in-progress"
	StatusPhotoProof Status = "photo-proof"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no normal event can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether s counts toward the one-active-job rule.
func (s Status) Active() bool {
	return s == StatusEnRoute || s == StatusInProgress
}

// Queued reports whether s is waiting in an operator queue.
func (s Status) Queued() bool {
	return s == StatusPending || s == StatusAccepted
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusEnRoute, StatusInProgress,
		StatusPhotoProof, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUninitiated PaymentStatus = "uninitiated"
	PaymentHeld        PaymentStatus = "held"
	PaymentPaid        PaymentStatus = "paid"
	PaymentRefunded    PaymentStatus = "refunded"
	PaymentFailed      PaymentStatus = "failed"
)

type PaymentMethod string

const (
	MethodCard      PaymentMethod = "card"
	MethodCash      PaymentMethod = "cash"
	MethodETransfer PaymentMethod = "e-transfer"
)

// Escrowed reports whether funds are held at booking time for this method.
func (m PaymentMethod) Escrowed() bool {
	return m == MethodCard
}

func (m PaymentMethod) Valid() bool {
	return m == MethodCard || m == MethodCash || m == MethodETransfer
}

type ServiceType string

const (
	ServiceDriveway   ServiceType = "driveway"
	ServiceWalkway    ServiceType = "walkway"
	ServiceSidewalk   ServiceType = "sidewalk"
	ServiceRoof       ServiceType = "roof"
	ServiceSalting    ServiceType = "salting"
	ServiceParkingLot ServiceType = "parking-lot"
)

// Details is the descriptive part of a booking.
type Details struct {
	Services    []ServiceType `json:"services" validate:"required,min=1,dive,oneof=driveway walkway sidewalk roof salting parking-lot"`
	Address     string        `json:"address" validate:"required,max=512"`
	Site        *types.Point  `json:"site,omitempty"`
	ScheduledAt *time.Time    `json:"scheduled_at,omitempty"` // nil means ASAP
	Price       types.Money   `json:"price"`
	Notes       string        `json:"notes,omitempty" validate:"max=2000"`
}

// ASAP reports whether the client asked for service as soon as possible.
func (d Details) ASAP() bool {
	return d.ScheduledAt == nil
}

type Job struct {
	ID             types.ID
	ClientID       types.ID
	OperatorID     *types.ID
	Details        Details
	PaymentMethod  PaymentMethod
	Status         Status
	PaymentStatus  PaymentStatus
	Version        int64
	EvidenceRef    string
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletionTime *time.Time
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (j *Job) Clone() *Job {
	cp := *j
	if j.OperatorID != nil {
		op := *j.OperatorID
		cp.OperatorID = &op
	}
	if j.CompletionTime != nil {
		t := *j.CompletionTime
		cp.CompletionTime = &t
	}
	cp.Details.Services = append([]ServiceType(nil), j.Details.Services...)
	if j.Details.Site != nil {
		p := *j.Details.Site
		cp.Details.Site = &p
	}
	if j.Details.ScheduledAt != nil {
		t := *j.Details.ScheduledAt
		cp.Details.ScheduledAt = &t
	}
	return &cp
}

// IsParty reports whether actor is the client or the assigned operator.
func (j *Job) IsParty(actor types.ID) bool {
	return actor == j.ClientID || j.IsOperator(actor)
}

func (j *Job) IsOperator(actor types.ID) bool {
	return j.OperatorID != nil && *j.OperatorID == actor
}

// CheckInvariants verifies the cross-field rules every persisted job satisfies.
func (j *Job) CheckInvariants() error {
	if j.PaymentStatus == PaymentPaid && j.Status != StatusCompleted {
		return errors.New("paid job must be completed")
	}
	if j.PaymentStatus == PaymentRefunded && j.Status != StatusCancelled {
		return errors.New("refunded job must be cancelled")
	}
	if j.OperatorID == nil && j.Status != StatusPending && j.Status != StatusCancelled {
		return errors.New("operator required once accepted")
	}
	return nil
}

// Event is an append-only record of a committed transition.
type Event struct {
	ID         int64
	JobID      types.ID
	FromStatus Status
	ToStatus   Status
	ActorID    *types.ID
	Note       string
	CreatedAt  time.Time
}

var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrOperatorBusy      = errors.New("operator already has an active job")
	ErrForbidden         = errors.New("actor is not a party to this job")
	ErrConflict          = errors.New("job version conflict")
	ErrNotFound          = errors.New("job not found")
	ErrEvidenceRejected  = fmt.Errorf("%w: completion evidence rejected", ErrValidation)
)
