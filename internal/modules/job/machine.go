// README: Job state machine: transition table as code plus pure transition logic.
package job

import (
	"fmt"
	"time"
)

type EventKind string

const (
	EventAccept          EventKind = "accept"
	EventStartTravel     EventKind = "start_travel"
	EventArrive          EventKind = "arrive"
	EventSubmitEvidence  EventKind = "submit_evidence"
	EventApproveEvidence EventKind = "approve_evidence"
	EventCancel          EventKind = "cancel"
)

// transitions represents the job state flow (diagram) as code.
var transitions = map[Status]map[EventKind]Status{
	StatusPending: {
		EventAccept: StatusAccepted,
		EventCancel: StatusCancelled,
	},
	StatusAccepted: {
		EventStartTravel: StatusEnRoute,
		EventCancel:      StatusCancelled,
	},
	StatusEnRoute: {
		EventArrive: StatusInProgress,
		EventCancel: StatusCancelled,
	},
	StatusInProgress: {
		EventSubmitEvidence: StatusPhotoProof,
		EventCancel:         StatusCancelled,
	},
	StatusPhotoProof: {
		EventApproveEvidence: StatusCompleted,
		EventCancel:          StatusCancelled,
	},
}

// eventTargets maps every event to the single status it leads to.
var eventTargets = map[EventKind]Status{
	EventAccept:          StatusAccepted,
	EventStartTravel:     StatusEnRoute,
	EventArrive:          StatusInProgress,
	EventSubmitEvidence:  StatusPhotoProof,
	EventApproveEvidence: StatusCompleted,
	EventCancel:          StatusCancelled,
}

// OperatorEvents are the events advanced by the assigned operator.
var OperatorEvents = map[EventKind]bool{
	EventStartTravel:    true,
	EventArrive:         true,
	EventSubmitEvidence: true,
}

func (e EventKind) Valid() bool {
	_, ok := eventTargets[e]
	return ok
}

// Target returns the status e leads to.
func (e EventKind) Target() Status {
	return eventTargets[e]
}

// CanTransition reports whether some event moves a job from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next resolves event e against status from. A job already sitting in the
// event's target status is a no-op so retried requests succeed.
func Next(from Status, e EventKind) (to Status, noop bool, err error) {
	if !e.Valid() {
		return "", false, fmt.Errorf("%w: unknown event %q", ErrValidation, e)
	}
	if next, ok := transitions[from][e]; ok {
		return next, false, nil
	}
	if e.Target() == from {
		return from, true, nil
	}
	return "", false, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, e, from)
}

// Transition returns a copy of j moved by e. j itself is never mutated.
func Transition(j *Job, e EventKind, now time.Time) (*Job, bool, error) {
	to, noop, err := Next(j.Status, e)
	if err != nil || noop {
		return j, noop, err
	}
	next := j.Clone()
	next.Status = to
	next.UpdatedAt = later(now, j.UpdatedAt)
	if to == StatusCompleted {
		t := next.UpdatedAt
		next.CompletionTime = &t
	}
	return next, false, nil
}

// Reopen resets a cancelled job to pending. It is an administrative operation,
// not an event, and clears the operator so the job can be booked again.
func Reopen(j *Job, now time.Time) (*Job, error) {
	if j.Status != StatusCancelled {
		return nil, fmt.Errorf("%w: reopen from %s", ErrInvalidTransition, j.Status)
	}
	next := j.Clone()
	next.Status = StatusPending
	next.PaymentStatus = PaymentUninitiated
	next.OperatorID = nil
	next.CancelReason = ""
	next.EvidenceRef = ""
	next.CompletionTime = nil
	next.UpdatedAt = later(now, j.UpdatedAt)
	return next, nil
}

// Touch advances UpdatedAt without changing status.
func Touch(j *Job, now time.Time) *Job {
	next := j.Clone()
	next.UpdatedAt = later(now, j.UpdatedAt)
	return next
}

// later keeps UpdatedAt monotonically non-decreasing.
func later(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

// VoidCompleted moves a completed job to cancelled once its captured payment
// has been refunded through dispute resolution.
func VoidCompleted(j *Job, reason string, now time.Time) (*Job, error) {
	if j.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: refund from %s", ErrInvalidTransition, j.Status)
	}
	next := j.Clone()
	next.Status = StatusCancelled
	next.CancelReason = reason
	next.UpdatedAt = later(now, j.UpdatedAt)
	return next, nil
}
