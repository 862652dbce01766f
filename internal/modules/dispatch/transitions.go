package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/payment"
)

// Accept assigns the operator to a pending job. Re-accepting a job the same
// operator already holds is a no-op.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (out *job.Job, err error) {
	ctx, span := startSpan(ctx, "dispatch.Accept",
		attribute.String("job.id", string(cmd.JobID)),
		attribute.String("operator.id", string(cmd.OperatorID)))
	defer func() { endSpan(span, err) }()

	if err := s.checkStruct(cmd); err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.JobID, func(ctx context.Context, cur *job.Job) (*change, error) {
		if cur.ClientID == cmd.OperatorID {
			return nil, fmt.Errorf("%w: client cannot accept their own job", job.ErrForbidden)
		}
		next, noop, err := job.Transition(cur, job.EventAccept, s.now())
		if err != nil {
			return nil, err
		}
		if noop {
			if cur.IsOperator(cmd.OperatorID) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: job already accepted by another operator", job.ErrInvalidTransition)
		}
		if cur.OperatorID != nil && !cur.IsOperator(cmd.OperatorID) {
			return nil, fmt.Errorf("%w: job is booked with another operator", job.ErrForbidden)
		}
		op := cmd.OperatorID
		next.OperatorID = &op
		return &change{next: next, actor: ptr(cmd.OperatorID), note: string(job.EventAccept)}, nil
	})
}

// Advance applies event on behalf of actor. Accept, cancel and evidence
// approval carry their own rules and are delegated.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) (out *job.Job, err error) {
	if err := s.checkStruct(cmd); err != nil {
		return nil, err
	}
	if !cmd.Event.Valid() {
		return nil, fmt.Errorf("%w: unknown event %q", job.ErrValidation, cmd.Event)
	}
	switch cmd.Event {
	case job.EventAccept:
		return s.Accept(ctx, AcceptCommand{JobID: cmd.JobID, OperatorID: cmd.ActorID})
	case job.EventCancel:
		return s.Cancel(ctx, CancelCommand{JobID: cmd.JobID, ActorID: cmd.ActorID, Reason: cmd.Reason})
	case job.EventApproveEvidence:
		res, err := s.Complete(ctx, CompleteCommand{JobID: cmd.JobID, ActorID: cmd.ActorID, EvidenceRef: cmd.EvidenceRef})
		if err != nil {
			return nil, err
		}
		return res.Job, nil
	}

	ctx, span := startSpan(ctx, "dispatch.Advance",
		attribute.String("job.id", string(cmd.JobID)),
		attribute.String("job.event", string(cmd.Event)))
	defer func() { endSpan(span, err) }()

	return s.mutate(ctx, cmd.JobID, func(ctx context.Context, cur *job.Job) (*change, error) {
		if !cur.IsParty(cmd.ActorID) {
			return nil, job.ErrForbidden
		}
		if job.OperatorEvents[cmd.Event] && !cur.IsOperator(cmd.ActorID) {
			return nil, fmt.Errorf("%w: only the assigned operator may %s", job.ErrForbidden, cmd.Event)
		}
		next, noop, err := job.Transition(cur, cmd.Event, s.now())
		if err != nil || noop {
			return nil, err
		}
		if cmd.Event == job.EventSubmitEvidence {
			if cmd.EvidenceRef == "" {
				return nil, fmt.Errorf("%w: evidence reference required", job.ErrValidation)
			}
			next.EvidenceRef = cmd.EvidenceRef
		}
		return &change{next: next, actor: ptr(cmd.ActorID), note: string(cmd.Event)}, nil
	})
}

// Cancel moves a non-terminal job to cancelled and releases its hold.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (out *job.Job, err error) {
	ctx, span := startSpan(ctx, "dispatch.Cancel", attribute.String("job.id", string(cmd.JobID)))
	defer func() { endSpan(span, err) }()

	if err := s.checkStruct(cmd); err != nil {
		return nil, err
	}
	return s.mutate(ctx, cmd.JobID, func(ctx context.Context, cur *job.Job) (*change, error) {
		if !cur.IsParty(cmd.ActorID) && !s.IsAdmin(cmd.ActorID) {
			return nil, job.ErrForbidden
		}
		now := s.now()
		next, noop, err := job.Transition(cur, job.EventCancel, now)
		if err != nil || noop {
			return nil, err
		}
		next.CancelReason = cmd.Reason
		c := &change{next: next, actor: ptr(cmd.ActorID), note: cmd.Reason}
		if !cur.PaymentMethod.Escrowed() {
			return c, nil
		}

		txn, gen, err := s.currentTransaction(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		if txn == nil || txn.Status != ledger.StatusHeld {
			return c, nil
		}
		res, err := s.gateway.Cancel(ctx, payment.CancelRequest{
			HoldRef:        txn.HoldRef,
			IdempotencyKey: idempotencyKey(cur.ID, string(job.StatusCancelled), gen),
		})
		if err != nil {
			return nil, paymentErr(payment.OpCancel, err)
		}
		upd := txn.Clone()
		if err := upd.Void(res.Settled, now); err != nil {
			return nil, err
		}
		kind := ledger.EntryVoid
		if res.Settled {
			kind = ledger.EntryRefund
		}
		next.PaymentStatus = job.PaymentRefunded
		c.txnUpd, c.txnFrom = upd, ledger.StatusHeld
		c.entry = &ledger.Entry{
			TransactionID: txn.ID,
			JobID:         cur.ID,
			Kind:          kind,
			Amount:        txn.Amount,
			GatewayRef:    txn.HoldRef,
			CreatedAt:     next.UpdatedAt,
		}
		return c, nil
	})
}
