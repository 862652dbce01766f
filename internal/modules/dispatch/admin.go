package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/payment"
	"plow/internal/types"
)

// Reopen returns a cancelled job to pending. Card jobs need a fresh
// authorization, recorded as a new transaction.
func (s *Service) Reopen(ctx context.Context, cmd ReopenCommand) (out *job.Job, err error) {
	ctx, span := startSpan(ctx, "dispatch.Reopen", attribute.String("job.id", string(cmd.JobID)))
	defer func() { endSpan(span, err) }()

	if err := s.checkStruct(cmd); err != nil {
		return nil, err
	}
	if !s.IsAdmin(cmd.AdminID) {
		return nil, fmt.Errorf("%w: reopen requires an administrator", job.ErrForbidden)
	}
	return s.mutate(ctx, cmd.JobID, func(ctx context.Context, cur *job.Job) (*change, error) {
		if cur.Status == job.StatusPending {
			return nil, nil
		}
		next, err := job.Reopen(cur, s.now())
		if err != nil {
			return nil, err
		}
		c := &change{next: next, actor: ptr(cmd.AdminID), note: "reopened"}
		if !cur.PaymentMethod.Escrowed() {
			return c, nil
		}
		if cmd.PaymentMethodRef == "" {
			return nil, fmt.Errorf("%w: payment method required to reopen a card job", job.ErrValidation)
		}
		txns, err := s.ledger.ListByJob(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		price := cur.Details.Price
		quote, err := s.fees.Quote(ctx, price)
		if err != nil {
			return nil, quoteError(err)
		}
		hold, err := s.gateway.Authorize(ctx, payment.AuthorizeRequest{
			Amount:           price,
			PaymentMethodRef: cmd.PaymentMethodRef,
			Description:      fmt.Sprintf("snow removal job %s (reopened)", cur.ID),
			IdempotencyKey:   idempotencyKey(cur.ID, string(job.StatusPending), len(txns)),
		})
		if err != nil {
			return nil, paymentErr(payment.OpAuthorize, err)
		}
		txn := ledger.NewHold(cur.ID, cur.ClientID, price, quote.Fee, hold.Ref, next.UpdatedAt)
		txn.Generation = len(txns)
		next.PaymentStatus = job.PaymentHeld
		c.txnNew = txn
		c.entry = &ledger.Entry{
			TransactionID: txn.ID,
			JobID:         cur.ID,
			Kind:          ledger.EntryHold,
			Amount:        txn.Amount,
			GatewayRef:    hold.Ref,
			CreatedAt:     next.UpdatedAt,
		}
		return c, nil
	})
}

// Refund reverses the captured card payment of a completed job and moves the
// job to cancelled.
func (s *Service) Refund(ctx context.Context, cmd RefundCommand) (out *job.Job, err error) {
	ctx, span := startSpan(ctx, "dispatch.Refund", attribute.String("job.id", string(cmd.JobID)))
	defer func() { endSpan(span, err) }()

	if err := s.checkStruct(cmd); err != nil {
		return nil, err
	}
	if !s.IsAdmin(cmd.AdminID) {
		return nil, fmt.Errorf("%w: refund requires an administrator", job.ErrForbidden)
	}
	return s.mutate(ctx, cmd.JobID, func(ctx context.Context, cur *job.Job) (*change, error) {
		if cur.Status == job.StatusCancelled && cur.PaymentStatus == job.PaymentRefunded {
			return nil, nil
		}
		if !cur.PaymentMethod.Escrowed() || cur.PaymentStatus != job.PaymentPaid {
			return nil, fmt.Errorf("%w: only captured card payments can be refunded", job.ErrInvalidTransition)
		}
		next, err := job.VoidCompleted(cur, cmd.Reason, s.now())
		if err != nil {
			return nil, err
		}
		txn, gen, err := s.currentTransaction(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		if txn == nil || txn.Status != ledger.StatusPaid {
			return nil, fmt.Errorf("%w: no captured transaction for job %s", payment.ErrPayment, cur.ID)
		}
		res, err := s.gateway.Refund(ctx, payment.RefundRequest{
			HoldRef: txn.HoldRef,
			Capture: payment.CaptureResult{
				CaptureRef:  txn.CaptureRef,
				TransferRef: txn.TransferRef,
				Payout:      txn.PayoutAmount,
			},
			Amount:         types.Money{Amount: txn.Amount, Currency: txn.Currency},
			IdempotencyKey: idempotencyKey(cur.ID, string(ledger.StatusRefunded), gen),
		})
		if err != nil {
			return nil, paymentErr(payment.OpRefund, err)
		}
		upd := txn.Clone()
		if err := upd.Refund(next.UpdatedAt); err != nil {
			return nil, err
		}
		next.PaymentStatus = job.PaymentRefunded
		return &change{
			next:    next,
			actor:   ptr(cmd.AdminID),
			note:    "refunded: " + cmd.Reason,
			txnUpd:  upd,
			txnFrom: ledger.StatusPaid,
			entry: &ledger.Entry{
				TransactionID: txn.ID,
				JobID:         cur.ID,
				Kind:          ledger.EntryRefund,
				Amount:        txn.Amount,
				GatewayRef:    res.Ref,
				CreatedAt:     next.UpdatedAt,
			},
		}, nil
	})
}
