package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"plow/internal/ai"
	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/payment"
	"plow/internal/types"
)

// Complete approves the evidence of a photo-proof job and settles payment.
// A completed job is returned as is, without touching the gateway again. A
// failed capture leaves the job in photo-proof with payment marked failed.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (out *CompleteResult, err error) {
	ctx, span := startSpan(ctx, "dispatch.Complete", attribute.String("job.id", string(cmd.JobID)))
	defer func() { endSpan(span, err) }()

	if err := s.checkStruct(cmd); err != nil {
		return nil, err
	}
	skipReview := cmd.SkipReview && s.IsAdmin(cmd.ActorID)

	var (
		approved bool
		capture  *payment.CaptureResult
		settled  *ledger.Transaction
	)
	j, err := s.mutate(ctx, cmd.JobID, func(ctx context.Context, cur *job.Job) (*change, error) {
		capture, settled = nil, nil
		if cmd.ActorID != "" && !cur.IsParty(cmd.ActorID) && !s.IsAdmin(cmd.ActorID) {
			return nil, job.ErrForbidden
		}
		if cur.Status == job.StatusCompleted {
			return nil, nil
		}
		now := s.now()
		next, _, err := job.Transition(cur, job.EventApproveEvidence, now)
		if err != nil {
			return nil, err
		}
		ref := cmd.EvidenceRef
		if ref == "" {
			ref = cur.EvidenceRef
		}
		if ref == "" {
			return nil, fmt.Errorf("%w: evidence reference required", job.ErrValidation)
		}
		next.EvidenceRef = ref

		if !skipReview && !approved {
			if err := s.review(ctx, cur, ref); err != nil {
				return nil, err
			}
			approved = true
		}

		c := &change{next: next, actor: ptr(cmd.ActorID), note: string(job.EventApproveEvidence)}
		if !cur.PaymentMethod.Escrowed() {
			if cmd.CashReceived == nil {
				return nil, fmt.Errorf("%w: cash received is required for %s jobs", job.ErrValidation, cur.PaymentMethod)
			}
			txn := ledger.NewOffPlatform(cur.ID, cur.ClientID, *cur.OperatorID, cur.Details.Price,
				ledger.PaymentMethod(cur.PaymentMethod), *cmd.CashReceived, cmd.TipAmount, next.UpdatedAt)
			next.PaymentStatus = job.PaymentPaid
			c.txnNew = txn
			c.entry = &ledger.Entry{
				TransactionID: txn.ID,
				JobID:         cur.ID,
				Kind:          ledger.EntryCash,
				Amount:        *cmd.CashReceived,
				CreatedAt:     next.UpdatedAt,
			}
			settled = txn
			return c, nil
		}

		txn, gen, err := s.currentTransaction(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		if txn == nil || txn.Status != ledger.StatusHeld {
			return nil, fmt.Errorf("%w: no held transaction for job %s", payment.ErrPayment, cur.ID)
		}
		dest, err := s.payoutDestination(ctx, *cur.OperatorID)
		if err != nil {
			return nil, err
		}
		res, err := s.gateway.Capture(ctx, payment.CaptureRequest{
			HoldRef:           txn.HoldRef,
			Amount:            types.Money{Amount: txn.Amount, Currency: txn.Currency},
			FeeAmount:         txn.PlatformFee,
			PayoutDestination: dest,
			IdempotencyKey:    idempotencyKey(cur.ID, string(job.StatusCompleted), gen),
		})
		if err != nil {
			return s.captureFailed(cur, err)
		}
		upd := txn.Clone()
		if err := upd.Capture(*cur.OperatorID, res.CaptureRef, res.TransferRef, next.UpdatedAt); err != nil {
			return nil, err
		}
		next.PaymentStatus = job.PaymentPaid
		c.txnUpd, c.txnFrom = upd, ledger.StatusHeld
		c.entry = &ledger.Entry{
			TransactionID: txn.ID,
			JobID:         cur.ID,
			Kind:          ledger.EntryCapture,
			Amount:        txn.Amount,
			GatewayRef:    res.CaptureRef,
			CreatedAt:     next.UpdatedAt,
		}
		capture, settled = &res, upd
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	out = &CompleteResult{Job: j, Transaction: settled, Capture: capture}
	if settled == nil {
		// Already completed by an earlier call.
		txns, err := s.ledger.ListByJob(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		out.Transaction = ledger.Latest(txns)
	}
	return out, nil
}

// captureFailed records a capture failure on the job. The hold is untouched,
// so a later Complete retries the capture with the same key.
func (s *Service) captureFailed(cur *job.Job, cause error) (*change, error) {
	err := paymentErr(payment.OpCapture, cause)
	s.log.WithFields(logrus.Fields{"job_id": cur.ID, "code": payment.Code(cause)}).WithError(cause).Error("capture failed")
	if cur.PaymentStatus == job.PaymentFailed {
		return nil, err
	}
	next := job.Touch(cur, s.now())
	next.PaymentStatus = job.PaymentFailed
	return &change{next: next, note: "capture failed", fail: err}, nil
}

func (s *Service) review(ctx context.Context, j *job.Job, ref string) error {
	services := make([]string, 0, len(j.Details.Services))
	for _, svc := range j.Details.Services {
		services = append(services, string(svc))
	}
	v, err := s.reviewer.Review(ctx, ai.EvidenceRequest{
		JobID:       string(j.ID),
		EvidenceRef: ref,
		Services:    services,
		Address:     j.Details.Address,
		Notes:       j.Details.Notes,
	})
	if errors.Is(err, ai.ErrUnsupportedEvidence) {
		return fmt.Errorf("%w: %v", job.ErrValidation, err)
	}
	if err != nil {
		return fmt.Errorf("evidence review: %w", err)
	}
	if !v.Approved {
		return fmt.Errorf("%w: %s", job.ErrEvidenceRejected, v.Reason)
	}
	return nil
}

func (s *Service) payoutDestination(ctx context.Context, operatorID types.ID) (string, error) {
	if s.profiles == nil {
		return "", nil
	}
	return s.profiles.PayoutDestination(ctx, operatorID)
}
