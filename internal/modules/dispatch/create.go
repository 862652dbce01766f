package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/notify"
	"plow/internal/modules/payment"
	"plow/internal/modules/pricing"
	"plow/internal/modules/profile"
	"plow/internal/types"
)

// requestNamespace scopes job IDs derived from client request IDs.
var requestNamespace = uuid.MustParse("6f1c2b9e-4a57-4c1e-9d2a-3b8e5f7a1c40")

// Create books a job. Card jobs are authorized before anything is stored, so
// a declined card leaves no job behind.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (out *job.Job, err error) {
	ctx, span := startSpan(ctx, "dispatch.Create", attribute.String("client.id", string(cmd.ClientID)))
	defer func() { endSpan(span, err) }()

	if err := s.checkStruct(cmd); err != nil {
		return nil, err
	}
	if cmd.OperatorID != nil && *cmd.OperatorID == cmd.ClientID {
		return nil, fmt.Errorf("%w: client cannot book themselves", job.ErrValidation)
	}
	if site := cmd.Details.Site; site != nil && !profile.ValidPoint(*site) {
		return nil, fmt.Errorf("%w: site coordinates out of range", job.ErrValidation)
	}

	id := types.ID(uuid.NewString())
	if cmd.RequestID != "" {
		id = types.ID(uuid.NewSHA1(requestNamespace, []byte(string(cmd.ClientID)+":"+cmd.RequestID)).String())
		existing, err := s.jobs.Get(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, job.ErrNotFound) {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("job.id", string(id)))

	details := cmd.Details
	details.Services = append([]job.ServiceType(nil), cmd.Details.Services...)
	if details.Site == nil && s.geocoder != nil {
		site, err := s.geocoder.Geocode(ctx, details.Address)
		if err != nil {
			s.log.WithField("job_id", id).WithError(err).Warn("geocoding job address failed")
		} else {
			details.Site = site
		}
	}

	now := s.now()
	j := &job.Job{
		ID:            id,
		ClientID:      cmd.ClientID,
		OperatorID:    cmd.OperatorID,
		Details:       details,
		PaymentMethod: cmd.PaymentMethod,
		Status:        job.StatusPending,
		PaymentStatus: job.PaymentUninitiated,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var txn *ledger.Transaction
	if cmd.PaymentMethod.Escrowed() {
		quote, err := s.fees.Quote(ctx, details.Price)
		if err != nil {
			return nil, quoteError(err)
		}
		hold, err := s.gateway.Authorize(ctx, payment.AuthorizeRequest{
			Amount:           details.Price,
			PaymentMethodRef: cmd.PaymentMethodRef,
			Description:      fmt.Sprintf("snow removal job %s", id),
			IdempotencyKey:   idempotencyKey(id, string(job.StatusPending), 0),
		})
		if err != nil {
			return nil, paymentErr(payment.OpAuthorize, err)
		}
		txn = ledger.NewHold(id, cmd.ClientID, details.Price, quote.Fee, hold.Ref, now)
		j.PaymentStatus = job.PaymentHeld
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Jobs.Create(ctx, j); err != nil {
			return err
		}
		if txn != nil {
			if err := tx.Ledger.Create(ctx, txn); err != nil {
				return err
			}
			if err := tx.Ledger.AppendEntry(ctx, &ledger.Entry{
				TransactionID: txn.ID,
				JobID:         id,
				Kind:          ledger.EntryHold,
				Amount:        txn.Amount,
				GatewayRef:    txn.HoldRef,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}
		return tx.Jobs.AppendEvent(ctx, &job.Event{
			JobID:     id,
			ToStatus:  job.StatusPending,
			ActorID:   ptr(cmd.ClientID),
			Note:      "created",
			CreatedAt: now,
		})
	})
	if err != nil {
		// A concurrent create with the same request ID won; it holds the same
		// authorization, so there is nothing to release.
		if cmd.RequestID != "" && errors.Is(err, job.ErrConflict) {
			return s.jobs.Get(ctx, id)
		}
		if txn != nil {
			s.releaseOrphanHold(ctx, txn)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"job_id": id, "client_id": cmd.ClientID, "method": cmd.PaymentMethod}).Info("job created")
	s.syncBoard(ctx, j)
	s.notifier.Notify(s.event(notify.KindJobCreated, job.StatusNone, j))
	return j, nil
}

// releaseOrphanHold voids an authorization whose job was never stored.
func (s *Service) releaseOrphanHold(ctx context.Context, txn *ledger.Transaction) {
	_, err := s.gateway.Cancel(ctx, payment.CancelRequest{
		HoldRef:        txn.HoldRef,
		IdempotencyKey: idempotencyKey(txn.JobID, string(job.StatusCancelled), 0),
	})
	entry := s.log.WithFields(logrus.Fields{"job_id": txn.JobID, "hold_ref": txn.HoldRef})
	if err != nil {
		entry.WithError(err).Error("releasing orphaned hold failed")
		return
	}
	entry.Warn("released hold for job that was not stored")
}

// quoteError reports a bad price as a validation failure. Fee schedule
// lookups that fail are internal errors.
func quoteError(err error) error {
	if errors.Is(err, pricing.ErrInvalidBase) {
		return fmt.Errorf("%w: %v", job.ErrValidation, err)
	}
	return fmt.Errorf("quote platform fee: %w", err)
}
