// README: Orchestration facade: sequences transitions, gateway calls and ledger writes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"plow/internal/ai"
	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/matching"
	"plow/internal/modules/notify"
	"plow/internal/modules/payment"
	"plow/internal/modules/pricing"
	"plow/internal/modules/profile"
	"plow/internal/modules/queue"
	"plow/internal/types"
)

var tracer = otel.Tracer("plow/dispatch")

// FeeQuoter fixes the platform fee for an authorized amount.
type FeeQuoter interface {
	Quote(ctx context.Context, price types.Money) (pricing.Quote, error)
}

type Config struct {
	// ConflictRetries bounds attempts of one operation against fresh state.
	ConflictRetries uint
	ConflictBackoff time.Duration
	// Admins may reopen, refund and bypass evidence review.
	Admins []types.ID
}

// Deps are the collaborators of the facade. Geocoder and Board are optional.
type Deps struct {
	Jobs     job.Repository
	Ledger   ledger.Repository
	UoW      UnitOfWork
	Gateway  payment.Gateway
	Fees     FeeQuoter
	Profiles profile.Provider
	Geocoder profile.Geocoder
	Board    matching.Board
	Reviewer ai.EvidenceReviewer
	Notifier notify.Notifier
	Log      logrus.FieldLogger
	Now      func() time.Time
}

type Service struct {
	jobs     job.Repository
	ledger   ledger.Repository
	uow      UnitOfWork
	gateway  payment.Gateway
	fees     FeeQuoter
	profiles profile.Provider
	geocoder profile.Geocoder
	board    matching.Board
	reviewer ai.EvidenceReviewer
	notifier notify.Notifier
	log      logrus.FieldLogger
	now      func() time.Time
	validate *validator.Validate
	admins   map[types.ID]bool
	cfg      Config
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = 5
	}
	if cfg.ConflictBackoff <= 0 {
		cfg.ConflictBackoff = 10 * time.Millisecond
	}
	s := &Service{
		jobs:     d.Jobs,
		ledger:   d.Ledger,
		uow:      d.UoW,
		gateway:  d.Gateway,
		fees:     d.Fees,
		profiles: d.Profiles,
		geocoder: d.Geocoder,
		board:    d.Board,
		reviewer: d.Reviewer,
		notifier: d.Notifier,
		log:      d.Log,
		now:      d.Now,
		validate: validator.New(),
		admins:   make(map[types.ID]bool, len(cfg.Admins)),
		cfg:      cfg,
	}
	for _, id := range cfg.Admins {
		s.admins[id] = true
	}
	if s.reviewer == nil {
		s.reviewer = ai.AutoApprove{}
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *Service) IsAdmin(id types.ID) bool {
	return s.admins[id]
}

// CanView reports whether actor may read j.
func (s *Service) CanView(j *job.Job, actor types.ID) bool {
	return j.IsParty(actor) || s.IsAdmin(actor)
}

func (s *Service) Get(ctx context.Context, jobID types.ID) (*job.Job, error) {
	return s.jobs.Get(ctx, jobID)
}

func (s *Service) ListByClient(ctx context.Context, clientID types.ID) ([]*job.Job, error) {
	return s.jobs.ListByClient(ctx, clientID)
}

func (s *Service) Events(ctx context.Context, jobID types.ID) ([]*job.Event, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.jobs.Events(ctx, jobID)
}

func (s *Service) Transactions(ctx context.Context, jobID types.ID) (*JobTransactions, error) {
	if _, err := s.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	txns, err := s.ledger.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.Entries(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if txns == nil {
		txns = []*ledger.Transaction{}
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	return &JobTransactions{Transactions: txns, Entries: entries}, nil
}

// change is one planned mutation of a job, committed in a unit of work.
type change struct {
	next    *job.Job
	actor   *types.ID
	note    string
	txnNew  *ledger.Transaction
	txnUpd  *ledger.Transaction
	txnFrom ledger.Status
	entry   *ledger.Entry
	// fail is returned to the caller after a successful commit.
	fail error
}

type planFunc func(ctx context.Context, cur *job.Job) (*change, error)

// mutate loads the job, plans a change against it and commits the change,
// re-planning on version conflicts. A nil change is a no-op that returns the
// current job. Gateway calls made while planning use keys derived from the
// job, so a re-plan replays them instead of moving money twice.
func (s *Service) mutate(ctx context.Context, jobID types.ID, plan planFunc) (*job.Job, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.ConflictBackoff

	attempt := 0
	return backoff.Retry(ctx, func() (*job.Job, error) {
		attempt++
		cur, err := s.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		c, err := plan(ctx, cur)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if c == nil {
			return cur, nil
		}
		if err := s.commit(ctx, cur, c); err != nil {
			if errors.Is(err, job.ErrConflict) {
				s.log.WithFields(logrus.Fields{"job_id": jobID, "attempt": attempt}).Warn("job version conflict; retrying")
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		s.afterCommit(ctx, cur, c.next)
		if c.fail != nil {
			return c.next, backoff.Permanent(c.fail)
		}
		return c.next, nil
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(s.cfg.ConflictRetries))
}

func (s *Service) commit(ctx context.Context, cur *job.Job, c *change) error {
	return s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		next := c.next
		if next.Status.Active() && next.OperatorID != nil {
			if err := tx.Jobs.LockOperator(ctx, *next.OperatorID); err != nil {
				return err
			}
			active, err := tx.Jobs.ListByOperator(ctx, *next.OperatorID, job.StatusEnRoute, job.StatusInProgress)
			if err != nil {
				return err
			}
			if queue.Busy(active, next.ID) {
				return job.ErrOperatorBusy
			}
		}
		ok, err := tx.Jobs.Update(ctx, next, cur.Version)
		if err != nil {
			return err
		}
		if !ok {
			return job.ErrConflict
		}
		if c.txnUpd != nil {
			ok, err := tx.Ledger.Update(ctx, c.txnUpd, c.txnFrom)
			if err != nil {
				return err
			}
			if !ok {
				return job.ErrConflict
			}
		}
		if c.txnNew != nil {
			if err := tx.Ledger.Create(ctx, c.txnNew); err != nil {
				return err
			}
		}
		if c.entry != nil {
			if err := tx.Ledger.AppendEntry(ctx, c.entry); err != nil {
				return err
			}
		}
		return tx.Jobs.AppendEvent(ctx, &job.Event{
			JobID:      next.ID,
			FromStatus: cur.Status,
			ToStatus:   next.Status,
			ActorID:    c.actor,
			Note:       c.note,
			CreatedAt:  next.UpdatedAt,
		})
	})
}

// afterCommit runs best-effort side effects. None of them can fail the operation.
func (s *Service) afterCommit(ctx context.Context, prev, next *job.Job) {
	if prev.Status != next.Status {
		s.syncBoard(ctx, next)
		s.notifier.Notify(s.event(notify.KindJobStatusChange, prev.Status, next))
	}
	if prev.PaymentStatus != next.PaymentStatus {
		s.notifier.Notify(s.event(notify.KindPayment, prev.Status, next))
	}
}

func (s *Service) event(kind notify.Kind, from job.Status, j *job.Job) notify.Event {
	e := notify.Event{
		Kind:          kind,
		JobID:         j.ID,
		ClientID:      j.ClientID,
		Status:        string(j.Status),
		PaymentStatus: string(j.PaymentStatus),
		Amount:        j.Details.Price.Amount,
		Currency:      j.Details.Price.Currency,
		At:            j.UpdatedAt,
	}
	if from != j.Status {
		e.FromStatus = string(from)
	}
	if j.OperatorID != nil {
		op := *j.OperatorID
		e.OperatorID = &op
	}
	return e
}

// syncBoard lists untargeted pending jobs with a known site and delists the rest.
func (s *Service) syncBoard(ctx context.Context, j *job.Job) {
	if s.board == nil {
		return
	}
	var err error
	if j.Status == job.StatusPending && j.OperatorID == nil && j.Details.Site != nil {
		err = s.board.Publish(ctx, j.ID, *j.Details.Site)
	} else {
		err = s.board.Withdraw(ctx, j.ID)
	}
	if err != nil {
		s.log.WithField("job_id", j.ID).WithError(err).Warn("job board update failed")
	}
}

// idempotencyKey is the job ID plus the target status. Later authorizations
// of a reopened job carry a generation suffix so they never replay an
// earlier generation's result.
func idempotencyKey(jobID types.ID, target string, generation int) string {
	if generation == 0 {
		return fmt.Sprintf("%s:%s", jobID, target)
	}
	return fmt.Sprintf("%s:%s:g%d", jobID, target, generation)
}

// currentTransaction returns the latest transaction and its generation index.
func (s *Service) currentTransaction(ctx context.Context, jobID types.ID) (*ledger.Transaction, int, error) {
	txns, err := s.ledger.ListByJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	latest := ledger.Latest(txns)
	if latest == nil {
		return nil, 0, nil
	}
	return latest, latest.Generation, nil
}

func (s *Service) checkStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", job.ErrValidation, err.Error())
	}
	return nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// paymentErr makes sure a gateway failure carries ErrPayment.
func paymentErr(op string, err error) error {
	if errors.Is(err, payment.ErrPayment) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", payment.ErrPayment, op, err)
}

func ptr(id types.ID) *types.ID {
	if id == "" {
		return nil
	}
	return &id
}
