package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plow/internal/ai"
	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/location"
	"plow/internal/modules/notify"
	"plow/internal/modules/payment"
	"plow/internal/modules/pricing"
	"plow/internal/modules/queue"
	"plow/internal/types"
)

func TestCreateHoldsFunds(t *testing.T) {
	h := newHarness(t)
	j := h.create(t, cardCommand(testClient))

	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, job.PaymentHeld, j.PaymentStatus)

	txns, err := h.svc.Transactions(context.Background(), j.ID)
	require.NoError(t, err)
	require.Len(t, txns.Transactions, 1)
	txn := txns.Transactions[0]
	assert.Equal(t, ledger.StatusHeld, txn.Status)
	assert.Equal(t, int64(5000), txn.Amount)
	assert.Equal(t, int64(500), txn.PlatformFee)
	require.Len(t, txns.Entries, 1)
	assert.Equal(t, ledger.EntryHold, txns.Entries[0].Kind)
	assert.Equal(t, 1, h.sandbox.Calls(payment.OpAuthorize))
	assert.Equal(t, 1, h.notes.count(notify.KindJobCreated))
}

func TestFullLifecycleSettlesPayout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.profiles.SetPayoutDestination(ctx, testOperator, "acct_op1"))

	j := h.create(t, cardCommand(testClient))
	j = h.toPhotoProof(t, j.ID, testOperator)
	assert.Equal(t, job.StatusPhotoProof, j.Status)
	assert.NotEmpty(t, j.EvidenceRef)

	res, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: testClient})
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
	assert.Equal(t, job.PaymentPaid, res.Job.PaymentStatus)
	require.NotNil(t, res.Job.CompletionTime)
	require.NotNil(t, res.Capture)
	assert.NotEmpty(t, res.Capture.TransferRef)

	require.NotNil(t, res.Transaction)
	assert.Equal(t, ledger.StatusPaid, res.Transaction.Status)
	assert.Equal(t, int64(4500), res.Transaction.PayoutAmount)
	require.NotNil(t, res.Transaction.OperatorID)
	assert.Equal(t, testOperator, *res.Transaction.OperatorID)

	events, err := h.svc.Events(ctx, j.ID)
	require.NoError(t, err)
	var path []job.Status
	for _, e := range events {
		path = append(path, e.ToStatus)
	}
	assert.Equal(t, []job.Status{
		job.StatusPending, job.StatusAccepted, job.StatusEnRoute,
		job.StatusInProgress, job.StatusPhotoProof, job.StatusCompleted,
	}, path)
	assert.Equal(t, 5, h.notes.count(notify.KindJobStatusChange))
	assertInvariants(t, h, j.ID)
}

func TestCompletedJobHiddenFromStrangers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	j := h.create(t, cardCommand(testClient))
	h.toPhotoProof(t, j.ID, testOperator)

	_, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: testOperator})
	require.NoError(t, err)

	res, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: "stranger"})
	require.ErrorIs(t, err, job.ErrForbidden)
	assert.Nil(t, res)

	// Parties still get the settled job back.
	res, err = h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: testClient})
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, 1, h.sandbox.Calls(payment.OpCapture))
}

func TestCancelCompletedJobFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	j := h.create(t, cardCommand(testClient))
	h.toPhotoProof(t, j.ID, testOperator)
	_, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID})
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, CancelCommand{JobID: j.ID, ActorID: testClient, Reason: "changed my mind"})
	require.ErrorIs(t, err, job.ErrInvalidTransition)
	assert.Equal(t, 0, h.sandbox.Calls(payment.OpCancel))
	assert.Equal(t, 0, h.sandbox.Calls(payment.OpRefund))

	got, err := h.svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Equal(t, job.PaymentPaid, got.PaymentStatus)
}

func TestNearestQueueThroughFacade(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	origin := types.Point{Lat: 0, Lng: 0}
	require.NoError(t, h.profiles.SetLocation(ctx, testOperator, origin))

	op := testOperator
	ids := map[string]types.ID{}
	for _, tc := range []struct {
		client types.ID
		km     float64
	}{
		{"client-5", 5}, {"client-1km", 1}, {"client-10", 10}, {"client-far", -1},
	} {
		if tc.km >= 0 {
			require.NoError(t, h.profiles.SetLocation(ctx, tc.client, location.OffsetKm(origin, tc.km)))
		}
		cmd := cardCommand(tc.client)
		cmd.OperatorID = &op
		ids[string(tc.client)] = h.create(t, cmd).ID
	}

	v, err := h.svc.OperatorQueue(ctx, testOperator, queue.PolicyNearest)
	require.NoError(t, err)
	require.Len(t, v.Queued, 4)
	want := []types.ID{ids["client-1km"], ids["client-5"], ids["client-10"], ids["client-far"]}
	for i, e := range v.Queued {
		assert.Equal(t, want[i], e.Job.ID, "position %d", i+1)
		assert.Equal(t, i+1, e.Position)
	}
	assert.Nil(t, v.Queued[3].DistanceKm)

	fcfs, err := h.svc.OperatorQueue(ctx, testOperator, queue.PolicyFCFS)
	require.NoError(t, err)
	assert.Equal(t, ids["client-5"], fcfs.Queued[0].Job.ID)

	empty, err := h.svc.OperatorQueue(ctx, "op-idle", queue.PolicyNearest)
	require.NoError(t, err)
	assert.Nil(t, empty.Active)
	assert.Empty(t, empty.Queued)
}

func TestCreateValidation(t *testing.T) {
	op := testClient
	cases := []struct {
		name string
		mod  func(*CreateCommand)
	}{
		{"missing client", func(c *CreateCommand) { c.ClientID = "" }},
		{"no services", func(c *CreateCommand) { c.Details.Services = nil }},
		{"unknown service", func(c *CreateCommand) { c.Details.Services = []job.ServiceType{"lawn"} }},
		{"missing address", func(c *CreateCommand) { c.Details.Address = "" }},
		{"zero price", func(c *CreateCommand) { c.Details.Price.Amount = 0 }},
		{"bad currency", func(c *CreateCommand) { c.Details.Price.Currency = "XX" }},
		{"bad method", func(c *CreateCommand) { c.PaymentMethod = "barter" }},
		{"card without ref", func(c *CreateCommand) { c.PaymentMethodRef = "" }},
		{"self booking", func(c *CreateCommand) { c.OperatorID = &op }},
		{"site out of range", func(c *CreateCommand) { c.Details.Site = &types.Point{Lat: 91, Lng: 0} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			cmd := cardCommand(testClient)
			tc.mod(&cmd)
			_, err := h.svc.Create(context.Background(), cmd)
			require.ErrorIs(t, err, job.ErrValidation)
			assert.Equal(t, 0, h.sandbox.Calls(payment.OpAuthorize))
		})
	}
}

type brokenSchedule struct{ err error }

func (b brokenSchedule) Quote(context.Context, types.Money) (pricing.Quote, error) {
	return pricing.Quote{}, b.err
}

func TestCreateFeeLookupFailureIsInternal(t *testing.T) {
	down := errors.New("fee schedule: connection refused")
	h := newHarness(t, func(d *Deps) { d.Fees = brokenSchedule{err: down} })

	_, err := h.svc.Create(context.Background(), cardCommand(testClient))
	require.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, job.ErrValidation)
	assert.Equal(t, 0, h.sandbox.Calls(payment.OpAuthorize))

	h = newHarness(t, func(d *Deps) { d.Fees = brokenSchedule{err: pricing.ErrInvalidBase} })
	_, err = h.svc.Create(context.Background(), cardCommand(testClient))
	require.ErrorIs(t, err, job.ErrValidation)
}

func TestCreateDeclinedCardStoresNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cmd := cardCommand(testClient)
	cmd.PaymentMethodRef = payment.DeclinedCard

	_, err := h.svc.Create(ctx, cmd)
	require.ErrorIs(t, err, payment.ErrPayment)

	jobs, err := h.svc.ListByClient(ctx, testClient)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCreateWithRequestIDIsIdempotent(t *testing.T) {
	h := newHarness(t)
	cmd := cardCommand(testClient)
	cmd.RequestID = "req-42"

	first := h.create(t, cmd)
	second := h.create(t, cmd)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.sandbox.Calls(payment.OpAuthorize))

	other := cardCommand("client-2")
	other.RequestID = "req-42"
	assert.NotEqual(t, first.ID, h.create(t, other).ID)
}

func TestCreateGeocodesAddress(t *testing.T) {
	site := types.Point{Lat: 45.4215, Lng: -75.6972}
	h := newHarness(t, func(d *Deps) {
		d.Geocoder = staticGeocoder{"12 Maple Ave, Ottawa": site}
	})
	j := h.create(t, cardCommand(testClient))
	require.NotNil(t, j.Details.Site)
	assert.Equal(t, site, *j.Details.Site)

	open, err := h.board.Nearby(context.Background(), site, 1, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, j.ID, open[0].JobID)
}

type staticGeocoder map[string]types.Point

func (g staticGeocoder) Geocode(_ context.Context, address string) (*types.Point, error) {
	p, ok := g[address]
	if !ok {
		return nil, errors.New("not found")
	}
	return &p, nil
}

func TestAcceptRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	j := h.create(t, cardCommand(testClient))

	_, err := h.svc.Accept(ctx, AcceptCommand{JobID: j.ID, OperatorID: testClient})
	assert.ErrorIs(t, err, job.ErrForbidden)

	_, err = h.svc.Accept(ctx, AcceptCommand{JobID: "missing", OperatorID: testOperator})
	assert.ErrorIs(t, err, job.ErrNotFound)

	first, err := h.svc.Accept(ctx, AcceptCommand{JobID: j.ID, OperatorID: testOperator})
	require.NoError(t, err)
	again, err := h.svc.Accept(ctx, AcceptCommand{JobID: j.ID, OperatorID: testOperator})
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)

	_, err = h.svc.Accept(ctx, AcceptCommand{JobID: j.ID, OperatorID: "op-2"})
	assert.ErrorIs(t, err, job.ErrInvalidTransition)

	booked := testOperator
	cmd := cardCommand("client-2")
	cmd.OperatorID = &booked
	targeted := h.create(t, cmd)
	_, err = h.svc.Accept(ctx, AcceptCommand{JobID: targeted.ID, OperatorID: "op-2"})
	assert.ErrorIs(t, err, job.ErrForbidden)
}

func TestAdvanceRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	j := h.create(t, cardCommand(testClient))
	_, err := h.svc.Accept(ctx, AcceptCommand{JobID: j.ID, OperatorID: testOperator})
	require.NoError(t, err)

	cases := []struct {
		name  string
		actor types.ID
		event job.EventKind
		want  error
	}{
		{"stranger", "someone", job.EventStartTravel, job.ErrForbidden},
		{"client drives", testClient, job.EventStartTravel, job.ErrForbidden},
		{"skip travel", testOperator, job.EventArrive, job.ErrInvalidTransition},
		{"unknown event", testOperator, "teleport", job.ErrValidation},
	}
	for _, tc := range cases {
		_, err := h.svc.Advance(ctx, AdvanceCommand{JobID: j.ID, ActorID: tc.actor, Event: tc.event})
		assert.ErrorIs(t, err, tc.want, tc.name)
	}

	moved := h.advance(t, j.ID, testOperator, job.EventStartTravel, "")
	again := h.advance(t, j.ID, testOperator, job.EventStartTravel, "")
	assert.Equal(t, moved.Version, again.Version)

	h.advance(t, j.ID, testOperator, job.EventArrive, "")
	_, err = h.svc.Advance(ctx, AdvanceCommand{JobID: j.ID, ActorID: testOperator, Event: job.EventSubmitEvidence})
	assert.ErrorIs(t, err, job.ErrValidation)
}

func TestCancelBeforeAcceptRefundsHold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	j := h.create(t, cardCommand(testClient))

	_, err := h.svc.Cancel(ctx, CancelCommand{JobID: j.ID, ActorID: "someone"})
	require.ErrorIs(t, err, job.ErrForbidden)

	got, err := h.svc.Cancel(ctx, CancelCommand{JobID: j.ID, ActorID: testClient, Reason: "no snow"})
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, got.Status)
	assert.Equal(t, job.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, "no snow", got.CancelReason)

	txn := h.latestTxn(t, j.ID)
	assert.Equal(t, ledger.StatusCancelled, txn.Status)
	assert.Equal(t, "canceled", h.sandbox.HoldState(txn.HoldRef))

	_, err = h.svc.Cancel(ctx, CancelCommand{JobID: j.ID, ActorID: testClient})
	require.NoError(t, err)
	assert.Equal(t, 1, h.sandbox.Calls(payment.OpCancel))
	assertInvariants(t, h, j.ID)
}

func TestCashJobCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cmd := cardCommand(testClient)
	cmd.PaymentMethod = job.MethodCash
	cmd.PaymentMethodRef = ""
	j := h.create(t, cmd)
	assert.Equal(t, job.PaymentUninitiated, j.PaymentStatus)

	h.toPhotoProof(t, j.ID, testOperator)
	_, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: testOperator})
	require.ErrorIs(t, err, job.ErrValidation)

	received, tip := int64(6000), int64(1000)
	res, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: testOperator, CashReceived: &received, TipAmount: &tip})
	require.NoError(t, err)
	assert.Equal(t, job.PaymentPaid, res.Job.PaymentStatus)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, ledger.MethodCash, res.Transaction.PaymentMethod)
	assert.Equal(t, ledger.StatusPaid, res.Transaction.Status)
	assert.Equal(t, int64(6000), res.Transaction.PayoutAmount)
	assert.Nil(t, res.Capture)
	assert.Equal(t, 0, h.sandbox.Calls(payment.OpAuthorize))
	assert.Equal(t, 0, h.sandbox.Calls(payment.OpCapture))
	assertInvariants(t, h, j.ID)
}

type rejectAll struct{}

func (rejectAll) Review(context.Context, ai.EvidenceRequest) (*ai.Verdict, error) {
	return &ai.Verdict{Approved: false, Confidence: 0.9, Reason: "driveway still covered"}, nil
}

func TestEvidenceRejectionKeepsPhotoProof(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *Deps) { d.Reviewer = rejectAll{} })
	j := h.create(t, cardCommand(testClient))
	h.toPhotoProof(t, j.ID, testOperator)

	_, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: testClient})
	require.ErrorIs(t, err, job.ErrEvidenceRejected)
	require.ErrorIs(t, err, job.ErrValidation)
	assert.Equal(t, 0, h.sandbox.Calls(payment.OpCapture))

	got, err := h.svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPhotoProof, got.Status)

	// Only administrators bypass review.
	_, err = h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: testClient, SkipReview: true})
	require.ErrorIs(t, err, job.ErrEvidenceRejected)

	res, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, ActorID: testAdmin, SkipReview: true})
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
}

type unlistedSource struct{}

func (unlistedSource) Review(_ context.Context, req ai.EvidenceRequest) (*ai.Verdict, error) {
	return nil, fmt.Errorf("%w: host %q", ai.ErrUnsupportedEvidence, req.EvidenceRef)
}

func TestUnsupportedEvidenceRefIsValidationError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *Deps) { d.Reviewer = unlistedSource{} })
	j := h.create(t, cardCommand(testClient))
	h.toPhotoProof(t, j.ID, testOperator)

	_, err := h.svc.Complete(ctx, CompleteCommand{
		JobID:       j.ID,
		ActorID:     testClient,
		EvidenceRef: "http://169.254.169.254/computeMetadata/v1/",
	})
	require.ErrorIs(t, err, job.ErrValidation)
	assert.NotErrorIs(t, err, job.ErrEvidenceRejected)
	assert.Equal(t, 0, h.sandbox.Calls(payment.OpCapture))

	got, err := h.svc.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPhotoProof, got.Status)
}

func TestCompleteRequiresPhotoProof(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	j := h.create(t, cardCommand(testClient))
	_, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID, EvidenceRef: "gs://x.jpg"})
	require.ErrorIs(t, err, job.ErrInvalidTransition)
	assert.Equal(t, 0, h.sandbox.Calls(payment.OpCapture))
}

func TestReopenAndRefund(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	j := h.create(t, cardCommand(testClient))
	_, err := h.svc.Accept(ctx, AcceptCommand{JobID: j.ID, OperatorID: testOperator})
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, CancelCommand{JobID: j.ID, ActorID: testOperator, Reason: "plow broke"})
	require.NoError(t, err)

	_, err = h.svc.Reopen(ctx, ReopenCommand{JobID: j.ID, AdminID: testClient, PaymentMethodRef: testCard})
	require.ErrorIs(t, err, job.ErrForbidden)
	_, err = h.svc.Reopen(ctx, ReopenCommand{JobID: j.ID, AdminID: testAdmin})
	require.ErrorIs(t, err, job.ErrValidation)

	reopened, err := h.svc.Reopen(ctx, ReopenCommand{JobID: j.ID, AdminID: testAdmin, PaymentMethodRef: testCard})
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, reopened.Status)
	assert.Equal(t, job.PaymentHeld, reopened.PaymentStatus)
	assert.Nil(t, reopened.OperatorID)
	assert.Equal(t, 2, h.sandbox.Effects(payment.OpAuthorize))

	txns, err := h.ledger.ListByJob(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, ledger.StatusCancelled, txns[0].Status)
	assert.Equal(t, ledger.StatusHeld, txns[1].Status)

	h.toPhotoProof(t, j.ID, "op-2")
	_, err = h.svc.Complete(ctx, CompleteCommand{JobID: j.ID})
	require.NoError(t, err)

	_, err = h.svc.Refund(ctx, RefundCommand{JobID: j.ID, AdminID: testOperator})
	require.ErrorIs(t, err, job.ErrForbidden)

	refunded, err := h.svc.Refund(ctx, RefundCommand{JobID: j.ID, AdminID: testAdmin, Reason: "dispute"})
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, refunded.Status)
	assert.Equal(t, job.PaymentRefunded, refunded.PaymentStatus)
	assert.Equal(t, ledger.StatusRefunded, h.latestTxn(t, j.ID).Status)

	_, err = h.svc.Refund(ctx, RefundCommand{JobID: j.ID, AdminID: testAdmin})
	require.NoError(t, err)
	assert.Equal(t, 1, h.sandbox.Calls(payment.OpRefund))

	entries, err := h.ledger.Entries(ctx, j.ID)
	require.NoError(t, err)
	var kinds []ledger.EntryKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []ledger.EntryKind{
		ledger.EntryHold, ledger.EntryVoid, ledger.EntryHold, ledger.EntryCapture, ledger.EntryRefund,
	}, kinds)
	assertInvariants(t, h, j.ID)
}

func TestOpenJobsListsUntargetedNearby(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	origin := types.Point{Lat: 45.42, Lng: -75.69}
	require.NoError(t, h.profiles.SetLocation(ctx, testOperator, origin))

	near := location.OffsetKm(origin, 2)
	open := cardCommand(testClient)
	open.Details.Site = &near
	openJob := h.create(t, open)

	booked := types.ID("op-2")
	targeted := cardCommand("client-2")
	targeted.Details.Site = &near
	targeted.OperatorID = &booked
	h.create(t, targeted)

	got, err := h.svc.OpenJobs(ctx, testOperator, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, openJob.ID, got[0].Job.ID)
	assert.InDelta(t, 2, got[0].DistanceKm, 0.05)

	// The client never sees their own listing.
	require.NoError(t, h.profiles.SetLocation(ctx, testClient, origin))
	own, err := h.svc.OpenJobs(ctx, testClient, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, own)

	_, err = h.svc.Accept(ctx, AcceptCommand{JobID: openJob.ID, OperatorID: testOperator})
	require.NoError(t, err)
	got, err = h.svc.OpenJobs(ctx, testOperator, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTransientCaptureFailuresRetriedByAdapter(t *testing.T) {
	ctx := context.Background()
	var sandbox *payment.Sandbox
	h := newHarness(t, func(d *Deps) {
		sandbox = d.Gateway.(*payment.Sandbox)
		cfg := payment.DefaultAdapterConfig()
		cfg.InitialBackoff = time.Millisecond
		cfg.MaxBackoff = time.Millisecond
		d.Gateway = payment.NewAdapter(sandbox, cfg, nil)
	})
	j := h.create(t, cardCommand(testClient))
	h.toPhotoProof(t, j.ID, testOperator)

	sandbox.FailNext(payment.OpCapture, 2)
	res, err := h.svc.Complete(ctx, CompleteCommand{JobID: j.ID})
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, res.Job.Status)
	assert.Equal(t, 3, sandbox.Calls(payment.OpCapture))
	assert.Equal(t, 1, sandbox.Effects(payment.OpCapture))
}
