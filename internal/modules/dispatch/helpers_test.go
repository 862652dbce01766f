package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"plow/internal/modules/job"
	"plow/internal/modules/ledger"
	"plow/internal/modules/matching"
	"plow/internal/modules/notify"
	"plow/internal/modules/payment"
	"plow/internal/modules/pricing"
	"plow/internal/modules/profile"
	"plow/internal/types"
)

const (
	testClient   types.ID = "client-1"
	testOperator types.ID = "op-1"
	testAdmin    types.ID = "admin-1"
	testCard              = "pm_card_visa"
)

// clock ticks one second per read so event and transaction order is stable.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	svc      *Service
	jobs     *job.MemStore
	ledger   *ledger.MemStore
	sandbox  *payment.Sandbox
	profiles *profile.MemStore
	board    *matching.MemBoard
	notes    *recorder
}

// newHarness wires the facade onto memory stores, the sandbox gateway and a
// 10% platform fee. mods may swap collaborators before the service is built.
func newHarness(t *testing.T, mods ...func(*Deps)) *harness {
	t.Helper()
	fees, err := pricing.NewService(nil, 1000)
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	h := &harness{
		jobs:     job.NewMemStore(),
		ledger:   ledger.NewMemStore(),
		sandbox:  payment.NewSandbox(),
		profiles: profile.NewMemStore(),
		board:    matching.NewMemBoard(),
		notes:    &recorder{},
	}
	clk := &clock{t: time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)}
	d := Deps{
		Jobs:     h.jobs,
		Ledger:   h.ledger,
		UoW:      NewMemoryUoW(h.jobs, h.ledger),
		Gateway:  h.sandbox,
		Fees:     fees,
		Profiles: h.profiles,
		Board:    h.board,
		Notifier: h.notes,
		Now:      clk.Now,
	}
	for _, m := range mods {
		m(&d)
	}
	h.svc = NewService(d, Config{ConflictRetries: 10, ConflictBackoff: time.Millisecond, Admins: []types.ID{testAdmin}})
	return h
}

func cardCommand(clientID types.ID) CreateCommand {
	return CreateCommand{
		ClientID: clientID,
		Details: job.Details{
			Services: []job.ServiceType{job.ServiceDriveway},
			Address:  "12 Maple Ave, Ottawa",
			Price:    types.Money{Amount: 5000, Currency: "CAD"},
		},
		PaymentMethod:    job.MethodCard,
		PaymentMethodRef: testCard,
	}
}

func (h *harness) create(t *testing.T, cmd CreateCommand) *job.Job {
	t.Helper()
	j, err := h.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func (h *harness) advance(t *testing.T, jobID, actor types.ID, e job.EventKind, ref string) *job.Job {
	t.Helper()
	j, err := h.svc.Advance(context.Background(), AdvanceCommand{JobID: jobID, ActorID: actor, Event: e, EvidenceRef: ref})
	if err != nil {
		t.Fatalf("%s: %v", e, err)
	}
	return j
}

// toPhotoProof walks a pending job through acceptance to submitted evidence.
func (h *harness) toPhotoProof(t *testing.T, jobID, operatorID types.ID) *job.Job {
	t.Helper()
	ctx := context.Background()
	if _, err := h.svc.Accept(ctx, AcceptCommand{JobID: jobID, OperatorID: operatorID}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	h.advance(t, jobID, operatorID, job.EventStartTravel, "")
	h.advance(t, jobID, operatorID, job.EventArrive, "")
	return h.advance(t, jobID, operatorID, job.EventSubmitEvidence, "gs://plow-evidence/"+string(jobID)+".jpg")
}

func (h *harness) latestTxn(t *testing.T, jobID types.ID) *ledger.Transaction {
	t.Helper()
	txns, err := h.ledger.ListByJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return ledger.Latest(txns)
}

func assertInvariants(t *testing.T, h *harness, jobID types.ID) {
	t.Helper()
	j, err := h.jobs.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if err := j.CheckInvariants(); err != nil {
		t.Fatalf("job %s: %v", jobID, err)
	}
	txn := h.latestTxn(t, jobID)
	if j.PaymentStatus == job.PaymentPaid && (txn == nil || txn.Status != ledger.StatusPaid) {
		t.Fatalf("paid job without paid transaction: %+v", txn)
	}
	if txn != nil && txn.Status == ledger.StatusPaid && txn.PayoutAmount > txn.Amount && txn.PaymentMethod == ledger.MethodCard {
		t.Fatalf("payout %d exceeds amount %d", txn.PayoutAmount, txn.Amount)
	}
}
