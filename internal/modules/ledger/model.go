// README: Transaction ledger: escrow transaction records and append-only money entries.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"plow/internal/types"
)

type Status string

const (
	StatusHeld      Status = "held"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

type EntryKind string

const (
	EntryHold    EntryKind = "hold"
	EntryCapture EntryKind = "capture"
	EntryVoid    EntryKind = "void"
	EntryRefund  EntryKind = "refund"
	EntryCash    EntryKind = "cash"
)

type PaymentMethod string

const (
	MethodCard      PaymentMethod = "card"
	MethodCash      PaymentMethod = "cash"
	MethodETransfer PaymentMethod = "e-transfer"
)

// Transaction is the mutable record of one payment attempt for a job. The
// amount and fee are fixed when the hold is placed.
type Transaction struct {
	ID            types.ID      `json:"id"`
	JobID         types.ID      `json:"job_id"`
	Generation    int           `json:"generation"`
	ClientID      types.ID      `json:"client_id"`
	OperatorID    *types.ID     `json:"operator_id,omitempty"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	PlatformFee   int64         `json:"platform_fee"`
	Status        Status        `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	TipAmount     *int64        `json:"tip_amount,omitempty"`
	CashReceived  *int64        `json:"cash_received,omitempty"`
	HoldRef       string        `json:"-"`
	CaptureRef    string        `json:"-"`
	TransferRef   string        `json:"-"`
	PayoutAmount  int64         `json:"payout_amount"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Entry is one money movement. Entries are never updated or deleted.
type Entry struct {
	ID            int64     `json:"id"`
	TransactionID types.ID  `json:"transaction_id"`
	JobID         types.ID  `json:"job_id"`
	Kind          EntryKind `json:"kind"`
	Amount        int64     `json:"amount"`
	GatewayRef    string    `json:"gateway_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	ErrNotFound     = errors.New("transaction not found")
	ErrInvalidState = errors.New("invalid transaction state")
	ErrConflict     = errors.New("transaction changed concurrently")
)

// NewHold records a successful card authorization.
func NewHold(jobID, clientID types.ID, price types.Money, fee int64, holdRef string, now time.Time) *Transaction {
	return &Transaction{
		ID:            types.ID(uuid.NewString()),
		JobID:         jobID,
		ClientID:      clientID,
		Amount:        price.Amount,
		Currency:      price.Currency,
		PlatformFee:   fee,
		Status:        StatusHeld,
		PaymentMethod: MethodCard,
		HoldRef:       holdRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewOffPlatform records a cash or e-transfer payment confirmed by the
// operator at completion. No platform fee is taken on off-platform money.
func NewOffPlatform(jobID, clientID, operatorID types.ID, price types.Money, method PaymentMethod, received int64, tip *int64, now time.Time) *Transaction {
	op := operatorID
	r := received
	t := &Transaction{
		ID:            types.ID(uuid.NewString()),
		JobID:         jobID,
		ClientID:      clientID,
		OperatorID:    &op,
		Amount:        price.Amount,
		Currency:      price.Currency,
		Status:        StatusPaid,
		PaymentMethod: method,
		CashReceived:  &r,
		PayoutAmount:  received,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if tip != nil {
		v := *tip
		t.TipAmount = &v
	}
	return t
}

// Payout is what the operator receives on capture.
func (t *Transaction) Payout() int64 {
	return t.Amount - t.PlatformFee
}

func (t *Transaction) Clone() *Transaction {
	cp := *t
	if t.OperatorID != nil {
		op := *t.OperatorID
		cp.OperatorID = &op
	}
	if t.TipAmount != nil {
		v := *t.TipAmount
		cp.TipAmount = &v
	}
	if t.CashReceived != nil {
		v := *t.CashReceived
		cp.CashReceived = &v
	}
	return &cp
}

// Capture marks a held transaction paid. Only a held transaction can be
// captured, so a second capture is always rejected.
func (t *Transaction) Capture(operatorID types.ID, captureRef, transferRef string, now time.Time) error {
	if t.Status != StatusHeld {
		return fmt.Errorf("%w: capture from %s", ErrInvalidState, t.Status)
	}
	op := operatorID
	t.OperatorID = &op
	t.Status = StatusPaid
	t.CaptureRef = captureRef
	t.TransferRef = transferRef
	t.PayoutAmount = t.Payout()
	t.touch(now)
	return nil
}

// Void releases a hold. A hold that had partially settled at the processor
// ends refunded rather than cancelled.
func (t *Transaction) Void(settled bool, now time.Time) error {
	if t.Status != StatusHeld {
		return fmt.Errorf("%w: void from %s", ErrInvalidState, t.Status)
	}
	t.Status = StatusCancelled
	if settled {
		t.Status = StatusRefunded
	}
	t.touch(now)
	return nil
}

// Refund reverses a captured card payment.
func (t *Transaction) Refund(now time.Time) error {
	if t.Status != StatusPaid || t.PaymentMethod != MethodCard {
		return fmt.Errorf("%w: refund from %s %s", ErrInvalidState, t.PaymentMethod, t.Status)
	}
	t.Status = StatusRefunded
	t.touch(now)
	return nil
}

func (t *Transaction) touch(now time.Time) {
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
	}
}

// Latest returns the transaction of the highest generation, or nil. Each
// reopen of a job starts a new generation.
func Latest(txns []*Transaction) *Transaction {
	var out *Transaction
	for _, t := range txns {
		if out == nil || t.Generation > out.Generation {
			out = t
		}
	}
	return out
}
