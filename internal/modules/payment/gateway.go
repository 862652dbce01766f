// README: Payment gateway contract: authorize, capture, cancel and refund with idempotency keys.
package payment

import (
	"context"

	"plow/internal/types"
)

//go:generate mockgen -source=gateway.go -destination=gateway_mock.go -package=payment

// Gateway is a payment processor. Every call carries an idempotency key and
// repeating a call with the same key has the effect of a single call.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Hold, error)
	Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error)
	Cancel(ctx context.Context, req CancelRequest) (CancelResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

type AuthorizeRequest struct {
	Amount           types.Money
	PaymentMethodRef string
	Description      string
	IdempotencyKey   string
}

// Hold is a reservation of funds that has not moved yet.
type Hold struct {
	Ref    string
	Amount types.Money
}

type CaptureRequest struct {
	HoldRef           string
	Amount            types.Money
	FeeAmount         int64
	PayoutDestination string
	IdempotencyKey    string
}

type CaptureResult struct {
	CaptureRef  string
	TransferRef string
	Payout      int64
}

type CancelRequest struct {
	HoldRef        string
	IdempotencyKey string
}

// CancelResult reports whether any part of the hold had settled before the
// void, in which case the release is a refund.
type CancelResult struct {
	Settled bool
}

type RefundRequest struct {
	HoldRef        string
	Capture        CaptureResult
	Amount         types.Money
	IdempotencyKey string
}

type RefundResult struct {
	Ref string
}
