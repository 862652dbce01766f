// README: Stripe gateway: manual-capture PaymentIntents with Connect transfers to operators.
package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

type StripeGateway struct {
	sc *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{sc: client.New(secretKey, nil)}
}

func (g *StripeGateway) Authorize(ctx context.Context, req AuthorizeRequest) (Hold, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Amount),
		Currency:           stripe.String(strings.ToLower(req.Amount.Currency)),
		PaymentMethod:      stripe.String(req.PaymentMethodRef),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return Hold{}, classify(OpAuthorize, err)
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		return Hold{}, &GatewayError{Op: OpAuthorize, Code: "not_authorized_" + string(pi.Status)}
	}
	return Hold{Ref: pi.ID, Amount: req.Amount}, nil
}

// Capture settles the intent and, when the operator has a connected account,
// transfers the amount net of the platform fee.
func (g *StripeGateway) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.sc.PaymentIntents.Capture(req.HoldRef, params)
	if err != nil {
		return CaptureResult{}, classify(OpCapture, err)
	}
	res := CaptureResult{CaptureRef: pi.ID, Payout: pi.AmountReceived - req.FeeAmount}
	if req.PayoutDestination == "" || pi.LatestCharge == nil {
		return res, nil
	}

	tp := &stripe.TransferParams{
		Amount:            stripe.Int64(res.Payout),
		Currency:          stripe.String(strings.ToLower(req.Amount.Currency)),
		Destination:       stripe.String(req.PayoutDestination),
		SourceTransaction: stripe.String(pi.LatestCharge.ID),
		TransferGroup:     stripe.String(req.HoldRef),
	}
	tp.Context = ctx
	tp.SetIdempotencyKey(req.IdempotencyKey + ":transfer")
	tr, err := g.sc.Transfers.New(tp)
	if err != nil {
		return CaptureResult{}, classify(OpCapture, err)
	}
	res.TransferRef = tr.ID
	return res, nil
}

func (g *StripeGateway) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.sc.PaymentIntents.Cancel(req.HoldRef, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			// already canceled is success for a void
			cur, gerr := g.sc.PaymentIntents.Get(req.HoldRef, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
			if gerr == nil && cur.Status == stripe.PaymentIntentStatusCanceled {
				return CancelResult{Settled: cur.AmountReceived > 0}, nil
			}
		}
		return CancelResult{}, classify(OpCancel, err)
	}
	return CancelResult{Settled: pi.AmountReceived > 0}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.Capture.TransferRef != "" {
		rp := &stripe.TransferReversalParams{ID: stripe.String(req.Capture.TransferRef)}
		rp.Context = ctx
		rp.SetIdempotencyKey(req.IdempotencyKey + ":reversal")
		if _, err := g.sc.TransferReversals.New(rp); err != nil {
			return RefundResult{}, classify(OpRefund, err)
		}
	}

	params := &stripe.RefundParams{PaymentIntent: stripe.String(req.HoldRef)}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	re, err := g.sc.Refunds.New(params)
	if err != nil {
		return RefundResult{}, classify(OpRefund, err)
	}
	return RefundResult{Ref: re.ID}, nil
}

// classify maps Stripe failures onto transient and permanent errors. Anything
// that is not an API answer (network, timeout) is transient.
func classify(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &GatewayError{Op: op, Code: "network", Transient: true, Err: err}
	}
	transient := se.Type == stripe.ErrorTypeAPI ||
		se.HTTPStatusCode == http.StatusTooManyRequests ||
		se.HTTPStatusCode >= http.StatusInternalServerError
	code := string(se.Code)
	if code == "" {
		code = string(se.Type)
	}
	return &GatewayError{Op: op, Code: code, Transient: transient, Err: err}
}
