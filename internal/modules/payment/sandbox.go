// README: In-memory payment processor for local runs and tests.
package payment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DeclinedCard is a payment method ref the sandbox always declines.
const DeclinedCard = "pm_card_declined"

type holdState string

const (
	holdAuthorized holdState = "authorized"
	holdCaptured   holdState = "captured"
	holdCanceled   holdState = "canceled"
	holdRefunded   holdState = "refunded"
)

type sandboxHold struct {
	amount  int64
	state   holdState
	capture CaptureResult
}

type sandboxResult struct {
	value any
	err   error
}

// Sandbox mimics a card processor. Results are remembered per idempotency
// key, so a replayed request returns the original answer without acting again.
type Sandbox struct {
	mu       sync.Mutex
	seq      int
	holds    map[string]*sandboxHold
	results  map[string]sandboxResult
	calls    map[string]int
	effects  map[string]int
	failures map[string]int
	latency  time.Duration
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		holds:    make(map[string]*sandboxHold),
		results:  make(map[string]sandboxResult),
		calls:    make(map[string]int),
		effects:  make(map[string]int),
		failures: make(map[string]int),
	}
}

// FailNext makes the next n calls of op fail with a transient error before
// reaching the processor.
func (s *Sandbox) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

// SetLatency delays every call by d, honouring context cancellation.
func (s *Sandbox) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls counts every request for op, replays included.
func (s *Sandbox) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Effects counts requests for op that changed processor state.
func (s *Sandbox) Effects(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effects[op]
}

// HoldState returns the processor-side state of a hold, or "".
func (s *Sandbox) HoldState(ref string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.holds[ref]; ok {
		return string(h.state)
	}
	return ""
}

func (s *Sandbox) Authorize(ctx context.Context, req AuthorizeRequest) (Hold, error) {
	v, err := s.do(ctx, OpAuthorize, req.IdempotencyKey, func() (any, error) {
		if req.PaymentMethodRef == DeclinedCard {
			return Hold{}, &GatewayError{Op: OpAuthorize, Code: "card_declined"}
		}
		if req.Amount.Amount <= 0 {
			return Hold{}, &GatewayError{Op: OpAuthorize, Code: "invalid_amount"}
		}
		s.seq++
		ref := fmt.Sprintf("hold_%d", s.seq)
		s.holds[ref] = &sandboxHold{amount: req.Amount.Amount, state: holdAuthorized}
		return Hold{Ref: ref, Amount: req.Amount}, nil
	})
	h, _ := v.(Hold)
	return h, err
}

func (s *Sandbox) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	v, err := s.do(ctx, OpCapture, req.IdempotencyKey, func() (any, error) {
		h, ok := s.holds[req.HoldRef]
		if !ok {
			return CaptureResult{}, &GatewayError{Op: OpCapture, Code: "no_such_hold"}
		}
		if h.state != holdAuthorized {
			return CaptureResult{}, &GatewayError{Op: OpCapture, Code: "hold_" + string(h.state)}
		}
		if req.FeeAmount < 0 || req.FeeAmount > h.amount {
			return CaptureResult{}, &GatewayError{Op: OpCapture, Code: "invalid_fee"}
		}
		s.seq++
		res := CaptureResult{
			CaptureRef: fmt.Sprintf("cap_%d", s.seq),
			Payout:     h.amount - req.FeeAmount,
		}
		if req.PayoutDestination != "" {
			res.TransferRef = fmt.Sprintf("tr_%d", s.seq)
		}
		h.state = holdCaptured
		h.capture = res
		return res, nil
	})
	r, _ := v.(CaptureResult)
	return r, err
}

func (s *Sandbox) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	v, err := s.do(ctx, OpCancel, req.IdempotencyKey, func() (any, error) {
		h, ok := s.holds[req.HoldRef]
		if !ok {
			return CancelResult{}, &GatewayError{Op: OpCancel, Code: "no_such_hold"}
		}
		switch h.state {
		case holdCanceled:
			return CancelResult{}, nil
		case holdAuthorized:
			h.state = holdCanceled
			return CancelResult{}, nil
		default:
			return CancelResult{}, &GatewayError{Op: OpCancel, Code: "hold_" + string(h.state)}
		}
	})
	r, _ := v.(CancelResult)
	return r, err
}

func (s *Sandbox) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	v, err := s.do(ctx, OpRefund, req.IdempotencyKey, func() (any, error) {
		h, ok := s.holds[req.HoldRef]
		if !ok {
			return RefundResult{}, &GatewayError{Op: OpRefund, Code: "no_such_hold"}
		}
		if h.state != holdCaptured {
			return RefundResult{}, &GatewayError{Op: OpRefund, Code: "hold_" + string(h.state)}
		}
		s.seq++
		h.state = holdRefunded
		return RefundResult{Ref: fmt.Sprintf("re_%d", s.seq)}, nil
	})
	r, _ := v.(RefundResult)
	return r, err
}

func (s *Sandbox) do(ctx context.Context, op, key string, fn func() (any, error)) (any, error) {
	s.mu.Lock()
	s.calls[op]++
	latency := s.latency
	if s.failures[op] > 0 {
		s.failures[op]--
		s.mu.Unlock()
		return nil, &GatewayError{Op: op, Code: "network", Transient: true}
	}
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		return nil, &GatewayError{Op: op, Code: "missing_idempotency_key"}
	}
	cacheKey := op + "|" + key
	if r, ok := s.results[cacheKey]; ok {
		return r.value, r.err
	}
	v, err := fn()
	if err == nil {
		s.effects[op]++
	}
	s.results[cacheKey] = sandboxResult{value: v, err: err}
	return v, err
}
