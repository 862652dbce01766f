package payment

import (
	"errors"
	"fmt"
)

// ErrPayment marks a payment operation that failed permanently or exhausted
// its retries. The job is left in its last consistent state.
var ErrPayment = errors.New("payment error")

const (
	OpAuthorize = "authorize"
	OpCapture   = "capture"
	OpCancel    = "cancel"
	OpRefund    = "refund"
)

// GatewayError classifies a processor failure.
type GatewayError struct {
	Op        string
	Code      string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Code, kind, e.Err)
	}
	return fmt.Sprintf("%s %s (%s)", e.Op, e.Code, kind)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying with the same key.
func IsTransient(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient
}

// Code extracts the processor code from err, or "".
func Code(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
