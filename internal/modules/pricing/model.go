// README: Platform fee schedule definitions.
package pricing

import (
	"errors"
	"time"
)

// MaxBps is 100% expressed in basis points.
const MaxBps = 10000

type FeeSchedule struct {
	Currency  string
	FeeBps    int
	UpdatedAt time.Time
}

// Quote is the fee split fixed at authorization time.
type Quote struct {
	Amount   int64
	Currency string
	FeeBps   int
	Fee      int64
	Payout   int64
}

var (
	ErrInvalidBps  = errors.New("fee bps out of range")
	ErrNoSchedule  = errors.New("no fee schedule for currency")
	ErrInvalidBase = errors.New("amount must be positive")
)
