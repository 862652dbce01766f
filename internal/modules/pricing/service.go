// README: Pricing service computes the platform fee for an authorized amount.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"plow/internal/types"
)

// Source looks up the fee schedule for a currency.
type Source interface {
	GetSchedule(ctx context.Context, currency string) (FeeSchedule, error)
}

type Service struct {
	source     Source
	defaultBps int
}

// NewService uses source when it has a schedule for the currency and
// defaultBps otherwise. source may be nil.
func NewService(source Source, defaultBps int) (*Service, error) {
	if defaultBps < 0 || defaultBps > MaxBps {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBps, defaultBps)
	}
	return &Service{source: source, defaultBps: defaultBps}, nil
}

func (s *Service) Quote(ctx context.Context, price types.Money) (Quote, error) {
	if !price.IsPositive() {
		return Quote{}, ErrInvalidBase
	}
	bps := s.defaultBps
	if s.source != nil {
		sched, err := s.source.GetSchedule(ctx, strings.ToUpper(price.Currency))
		switch {
		case err == nil:
			bps = sched.FeeBps
		case errors.Is(err, ErrNoSchedule):
		default:
			return Quote{}, fmt.Errorf("fee schedule: %w", err)
		}
	}
	fee := Fee(price.Amount, bps)
	return Quote{
		Amount:   price.Amount,
		Currency: price.Currency,
		FeeBps:   bps,
		Fee:      fee,
		Payout:   price.Amount - fee,
	}, nil
}

// Fee returns amount*bps/10000 rounded half away from zero.
func Fee(amount int64, bps int) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(decimal.NewFromInt(MaxBps)).
		Round(0).
		IntPart()
}
