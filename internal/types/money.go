// README: Common money value object used across modules.
package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Money is an amount in currency minor units (cents).
type Money struct {
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency" validate:"required,iso4217"`
}

// ParseMoney converts a decimal string such as "50.00" into minor units.
// Amounts with more than two decimal places are rejected rather than rounded.
func ParseMoney(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %q has sub-cent precision", ErrInvalidAmount, s)
	}
	if !minor.BigInt().IsInt64() {
		return Money{}, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return Money{Amount: minor.IntPart(), Currency: currency}, nil
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// String renders the amount as a decimal with the currency code, e.g. "50.00 CAD".
func (m Money) String() string {
	return decimal.New(m.Amount, -2).StringFixed(2) + " " + m.Currency
}
