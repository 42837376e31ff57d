package valueobject

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CentPlaces is the number of decimal places every stored amount is rounded to
const CentPlaces int32 = 2

// Round2 rounds to two decimal places, half away from zero.
// Every balance update goes through it before being stored or compared.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// Money is an immutable amount rounded to cents.
// All arithmetic returns a new, re-rounded Money, so drift cannot accumulate.
// The engine works in a single currency; there is no currency field.
type Money struct {
	amount decimal.Decimal
}

// NewMoney creates Money from a decimal, rounding to cents
func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: Round2(amount)}
}

// NewMoneyFromFloat creates Money from a float64 value
func NewMoneyFromFloat(amount float64) Money {
	return NewMoney(decimal.NewFromFloat(amount))
}

// NewMoneyFromInt creates Money from a whole amount
func NewMoneyFromInt(amount int64) Money {
	return NewMoney(decimal.NewFromInt(amount))
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	if !InAmountRange(d) {
		return Money{}, fmt.Errorf("amount %.32q is out of range", amount)
	}
	return NewMoney(d), nil
}

// ParseMoney leniently converts any raw value to Money. Unparsable input becomes zero.
func ParseMoney(value any) Money {
	return NewMoney(SafeParseDecimal(value))
}

// Zero returns a zero-value Money
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Sign returns -1, 0 or +1
func (m Money) Sign() int {
	return m.amount.Sign()
}

// Add returns the rounded sum
func (m Money) Add(other Money) Money {
	return NewMoney(m.amount.Add(other.amount))
}

// Sub returns the rounded difference
func (m Money) Sub(other Money) Money {
	return NewMoney(m.amount.Sub(other.amount))
}

// Negate returns a new Money with the sign reversed
func (m Money) Negate() Money {
	return Money{amount: m.amount.Neg()}
}

// Abs returns a new Money with the absolute value
func (m Money) Abs() Money {
	return Money{amount: m.amount.Abs()}
}

// ClampZero returns m, or zero when m is negative
func (m Money) ClampZero() Money {
	if m.amount.IsNegative() {
		return Zero()
	}
	return m
}

// Equals returns true if both amounts are numerically equal
func (m Money) Equals(other Money) bool {
	return m.amount.Equal(other.amount)
}

// LessThan returns true if m < other
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// LessThanOrEqual returns true if m <= other
func (m Money) LessThanOrEqual(other Money) bool {
	return m.amount.LessThanOrEqual(other.amount)
}

// GreaterThan returns true if m > other
func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

// String returns the amount with exactly two decimals
func (m Money) String() string {
	return m.amount.StringFixed(CentPlaces)
}

// Sum adds all amounts, rounding after every addition
func Sum(values ...Money) Money {
	total := Zero()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalJSON encodes the amount as a fixed two-decimal string, e.g. "600.00".
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a JSON string or number. Unlike RawAmount it is strict:
// Money only appears in derived output, so a malformed value is a real error.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if !InAmountRange(d) {
		return fmt.Errorf("amount %.32q is out of range", s)
	}
	m.amount = Round2(d)
	return nil
}
