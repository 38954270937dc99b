package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every stored amount carries.
const Scale = 2

var (
	ErrMissingAmount = errors.New("amount is required")
	ErrInvalidAmount = errors.New("amount is not a valid number")
	ErrOutOfRange    = errors.New("amount is out of range")
)

// limit mirrors the NUMERIC(14,2) column the amounts are stored in.
var limit = decimal.New(1, 12)

// maxInputLength bounds the textual form of an amount. With at most this many
// coefficient digits, an exponent below minExponent cannot reach 0.005, and
// one above maxExponent is past limit, so both are rejected before rounding
// rescales the value.
const (
	maxInputLength = 40
	minExponent    = -(maxInputLength + 2)
	maxExponent    = 12
)

// Amount is a monetary value canonicalized to two fractional digits.
// Rounding is half away from zero on the scaled value (19.995 -> 20.00,
// -0.125 -> -0.13), so the same input always yields the same stored value.
type Amount struct {
	decimal.Decimal
}

// Normalize rounds d to Scale digits.
func Normalize(d decimal.Decimal) Amount {
	return Amount{d.Round(Scale)}
}

// FromFloat normalizes a float amount. Prefer Parse for user input, floats
// cannot represent most decimal fractions exactly.
func FromFloat(f float64) Amount {
	return Normalize(decimal.NewFromFloat(f))
}

// Parse reads a decimal string and normalizes it. A non-zero value that
// rounds to 0.00 is out of range.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrMissingAmount
	}
	if len(s) > maxInputLength {
		return Amount{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidAmount, maxInputLength)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsZero() {
		return Amount{}, nil
	}
	switch exp := d.Exponent(); {
	case exp > maxExponent:
		return Amount{}, fmt.Errorf("%w: %s", ErrOutOfRange, s)
	case exp < minExponent:
		return Amount{}, fmt.Errorf("%w: %s rounds to zero", ErrOutOfRange, s)
	}
	a := Normalize(d)
	if a.Abs().Cmp(limit) >= 0 {
		return Amount{}, fmt.Errorf("%w: %s", ErrOutOfRange, s)
	}
	if a.IsZero() {
		return Amount{}, fmt.Errorf("%w: %s rounds to zero", ErrOutOfRange, s)
	}
	return a, nil
}

// ParseJSON accepts a JSON number or a JSON string holding a number.
// An empty or null value reports ErrMissingAmount.
func ParseJSON(raw json.RawMessage) (Amount, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return Amount{}, ErrMissingAmount
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return Amount{}, fmt.Errorf("%w: not a JSON string", ErrInvalidAmount)
		}
		if strings.TrimSpace(str) == "" {
			return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
		}
		return Parse(str)
	}
	return Parse(s)
}

// String renders the amount with exactly Scale fractional digits.
func (a Amount) String() string {
	return a.StringFixed(Scale)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
