package money

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amounts are carried internally as int64 minor units (cents). Integer
// arithmetic keeps ledger math exact; decimals only appear at the API
// boundary.

// ErrMalformed indicates an amount that could not be parsed into whole
// minor units.
var ErrMalformed = errors.New("malformed amount")

// Parse converts a decimal string such as "100.00" into minor units.
// Anything with more than two fractional digits is rejected rather than
// rounded.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q has sub-cent precision", ErrMalformed, s)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformed, s)
	}
	return minor.IntPart(), nil
}

// Format renders minor units as a fixed two-decimal string.
func Format(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// Amount is a JSON-friendly wrapper around minor units. It accepts both
// string and numeric JSON values ("100.00" or 100.00) and always marshals
// back as a fixed two-decimal string.
type Amount int64

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(Format(int64(a)))), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMalformed, data)
		}
		minor, err := Parse(unquoted)
		if err != nil {
			return err
		}
		*a = Amount(minor)
		return nil
	}
	minor, err := Parse(string(data))
	if err != nil {
		return err
	}
	*a = Amount(minor)
	return nil
}
