package validation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountRules validates monetary amounts as exact decimals. Binary floats
// never enter the comparison path; the raw wire literal is parsed straight
// into a decimal and checked digit-for-digit.
//
// Min and Max bound the magnitude of the amount, so a debit of -150 is
// judged against the same [Min, Max] interval as a credit of 150. Sign is
// policed separately by AllowNegative, which is checked first.
type AmountRules struct {
	Precision     int32
	Min           decimal.Decimal
	Max           decimal.Decimal
	AllowNegative bool
}

// Validate parses raw as an exact decimal and applies the configured rules.
// Checks run in a fixed order and the first violation wins:
// finite parse, fractional precision, sign, magnitude range.
func (r AmountRules) Validate(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotFinite, raw)
	}

	// Exponent is negative for fractional digits; trailing zeros count,
	// same as the precision rules applied upstream by issuing systems.
	if amount.Exponent() < -r.Precision {
		return decimal.Zero, fmt.Errorf("%w: at most %d decimal places", ErrTooManyDecimals, r.Precision)
	}

	if amount.IsNegative() && !r.AllowNegative {
		return decimal.Zero, ErrNegativeNotAllowed
	}

	mag := amount.Abs()
	if mag.Cmp(r.Min) < 0 || mag.Cmp(r.Max) > 0 {
		return decimal.Zero, fmt.Errorf("%w: magnitude must be within [%s, %s]", ErrOutOfRange, r.Min, r.Max)
	}

	return amount, nil
}

// ValidateAgainstBalance rejects a debit that would take the payer below
// zero. An exact-zero result is accepted. Credits always pass; whether the
// receiving side can absorb them is the ledger's concern.
//
// No lock spans this check and a later commit. Closing that race belongs
// to the ledger-commit step, not here.
func ValidateAgainstBalance(amount, balance decimal.Decimal) error {
	if amount.IsNegative() && balance.Add(amount).IsNegative() {
		return fmt.Errorf("%w: balance %s, amount %s", ErrInsufficientBalance, balance, amount)
	}
	return nil
}
