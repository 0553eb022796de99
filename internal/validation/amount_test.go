package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func centRules(allowNegative bool) AmountRules {
	return AmountRules{
		Precision:     2,
		Min:           decimal.RequireFromString("0.01"),
		Max:           decimal.NewFromInt(1000000),
		AllowNegative: allowNegative,
	}
}

func TestAmountRules_Validate(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		allow   bool
		wantErr error
		want    string
	}{
		{name: "simple", raw: "10.50", want: "10.5"},
		{name: "integer", raw: "42", want: "42"},
		{name: "boundary min", raw: "0.01", want: "0.01"},
		{name: "boundary max", raw: "1000000", want: "1000000"},
		{name: "boundary max with decimals", raw: "1000000.00", want: "1000000"},
		{name: "too many decimals", raw: "10.123", wantErr: ErrTooManyDecimals},
		{name: "trailing zero counts as a digit", raw: "10.120", wantErr: ErrTooManyDecimals},
		{name: "sub-cent hits precision first", raw: "0.001", wantErr: ErrTooManyDecimals},
		{name: "zero below min", raw: "0", wantErr: ErrOutOfRange},
		{name: "above max", raw: "1000000.01", wantErr: ErrOutOfRange},
		{name: "negative disallowed", raw: "-10.00", wantErr: ErrNegativeNotAllowed},
		{name: "negative allowed", raw: "-150.00", allow: true, want: "-150"},
		{name: "negative magnitude out of range", raw: "-2000000", allow: true, wantErr: ErrOutOfRange},
		{name: "garbage", raw: "ten", wantErr: ErrNotFinite},
		{name: "nan", raw: "NaN", wantErr: ErrNotFinite},
		{name: "infinity", raw: "Inf", wantErr: ErrNotFinite},
		{name: "empty", raw: "", wantErr: ErrNotFinite},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := centRules(tc.allow).Validate(tc.raw)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Validate(%q) error = %v; want %v", tc.raw, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q): %v", tc.raw, err)
			}
			if got.String() != tc.want {
				t.Fatalf("Validate(%q) = %s; want %s", tc.raw, got, tc.want)
			}
		})
	}
}

func TestAmountRules_FirstViolationWins(t *testing.T) {
	// Negative AND too precise: precision is checked before sign.
	_, err := centRules(false).Validate("-10.123")
	if !errors.Is(err, ErrTooManyDecimals) {
		t.Fatalf("error = %v; want ErrTooManyDecimals", err)
	}
}

func TestValidateAgainstBalance(t *testing.T) {
	balance := decimal.NewFromInt(100)

	if err := ValidateAgainstBalance(decimal.RequireFromString("-150"), balance); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("debit exceeding balance: error = %v; want ErrInsufficientBalance", err)
	}

	// Draining the balance to exactly zero is allowed.
	if err := ValidateAgainstBalance(decimal.RequireFromString("-100"), balance); err != nil {
		t.Fatalf("debit to zero: %v", err)
	}

	if err := ValidateAgainstBalance(decimal.RequireFromString("-99.99"), balance); err != nil {
		t.Fatalf("partial debit: %v", err)
	}

	// Credits never consult the balance.
	if err := ValidateAgainstBalance(decimal.NewFromInt(10_000), decimal.Zero); err != nil {
		t.Fatalf("credit: %v", err)
	}
}
