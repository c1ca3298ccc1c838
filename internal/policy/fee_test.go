package policy

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFeeSchedule_Resolve(t *testing.T) {
	fees := DefaultFeeSchedule()

	cases := []struct {
		name     string
		txType   string
		amount   string
		wantFee  string
		wantCode string
	}{
		{"atm percent within band", "ATM_WITHDRAWAL", "2000", "30", "F-ATM"},
		{"atm clamped to min", "ATM_WITHDRAWAL", "100", "5", "F-ATM"},
		{"atm clamped to max", "ATM_WITHDRAWAL", "10000", "50", "F-ATM"},
		{"pos percent min floor", "POS_PURCHASE", "10", "0.5", "F-POS"},
		{"pos no upper bound", "POS_PURCHASE", "100000", "500", "F-POS"},
		{"fixed ignores amount", "TRANSFER_OUT", "999999", "2.5", "F-XFER"},
		{"unknown type is free", "CASH_ADVANCE", "500", "0", ""},
		{"inquiry is free", "BALANCE_INQUIRY", "0", "0", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fee, code := fees.Resolve(tc.txType, decimal.RequireFromString(tc.amount))
			if !fee.Equal(decimal.RequireFromString(tc.wantFee)) {
				t.Fatalf("fee: got %s want %s", fee, tc.wantFee)
			}
			if code != tc.wantCode {
				t.Fatalf("code: got %q want %q", code, tc.wantCode)
			}
		})
	}
}

func TestFeeSchedule_RoundingTwoPlacesAndIdempotent(t *testing.T) {
	fees := FeeSchedule{
		"ODD": {Code: "F-ODD", Kind: FeePercentMin, Rate: d("0.0333"), Min: d("0")},
	}

	amount := d("123.45")
	first, _ := fees.Resolve("ODD", amount)
	second, _ := fees.Resolve("ODD", amount)

	if !first.Equal(second) {
		t.Fatalf("not deterministic: %s vs %s", first, second)
	}
	if first.Exponent() < -2 {
		t.Fatalf("more than 2 fraction digits: %s", first)
	}
	// 123.45 * 0.0333 = 4.110885 -> 4.11
	if !first.Equal(d("4.11")) {
		t.Fatalf("got %s want 4.11", first)
	}
}

func TestFeeKind_String(t *testing.T) {
	if FeeFixed.String() != "FIXED" ||
		FeePercentMinMax.String() != "PERCENT_MIN_MAX" ||
		FeePercentMin.String() != "PERCENT_MIN" {
		t.Fatal("kind names drifted from schedule table values")
	}
}
