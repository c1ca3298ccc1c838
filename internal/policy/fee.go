package policy

import "github.com/shopspring/decimal"

// FeeKind is a closed set. Every switch over it must handle all three
// variants; there is no open-ended dispatch on strings.
type FeeKind int

const (
	FeeFixed FeeKind = iota
	FeePercentMinMax
	FeePercentMin
)

func (k FeeKind) String() string {
	switch k {
	case FeeFixed:
		return "FIXED"
	case FeePercentMinMax:
		return "PERCENT_MIN_MAX"
	case FeePercentMin:
		return "PERCENT_MIN"
	}
	return "UNKNOWN"
}

type FeeRule struct {
	Code string
	Kind FeeKind
	Rate decimal.Decimal
	Min  decimal.Decimal
	Max  decimal.Decimal
}

// FeeSchedule maps transaction type to its fee rule. Static policy, not
// mutable state; the persisted fee_schedule table mirrors the codes here.
type FeeSchedule map[string]FeeRule

// Resolve computes the fee for a base-currency amount, rounded to 2dp.
// A transaction type with no rule costs nothing: that is "no fee policy
// defined", not an error.
func (s FeeSchedule) Resolve(txType string, amount decimal.Decimal) (decimal.Decimal, string) {
	rule, ok := s[txType]
	if !ok {
		return decimal.Zero, ""
	}

	var fee decimal.Decimal
	switch rule.Kind {
	case FeeFixed:
		fee = rule.Rate
	case FeePercentMinMax:
		fee = amount.Mul(rule.Rate)
		if fee.LessThan(rule.Min) {
			fee = rule.Min
		}
		if fee.GreaterThan(rule.Max) {
			fee = rule.Max
		}
	case FeePercentMin:
		fee = amount.Mul(rule.Rate)
		if fee.LessThan(rule.Min) {
			fee = rule.Min
		}
	default:
		return decimal.Zero, ""
	}

	return fee.Round(2), rule.Code
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultFeeSchedule is the issuing fee policy. BALANCE_INQUIRY is absent
// on purpose: inquiries are free and read-only.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		"ATM_WITHDRAWAL": {
			Code: "F-ATM",
			Kind: FeePercentMinMax,
			Rate: d("0.015"),
			Min:  d("5"),
			Max:  d("50"),
		},
		"POS_PURCHASE": {
			Code: "F-POS",
			Kind: FeePercentMin,
			Rate: d("0.005"),
			Min:  d("0.50"),
		},
		"ECOM_PURCHASE": {
			Code: "F-ECOM",
			Kind: FeePercentMin,
			Rate: d("0.01"),
			Min:  d("1"),
		},
		"TRANSFER_OUT": {
			Code: "F-XFER",
			Kind: FeeFixed,
			Rate: d("2.50"),
		},
	}
}
