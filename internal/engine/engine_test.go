package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"issuer-core/internal/domain"
	"issuer-core/internal/policy"
)

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(s), Valid: true}
}

func snapshot(balance string) domain.AuthSnapshot {
	return domain.AuthSnapshot{
		Account: domain.Account{
			Number:     "ACC-1",
			Balance:    d(balance),
			Status:     domain.AccountActive,
			DailySpent: decimal.Zero,
		},
		Card: domain.Card{
			ExternalID:    "4111222233334444",
			AccountNumber: "ACC-1",
			Status:        domain.CardActive,
			Expiry:        now.AddDate(3, 0, 0),
			Balance:       d(balance),
		},
	}
}

func request(txType, amount, currency string) domain.AuthorizeRequest {
	return domain.AuthorizeRequest{
		TransactionType: txType,
		ExternalID:      "4111222233334444",
		Amount:          d(amount),
		CurrencyCode:    currency,
	}
}

func evaluate(snap domain.AuthSnapshot, req domain.AuthorizeRequest) domain.Decision {
	return Evaluate(snap, req, now, policy.DefaultFeeSchedule(), policy.DefaultConverter())
}

func TestValidAuthorizeRequest(t *testing.T) {
	good := request("ATM_WITHDRAWAL", "100", "USD")
	if !ValidAuthorizeRequest(good) {
		t.Fatal("valid request rejected")
	}

	cases := []struct {
		name   string
		mutate func(*domain.AuthorizeRequest)
	}{
		{"missing type", func(r *domain.AuthorizeRequest) { r.TransactionType = " " }},
		{"missing external id", func(r *domain.AuthorizeRequest) { r.ExternalID = "" }},
		{"missing currency", func(r *domain.AuthorizeRequest) { r.CurrencyCode = "" }},
		{"zero amount", func(r *domain.AuthorizeRequest) { r.Amount = decimal.Zero }},
		{"negative amount", func(r *domain.AuthorizeRequest) { r.Amount = d("-5") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := good
			tc.mutate(&req)
			if ValidAuthorizeRequest(req) {
				t.Fatal("invalid request accepted")
			}
		})
	}
}

func TestEvaluate_ApprovedWithFee(t *testing.T) {
	// Spec scenario: 2000 base, ATM percent fee within [5,50].
	dec := evaluate(snapshot("5000"), request("ATM_WITHDRAWAL", "2000", "USD"))

	if !dec.Approved {
		t.Fatalf("declined: %s", dec.Reason)
	}
	if !dec.ConvertedAmount.Equal(d("2000")) {
		t.Fatalf("converted: got %s", dec.ConvertedAmount)
	}
	if !dec.Fee.Equal(d("30")) || dec.FeeCode != "F-ATM" {
		t.Fatalf("fee: got %s code %q", dec.Fee, dec.FeeCode)
	}
	if !dec.TotalDebit.Equal(d("2030")) {
		t.Fatalf("total: got %s", dec.TotalDebit)
	}
	if !dec.NewBalance.Equal(d("2970")) {
		t.Fatalf("new balance: got %s", dec.NewBalance)
	}
}

func TestEvaluate_CurrencyConversion(t *testing.T) {
	dec := evaluate(snapshot("1000"), request("POS_PURCHASE", "100", "EUR"))

	if !dec.Approved {
		t.Fatalf("declined: %s", dec.Reason)
	}
	// 100 EUR * 1.08 = 108.00; POS fee 0.5% floored at 0.50 -> 0.54
	if !dec.ConvertedAmount.Equal(d("108")) {
		t.Fatalf("converted: got %s", dec.ConvertedAmount)
	}
	if !dec.Fee.Equal(d("0.54")) {
		t.Fatalf("fee: got %s", dec.Fee)
	}
}

func TestEvaluate_FxUnavailableBeforeStateChecks(t *testing.T) {
	// A frozen account with an unquotable currency declines on FX first:
	// step order is conversion, fee, then state.
	snap := snapshot("1000")
	snap.Account.Status = domain.AccountFrozen

	dec := evaluate(snap, request("POS_PURCHASE", "100", "XXX"))
	if dec.Approved || dec.Reason != domain.ReasonFxUnavailable {
		t.Fatalf("got %+v want FX_RATE_UNAVAILABLE", dec)
	}
}

func TestEvaluate_StateDeclines(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.AuthSnapshot)
		want   domain.ReasonCode
	}{
		{"frozen account", func(s *domain.AuthSnapshot) { s.Account.Status = domain.AccountFrozen }, "DECLINED:Frozen"},
		{"closed account", func(s *domain.AuthSnapshot) { s.Account.Status = domain.AccountClosed }, "DECLINED:Closed"},
		{"inactive card", func(s *domain.AuthSnapshot) { s.Card.Status = domain.CardInactive }, "DECLINED:Inactive"},
		{"blocked card", func(s *domain.AuthSnapshot) { s.Card.Status = domain.CardBlocked }, "DECLINED:Blocked"},
		{"replaced card", func(s *domain.AuthSnapshot) { s.Card.Status = domain.CardReplaced }, "DECLINED:Replaced"},
		{"past expiry", func(s *domain.AuthSnapshot) { s.Card.Expiry = now.AddDate(0, -1, 0) }, domain.ReasonExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := snapshot("1000")
			tc.mutate(&snap)
			dec := evaluate(snap, request("POS_PURCHASE", "50", "USD"))
			if dec.Approved || dec.Reason != tc.want {
				t.Fatalf("got %+v want %s", dec, tc.want)
			}
		})
	}
}

func TestEvaluate_InsufficientFundsIncludesFee(t *testing.T) {
	// Balance covers the amount but not amount+fee.
	snap := snapshot("2010")
	dec := evaluate(snap, request("ATM_WITHDRAWAL", "2000", "USD"))
	if dec.Approved || dec.Reason != domain.ReasonInsufficientFunds {
		t.Fatalf("got %+v want InsufficientFunds", dec)
	}
}

func TestEvaluate_DailyLimitExceeded(t *testing.T) {
	// Spec scenario: balance 1000, daily_spent 0, daily_limit 500, amount
	// 600 -> ExceedsLimit.
	snap := snapshot("1000")
	snap.Account.DailyLimit = nd("500")

	dec := evaluate(snap, request("ATM_WITHDRAWAL", "600", "USD"))
	if dec.Approved || dec.Reason != domain.ReasonExceedsLimit {
		t.Fatalf("got %+v want ExceedsLimit", dec)
	}
}

func TestEvaluate_FeeDoesNotCountAgainstLimit(t *testing.T) {
	// Amount is inside the limit; amount+fee is not. Must still approve:
	// fees hit the balance, not the spending limit.
	snap := snapshot("1000")
	snap.Account.DailyLimit = nd("500")

	dec := evaluate(snap, request("ATM_WITHDRAWAL", "495", "USD"))
	if !dec.Approved {
		t.Fatalf("declined: %s", dec.Reason)
	}
	// 495 * 1.5% = 7.43 rounded; total over the limit, approved anyway.
	if !dec.Fee.Equal(d("7.43")) {
		t.Fatalf("fee: got %s", dec.Fee)
	}
	if !dec.TotalDebit.GreaterThan(d("500")) {
		t.Fatalf("scenario broken: total %s should exceed the limit", dec.TotalDebit)
	}
}

func TestEvaluate_CardLimitIsFallback(t *testing.T) {
	snap := snapshot("1000")
	snap.Card.LimitAmount = nd("100")

	dec := evaluate(snap, request("POS_PURCHASE", "150", "USD"))
	if dec.Approved || dec.Reason != domain.ReasonExceedsLimit {
		t.Fatalf("got %+v want ExceedsLimit via card limit", dec)
	}

	// Account daily limit takes precedence over the tighter card limit.
	snap.Account.DailyLimit = nd("200")
	dec = evaluate(snap, request("POS_PURCHASE", "150", "USD"))
	if !dec.Approved {
		t.Fatalf("declined: %s", dec.Reason)
	}
}

func TestEvaluate_DailySpentAccumulates(t *testing.T) {
	snap := snapshot("1000")
	snap.Account.DailyLimit = nd("500")
	snap.Account.DailySpent = d("480")

	dec := evaluate(snap, request("POS_PURCHASE", "30", "USD"))
	if dec.Approved || dec.Reason != domain.ReasonExceedsLimit {
		t.Fatalf("got %+v want ExceedsLimit with prior spend", dec)
	}

	dec = evaluate(snap, request("POS_PURCHASE", "20", "USD"))
	if !dec.Approved {
		t.Fatalf("exact limit fill declined: %s", dec.Reason)
	}
}
