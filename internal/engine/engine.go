// Package engine holds the pure authorization policy. It never touches the
// database: the store locks state, hands a snapshot in, and applies whatever
// an approved Decision says. That split keeps every decline path testable
// without a pool.
package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"issuer-core/internal/domain"
	"issuer-core/internal/policy"
)

// ValidAuthorizeRequest is step 1 of the pipeline: field presence and a
// positive amount. Runs before any persistence access.
func ValidAuthorizeRequest(req domain.AuthorizeRequest) bool {
	if strings.TrimSpace(req.TransactionType) == "" {
		return false
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		return false
	}
	if strings.TrimSpace(req.CurrencyCode) == "" {
		return false
	}
	return req.Amount.IsPositive()
}

// ValidDepositAmount guards the credit path.
func ValidDepositAmount(amount decimal.Decimal) bool {
	return amount.IsPositive()
}

// Evaluate runs steps 4-9 of the authorization pipeline against a locked
// snapshot, in strict order: conversion, fee, account state, card state,
// expiry, funds, limit. Each check short-circuits; a declined Decision
// implies no mutation anywhere.
func Evaluate(
	snap domain.AuthSnapshot,
	req domain.AuthorizeRequest,
	now time.Time,
	fees policy.FeeSchedule,
	fx *policy.Converter,
) domain.Decision {
	rate, err := fx.Rate(req.CurrencyCode, fx.Base())
	if err != nil {
		return domain.Declined(domain.ReasonFxUnavailable)
	}
	converted := req.Amount.Mul(rate).Round(2)

	fee, feeCode := fees.Resolve(req.TransactionType, converted)
	totalDebit := converted.Add(fee)

	if snap.Account.Status != domain.AccountActive {
		return domain.Declined(domain.StatusDecline(string(snap.Account.Status)))
	}
	if snap.Card.Status != domain.CardActive {
		return domain.Declined(domain.StatusDecline(string(snap.Card.Status)))
	}
	if now.After(snap.Card.Expiry) {
		return domain.Declined(domain.ReasonExpired)
	}

	if snap.Account.Balance.LessThan(totalDebit) {
		return domain.Declined(domain.ReasonInsufficientFunds)
	}

	// Limit check uses the pre-fee converted amount: fees hit the balance,
	// never the spending limit.
	if limit, ok := effectiveLimit(snap); ok {
		if snap.Account.DailySpent.Add(converted).GreaterThan(limit) {
			return domain.Declined(domain.ReasonExceedsLimit)
		}
	}

	return domain.Decision{
		Approved:        true,
		ConvertedAmount: converted,
		Fee:             fee,
		FeeCode:         feeCode,
		TotalDebit:      totalDebit,
		NewBalance:      snap.Account.Balance.Sub(totalDebit),
	}
}

// effectiveLimit prefers the account daily limit; the per-card ceiling is
// the fallback. No limit configured means unlimited.
func effectiveLimit(snap domain.AuthSnapshot) (decimal.Decimal, bool) {
	if snap.Account.DailyLimit.Valid {
		return snap.Account.DailyLimit.Decimal, true
	}
	if snap.Card.LimitAmount.Valid {
		return snap.Card.LimitAmount.Decimal, true
	}
	return decimal.Decimal{}, false
}
