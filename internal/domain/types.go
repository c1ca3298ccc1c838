package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive AccountStatus = "Active"
	AccountFrozen AccountStatus = "Frozen"
	AccountClosed AccountStatus = "Closed"
)

type CardStatus string

const (
	CardInactive CardStatus = "Inactive"
	CardActive   CardStatus = "Active"
	CardBlocked  CardStatus = "Blocked"
	CardExpired  CardStatus = "Expired"
	CardReplaced CardStatus = "Replaced"
)

// TxBalanceInquiry is the read-only transaction type: no mutation, no lock.
const TxBalanceInquiry = "BALANCE_INQUIRY"

// Account is the ledger side of the pair. Balance and limits are
// base-currency decimals; DailySpent only ever grows within a day
// (the window reset runs outside this service).
type Account struct {
	Number     string
	Balance    decimal.Decimal
	Status     AccountStatus
	DailySpent decimal.Decimal
	DailyLimit decimal.NullDecimal
}

// Card carries the public handle (ExternalID), the sensitive PAN and the
// balance mirror. Card.Balance must equal the owning account's balance
// after every committed mutation.
type Card struct {
	ExternalID    string
	AccountNumber string
	PAN           string
	PVV           string
	Status        CardStatus
	Expiry        time.Time
	LimitAmount   decimal.NullDecimal
	Balance       decimal.Decimal
	PinSet        bool
}

// AuthSnapshot is the row-locked state an authorization is decided against.
type AuthSnapshot struct {
	Account Account
	Card    Card
}

type ReasonCode string

const (
	ReasonInvalidRequest    ReasonCode = "INVALID_REQUEST"
	ReasonNotFound          ReasonCode = "NOT_FOUND"
	ReasonFxUnavailable     ReasonCode = "FX_RATE_UNAVAILABLE"
	ReasonExpired           ReasonCode = "DECLINED:Expired"
	ReasonInsufficientFunds ReasonCode = "DECLINED:InsufficientFunds"
	ReasonExceedsLimit      ReasonCode = "DECLINED:ExceedsLimit"
)

// StatusDecline builds the reason for a state decline, e.g. "DECLINED:Frozen".
func StatusDecline(status string) ReasonCode {
	return ReasonCode("DECLINED:" + status)
}

// Decision is the outcome of an authorization. Declines carry only the
// reason; approvals carry the amounts the coordinator must apply.
type Decision struct {
	Approved bool
	Reason   ReasonCode

	ConvertedAmount decimal.Decimal
	Fee             decimal.Decimal
	FeeCode         string
	TotalDebit      decimal.Decimal
	NewBalance      decimal.Decimal
}

func Declined(reason ReasonCode) Decision {
	return Decision{Approved: false, Reason: reason}
}

type AuthorizeRequest struct {
	TransactionType string          `json:"transaction_type"`
	ExternalID      string          `json:"external_id"`
	Amount          decimal.Decimal `json:"amount"`
	CurrencyCode    string          `json:"currency_code"`
}

type AuthorizeResponse struct {
	Approved bool   `json:"approved"`
	Declined bool   `json:"declined,omitempty"`
	Reason   string `json:"reason,omitempty"`

	AmountDebited string `json:"amount_debited_base_currency,omitempty"`
	FeeAmount     string `json:"fee_amount,omitempty"`
	TotalDebit    string `json:"total_debit,omitempty"`
	BalanceAfter  string `json:"balance_after_txn,omitempty"`
}

type DepositRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	CurrencyCode  string          `json:"currency_code"`
}

type DepositResponse struct {
	NewBalance string `json:"new_balance"`
}

type SetPinRequest struct {
	ClearPin string `json:"clear_pin"`
}

type ChangePinRequest struct {
	CurrentPinBlock string `json:"current_pin_block"`
	NewClearPin     string `json:"new_clear_pin"`
}

type VerifyPinRequest struct {
	CurrentPinBlock string `json:"current_pin_block"`
}

type VerifyPinResponse struct {
	Verified bool `json:"verified"`
}
