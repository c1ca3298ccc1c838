package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/jackc/pgx/v5"

	"issuer-core/internal/domain"
)

// Event payloads carry money as fixed 2dp strings. No floats. No maps.
// Stable field order via struct marshaling.

type authApprovedPayload struct {
	ExternalID      string `json:"external_id"`
	AccountNumber   string `json:"account_number"`
	TransactionType string `json:"transaction_type"`
	Currency        string `json:"currency"`
	ConvertedAmount string `json:"converted_amount"`
	Fee             string `json:"fee"`
	FeeCode         string `json:"fee_code,omitempty"`
	TotalDebit      string `json:"total_debit"`
	NewBalance      string `json:"new_balance"`
}

type depositPostedPayload struct {
	AccountNumber string `json:"account_number"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	NewBalance    string `json:"new_balance"`
}

// PIN events record that a credential changed, never what it changed to.
type pinEventPayload struct {
	ExternalID string `json:"external_id"`
}

// jcsPayload returns both representations the event_log schema wants:
// regular JSON bytes (cast to jsonb in SQL) and the RFC 8785 canonical
// string.
func jcsPayload(v any) (payloadJSON json.RawMessage, payloadCanonical string, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, "", err
	}
	return raw, string(canon), nil
}

// insertEvent is the single entry point for event_log appends.
func insertEvent(
	ctx context.Context,
	tx pgx.Tx,
	eventType, aggregateType, aggregateID, correlationID string,
	payload any,
) error {
	if strings.TrimSpace(eventType) == "" ||
		strings.TrimSpace(aggregateType) == "" ||
		strings.TrimSpace(aggregateID) == "" ||
		strings.TrimSpace(correlationID) == "" {
		return domain.ErrValidation
	}

	payloadJSON, payloadCanonical, err := jcsPayload(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO event_log(
			event_id, event_type, aggregate_type, aggregate_id, correlation_id, payload_json, payload_canonical
		) VALUES($1,$2,$3,$4,$5,$6::jsonb,$7)`,
		uuid.New(), eventType, aggregateType, aggregateID, correlationID, []byte(payloadJSON), payloadCanonical,
	)
	return err
}
