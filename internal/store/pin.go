package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"issuer-core/internal/domain"
)

// SetPin derives and persists the initial PVV for a card that has no PIN
// yet. The clear PIN never leaves this call: only the derived PVV is
// written, and no event payload carries PIN material.
func (s *Store) SetPin(ctx context.Context, externalID, clearPin, correlationID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var pan string
	var pinSet bool
	err = tx.QueryRow(ctx,
		`SELECT pan, pin_set FROM cards WHERE external_id=$1 FOR UPDATE`,
		externalID,
	).Scan(&pan, &pinSet)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	if pinSet {
		return domain.ErrPinAlreadySet
	}

	pvv, err := s.hsm.DerivePVV(pan, clearPin)
	if err != nil {
		// Security failure aborts before any write.
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE cards SET pvv=$1, pin_set=TRUE WHERE external_id=$2`,
		pvv, externalID,
	)
	if err != nil {
		return err
	}

	ev := pinEventPayload{ExternalID: externalID}
	if err := insertEvent(ctx, tx, "PIN_SET", "CARD", externalID, correlationID, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ChangePin verifies the presented PIN block against the stored PVV, then
// derives and persists a PVV for the new PIN. A failed verification leaves
// the stored credential untouched.
func (s *Store) ChangePin(ctx context.Context, externalID, currentPinBlock, newClearPin, correlationID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var pan, pvv string
	var pinSet bool
	err = tx.QueryRow(ctx,
		`SELECT pan, COALESCE(pvv,''), pin_set FROM cards WHERE external_id=$1 FOR UPDATE`,
		externalID,
	).Scan(&pan, &pvv, &pinSet)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	if !pinSet {
		return domain.ErrPinNotSet
	}
	if !s.hsm.VerifyPinBlock(pan, currentPinBlock, pvv) {
		return domain.ErrIncorrectPin
	}

	newPvv, err := s.hsm.DerivePVV(pan, newClearPin)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE cards SET pvv=$1 WHERE external_id=$2`,
		newPvv, externalID,
	)
	if err != nil {
		return err
	}

	ev := pinEventPayload{ExternalID: externalID}
	if err := insertEvent(ctx, tx, "PIN_CHANGED", "CARD", externalID, correlationID, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// VerifyPin checks a presented PIN block without mutating anything. Plain
// read, no transaction, no lock.
func (s *Store) VerifyPin(ctx context.Context, externalID, pinBlock string) (bool, error) {
	var pan, pvv string
	var status domain.CardStatus
	var pinSet bool
	err := s.db.QueryRow(ctx,
		`SELECT pan, COALESCE(pvv,''), status, pin_set FROM cards WHERE external_id=$1`,
		externalID,
	).Scan(&pan, &pvv, &status, &pinSet)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		return false, err
	}
	if status != domain.CardActive {
		return false, fmt.Errorf("%w: card is %s", domain.ErrState, status)
	}
	if !pinSet {
		return false, domain.ErrPinNotSet
	}
	return s.hsm.VerifyPinBlock(pan, pinBlock, pvv), nil
}
