package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"issuer-core/internal/domain"
	"issuer-core/internal/engine"
	"issuer-core/internal/hsm"
	"issuer-core/internal/policy"
)

// Store coordinates every unit of work against the ledger. All multi-row
// mutations run inside a single pgx transaction with the affected rows
// locked FOR UPDATE, so concurrent authorizations against one card are
// serialized at the row and a partial write is never observable.
type Store struct {
	db   *pgxpool.Pool
	hsm  *hsm.Module
	fees policy.FeeSchedule
	fx   *policy.Converter
}

func New(db *pgxpool.Pool, h *hsm.Module, fees policy.FeeSchedule, fx *policy.Converter) *Store {
	return &Store{db: db, hsm: h, fees: fees, fx: fx}
}

// lockSnapshot locks the account row first and the card row second, the
// same order Deposit takes them, so the two write paths cannot deadlock.
// The unlocked pre-read is safe: a card never moves between accounts.
func lockSnapshot(ctx context.Context, tx pgx.Tx, externalID string) (domain.AuthSnapshot, error) {
	var snap domain.AuthSnapshot
	snap.Card.ExternalID = externalID

	err := tx.QueryRow(ctx,
		`SELECT account_number FROM cards WHERE external_id=$1`,
		externalID,
	).Scan(&snap.Card.AccountNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AuthSnapshot{}, domain.ErrNotFound
		}
		return domain.AuthSnapshot{}, err
	}

	err = tx.QueryRow(ctx,
		`SELECT number, balance, status, daily_spent, daily_limit
		   FROM accounts WHERE number=$1 FOR UPDATE`,
		snap.Card.AccountNumber,
	).Scan(
		&snap.Account.Number,
		&snap.Account.Balance,
		&snap.Account.Status,
		&snap.Account.DailySpent,
		&snap.Account.DailyLimit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AuthSnapshot{}, domain.ErrNotFound
		}
		return domain.AuthSnapshot{}, err
	}

	err = tx.QueryRow(ctx,
		`SELECT pan, status, expiry, limit_amount, balance, pin_set
		   FROM cards WHERE external_id=$1 FOR UPDATE`,
		externalID,
	).Scan(
		&snap.Card.PAN,
		&snap.Card.Status,
		&snap.Card.Expiry,
		&snap.Card.LimitAmount,
		&snap.Card.Balance,
		&snap.Card.PinSet,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AuthSnapshot{}, domain.ErrNotFound
		}
		return domain.AuthSnapshot{}, err
	}
	return snap, nil
}

// AuthorizeDebit runs the full authorization pipeline. Expected declines
// come back as a Decision with a reason and a nil error; only faults
// (persistence, fee schedule misconfiguration) surface as errors. On any
// non-approved outcome nothing is written.
func (s *Store) AuthorizeDebit(
	ctx context.Context,
	req domain.AuthorizeRequest,
	correlationID string,
) (domain.Decision, error) {
	if !engine.ValidAuthorizeRequest(req) {
		return domain.Declined(domain.ReasonInvalidRequest), nil
	}

	// Read-only inquiry: no transaction, no lock, no mutation.
	if strings.EqualFold(req.TransactionType, domain.TxBalanceInquiry) {
		bal, err := s.BalanceInquiry(ctx, req.ExternalID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Declined(domain.ReasonNotFound), nil
			}
			return domain.Decision{}, err
		}
		return domain.Decision{Approved: true, NewBalance: bal}, nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return domain.Decision{}, err
	}
	defer tx.Rollback(ctx)

	snap, err := lockSnapshot(ctx, tx, req.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Declined(domain.ReasonNotFound), nil
		}
		return domain.Decision{}, err
	}

	dec := engine.Evaluate(snap, req, time.Now(), s.fees, s.fx)
	if !dec.Approved {
		// Locked but never wrote; the deferred rollback releases the rows.
		return dec, nil
	}

	if err := s.applyDebit(ctx, tx, snap, dec); err != nil {
		return domain.Decision{}, err
	}

	ev := authApprovedPayload{
		ExternalID:      req.ExternalID,
		AccountNumber:   snap.Account.Number,
		TransactionType: req.TransactionType,
		Currency:        strings.ToUpper(strings.TrimSpace(req.CurrencyCode)),
		ConvertedAmount: dec.ConvertedAmount.StringFixed(2),
		Fee:             dec.Fee.StringFixed(2),
		FeeCode:         dec.FeeCode,
		TotalDebit:      dec.TotalDebit.StringFixed(2),
		NewBalance:      dec.NewBalance.StringFixed(2),
	}
	if err := insertEvent(ctx, tx, "AUTH_APPROVED", "CARD", req.ExternalID, correlationID, ev); err != nil {
		return domain.Decision{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Decision{}, err
	}
	return dec, nil
}

// applyDebit is the ledger coordinator: balance, daily_spent, card mirror
// and fee ledger move together or not at all.
func (s *Store) applyDebit(ctx context.Context, tx pgx.Tx, snap domain.AuthSnapshot, dec domain.Decision) error {
	_, err := tx.Exec(ctx,
		`UPDATE accounts SET balance=$1, daily_spent=daily_spent+$2 WHERE number=$3`,
		dec.NewBalance, dec.ConvertedAmount, snap.Account.Number,
	)
	if err != nil {
		return err
	}

	// Mirror sync happens inside the same unit of work, never as a separate
	// best-effort step.
	_, err = tx.Exec(ctx,
		`UPDATE cards SET balance=$1 WHERE external_id=$2`,
		dec.NewBalance, snap.Card.ExternalID,
	)
	if err != nil {
		return err
	}

	if !dec.Fee.IsPositive() {
		return nil
	}

	var feeID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT fee_id FROM fee_schedule WHERE code=$1`, dec.FeeCode).Scan(&feeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: code %s", domain.ErrFeeScheduleMissing, dec.FeeCode)
		}
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO fee_ledger(entry_id, fee_id, account_number, fee_code, charged_amount, status)
		 VALUES($1,$2,$3,$4,$5,'POSTED')`,
		uuid.New(), feeID, snap.Account.Number, dec.FeeCode, dec.Fee,
	)
	return err
}

// BalanceInquiry reads the current balance without a write lock.
func (s *Store) BalanceInquiry(ctx context.Context, externalID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := s.db.QueryRow(ctx,
		`SELECT a.balance FROM cards c JOIN accounts a ON a.number=c.account_number WHERE c.external_id=$1`,
		externalID,
	).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, domain.ErrNotFound
		}
		return decimal.Decimal{}, err
	}
	return bal, nil
}

// Deposit credits an Active account and syncs the balance mirror on every
// card of that account, atomically. Only base-currency deposits are
// accepted: the ledger is single-currency.
func (s *Store) Deposit(
	ctx context.Context,
	accountNumber string,
	amount decimal.Decimal,
	currency, correlationID string,
) (decimal.Decimal, error) {
	if strings.TrimSpace(accountNumber) == "" || !engine.ValidDepositAmount(amount) {
		return decimal.Decimal{}, domain.ErrValidation
	}
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur != s.fx.Base() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, cur)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer tx.Rollback(ctx)

	var newBalance decimal.Decimal
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET balance=balance+$1 WHERE number=$2 AND status=$3 RETURNING balance`,
		amount, accountNumber, string(domain.AccountActive),
	).Scan(&newBalance)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, err
		}
		// Conditional update matched nothing: re-read to tell missing from
		// inactive.
		var status domain.AccountStatus
		err = tx.QueryRow(ctx, `SELECT status FROM accounts WHERE number=$1`, accountNumber).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return decimal.Decimal{}, domain.ErrNotFound
			}
			return decimal.Decimal{}, err
		}
		return decimal.Decimal{}, fmt.Errorf("%w: account is %s", domain.ErrState, status)
	}

	_, err = tx.Exec(ctx,
		`UPDATE cards SET balance=$1 WHERE account_number=$2`,
		newBalance, accountNumber,
	)
	if err != nil {
		return decimal.Decimal{}, err
	}

	ev := depositPostedPayload{
		AccountNumber: accountNumber,
		Amount:        amount.StringFixed(2),
		Currency:      cur,
		NewBalance:    newBalance.StringFixed(2),
	}
	if err := insertEvent(ctx, tx, "DEPOSIT_POSTED", "ACCOUNT", accountNumber, correlationID, ev); err != nil {
		return decimal.Decimal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Decimal{}, err
	}
	return newBalance, nil
}
