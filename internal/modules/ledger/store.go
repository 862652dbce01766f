// README: Ledger store backed by PostgreSQL.
package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"plow/internal/types"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db Querier
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

const txnColumns = `
	id, job_id, generation, client_id, operator_id, amount, currency, platform_fee,
	status, payment_method, tip_amount, cash_received,
	hold_ref, capture_ref, transfer_ref, payout_amount, created_at, updated_at`

func (s *Store) Create(ctx context.Context, t *Transaction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (`+txnColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18
		)`,
		string(t.ID), string(t.JobID), t.Generation, string(t.ClientID), idPtr(t.OperatorID),
		t.Amount, t.Currency, t.PlatformFee,
		string(t.Status), string(t.PaymentMethod), t.TipAmount, t.CashReceived,
		t.HoldRef, t.CaptureRef, t.TransferRef, t.PayoutAmount, t.CreatedAt, t.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+txnColumns+` FROM transactions WHERE id = $1`, string(id))
	t, err := scanTxn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *Store) Update(ctx context.Context, t *Transaction, expected Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE transactions
		SET operator_id = $1,
			status = $2,
			capture_ref = $3,
			transfer_ref = $4,
			payout_amount = $5,
			updated_at = $6
		WHERE id = $7 AND status = $8`,
		idPtr(t.OperatorID),
		string(t.Status),
		t.CaptureRef,
		t.TransferRef,
		t.PayoutAmount,
		t.UpdatedAt,
		string(t.ID),
		string(expected),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListByJob(ctx context.Context, jobID types.ID) ([]*Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+txnColumns+`
		FROM transactions
		WHERE job_id = $1
		ORDER BY generation`, string(jobID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) AppendEntry(ctx context.Context, e *Entry) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO ledger_entries (
			transaction_id, job_id, kind, amount, gateway_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.TransactionID), string(e.JobID), string(e.Kind), e.Amount, e.GatewayRef, e.CreatedAt,
	).Scan(&e.ID)
}

func (s *Store) Entries(ctx context.Context, jobID types.ID) ([]*Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, transaction_id, job_id, kind, amount, gateway_ref, created_at
		FROM ledger_entries
		WHERE job_id = $1
		ORDER BY id`, string(jobID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.JobID, &e.Kind, &e.Amount, &e.GatewayRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanTxn(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var operatorID *string
	err := row.Scan(
		&t.ID, &t.JobID, &t.Generation, &t.ClientID, &operatorID, &t.Amount, &t.Currency, &t.PlatformFee,
		&t.Status, &t.PaymentMethod, &t.TipAmount, &t.CashReceived,
		&t.HoldRef, &t.CaptureRef, &t.TransferRef, &t.PayoutAmount, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if operatorID != nil {
		op := types.ID(*operatorID)
		t.OperatorID = &op
	}
	return &t, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
