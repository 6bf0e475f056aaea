package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
)

// Repository provides the reads and the single guarded write reconciliation
// needs.
type Repository interface {
	GetAccount(ctx context.Context, accountID int64) (coa.Account, error)
	// SumPostings returns total debits and credits across the account's GL
	// rows, counting only rows whose journal entry is still posted.
	SumPostings(ctx context.Context, accountID int64) (debit, credit float64, err error)
	// NatureTotals aggregates stored balances per account nature for the
	// trial-balance check.
	NatureTotals(ctx context.Context) (debitTotal, creditTotal float64, err error)
	// RepairBalance overwrites the stored balance under a row lock.
	RepairBalance(ctx context.Context, accountID int64, balance float64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetAccount(ctx context.Context, accountID int64) (coa.Account, error) {
	var a coa.Account
	err := r.db.QueryRow(ctx, `SELECT id, code, name, type, nature, parent_id, level, is_group, balance, currency, is_active, created_at, updated_at
FROM accounts WHERE id=$1`, accountID).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Nature, &a.ParentID, &a.Level, &a.IsGroup, &a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coa.Account{}, shared.ErrAccountNotFound
		}
		return coa.Account{}, err
	}
	return a, nil
}

func (r *repository) SumPostings(ctx context.Context, accountID int64) (float64, float64, error) {
	var debit, credit float64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(g.debit), 0), COALESCE(SUM(g.credit), 0)
FROM gl_entries g JOIN journal_entries e ON e.id = g.je_id
WHERE g.account_id=$1 AND e.status='POSTED'`, accountID).Scan(&debit, &credit)
	return debit, credit, err
}

func (r *repository) NatureTotals(ctx context.Context) (float64, float64, error) {
	var debitTotal, creditTotal float64
	err := r.db.QueryRow(ctx, `SELECT
COALESCE(SUM(balance) FILTER (WHERE nature='DEBIT'), 0),
COALESCE(SUM(balance) FILTER (WHERE nature='CREDIT'), 0)
FROM accounts WHERE is_group=FALSE`).Scan(&debitTotal, &creditTotal)
	return debitTotal, creditTotal, err
}

func (r *repository) RepairBalance(ctx context.Context, accountID int64, balance float64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrAccountNotFound
		}
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, accountID, fmt.Sprintf("%.2f", balance)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
