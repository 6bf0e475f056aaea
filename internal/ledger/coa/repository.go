package coa

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	GetByCodeForUpdate(ctx context.Context, code string) (Account, error)
	InsertAccount(ctx context.Context, a Account) (Account, error)
	CountChildren(ctx context.Context, accountID int64) (int, error)
	HasPostings(ctx context.Context, accountID int64) (bool, error)
	MarkGroup(ctx context.Context, accountID int64) error
	SetActive(ctx context.Context, accountID int64, active bool) error
}

const accountColumns = `id, code, name, type, nature, parent_id, level, is_group, balance, currency, is_active, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Nature, &a.ParentID, &a.Level, &a.IsGroup, &a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetByCodeForUpdate(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1 FOR UPDATE`, code))
}

func (r *txRepository) InsertAccount(ctx context.Context, a Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, nature, parent_id, level, is_group, balance, currency, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,TRUE) RETURNING id, created_at, updated_at`,
		a.Code, a.Name, a.Type, a.Nature, a.ParentID, a.Level, a.IsGroup, a.Currency)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, shared.ErrCodeExists
		}
		return Account{}, err
	}
	a.IsActive = true
	return a, nil
}

func (r *txRepository) CountChildren(ctx context.Context, accountID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE parent_id=$1`, accountID).Scan(&count)
	return count, err
}

func (r *txRepository) HasPostings(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gl_entries WHERE account_id=$1)`, accountID).Scan(&exists)
	return exists, err
}

func (r *txRepository) MarkGroup(ctx context.Context, accountID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_group=TRUE, updated_at=NOW() WHERE id=$1`, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) SetActive(ctx context.Context, accountID int64, active bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE id=$1`, accountID, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}
