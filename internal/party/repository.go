package party

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPartyNotFound indicates a missing party row.
var ErrPartyNotFound = errors.New("party: not found")

type Repository interface {
	Get(ctx context.Context, ref Ref) (Party, error)
	List(ctx context.Context, t Type) ([]Party, error)
	SetAccount(ctx context.Context, ref Ref, accountID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, ref Ref) (Party, error) {
	var p Party
	err := r.db.QueryRow(ctx, `SELECT party_type, party_id, name, account_id, created_at, updated_at FROM parties WHERE party_type=$1 AND party_id=$2`, ref.Type, ref.ID).
		Scan(&p.Ref.Type, &p.Ref.ID, &p.Name, &p.AccountID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, ErrPartyNotFound
		}
		return Party{}, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, t Type) ([]Party, error) {
	rows, err := r.db.Query(ctx, `SELECT party_type, party_id, name, account_id, created_at, updated_at FROM parties WHERE party_type=$1 ORDER BY party_id`, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Party
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.Ref.Type, &p.Ref.ID, &p.Name, &p.AccountID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) SetAccount(ctx context.Context, ref Ref, accountID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE parties SET account_id=$3, updated_at=NOW() WHERE party_type=$1 AND party_id=$2`, ref.Type, ref.ID, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPartyNotFound
	}
	return nil
}
