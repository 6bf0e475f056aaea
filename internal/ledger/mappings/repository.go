package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
)

type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
	ListByModule(ctx context.Context, module string) ([]AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("ledger: mapping module and key required")
	}
	normalized := strings.ToUpper(module)
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT module, mapping_key, role, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 AND mapping_key=$2`, normalized, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.Role, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

func (r *repository) ListByModule(ctx context.Context, module string) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT module, mapping_key, role, account_id, created_at, updated_at FROM account_mappings WHERE module=$1 ORDER BY mapping_key`, strings.ToUpper(module))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.Role, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
