package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	"github.com/meridian-erp/meridian-erp/internal/party"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for settlement.
type Repository interface {
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, ref party.Ref) ([]Invoice, error)
	ListAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error)
	ListVoucherAllocations(ctx context.Context, voucherID int64) ([]Allocation, error)
	GetVoucher(ctx context.Context, id int64) (Voucher, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a settlement transaction.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	ListOpenInvoicesForUpdate(ctx context.Context, ref party.Ref) ([]Invoice, error)
	NextSettlementOrder(ctx context.Context, invoiceID int64) (int, error)
	InsertAllocation(ctx context.Context, a Allocation) (Allocation, error)
	SumActiveAllocations(ctx context.Context, invoiceID int64) (float64, error)
	UpdateInvoiceSettlement(ctx context.Context, invoiceID int64, paid, outstanding float64, status InvoiceStatus) error
	GetAllocationForUpdate(ctx context.Context, id int64) (Allocation, error)
	MarkAllocationReversed(ctx context.Context, id int64, actorID int64, reason string) error
	GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error)
	UpdateVoucher(ctx context.Context, id int64, status VoucherStatus, journalID *int64) error
}

const invoiceColumns = `id, number, party_type, party_id, date, currency, total, paid_amount, outstanding, status, je_id, created_at, updated_at`
const allocationColumns = `id, invoice_id, voucher_id, amount, settlement_order, is_reversed, reversed_by, reversed_at, reverse_reason, created_at`
const voucherColumns = `id, number, kind, party_type, party_id, date, currency, amount, debit_account_id, credit_account_id, status, source_id, je_id, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Party.Type, &inv.Party.ID, &inv.Date, &inv.Currency,
		&inv.Total, &inv.PaidAmount, &inv.Outstanding, &inv.Status, &inv.JournalID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func scanAllocation(row pgx.Row) (Allocation, error) {
	var a Allocation
	err := row.Scan(&a.ID, &a.InvoiceID, &a.VoucherID, &a.Amount, &a.SettlementOrder,
		&a.IsReversed, &a.ReversedBy, &a.ReversedAt, &a.ReverseReason, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, shared.ErrAllocationNotFound
		}
		return Allocation{}, err
	}
	return a, nil
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.Number, &v.Kind, &v.Party.Type, &v.Party.ID, &v.Date, &v.Currency,
		&v.Amount, &v.DebitAccountID, &v.CreditAccountID, &v.Status, &v.SourceID, &v.JournalID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, shared.ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
}

func (r *repository) ListInvoices(ctx context.Context, ref party.Ref) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE party_type=$1 AND party_id=$2 ORDER BY date ASC, id ASC`, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *repository) ListAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE invoice_id=$1 ORDER BY settlement_order ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) ListVoucherAllocations(ctx context.Context, voucherID int64) ([]Allocation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE voucher_id=$1 ORDER BY id ASC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) GetVoucher(ctx context.Context, id int64) (Voucher, error) {
	return scanVoucher(r.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1`, id))
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return mapConcurrency(err)
}

func mapConcurrency(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", shared.ErrConcurrencyConflict, pgErr.Code)
		}
	}
	return err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
}

// ListOpenInvoicesForUpdate fetches the party's unsettled invoices oldest
// first, ties broken by creation order, and locks them for the run.
func (r *txRepository) ListOpenInvoicesForUpdate(ctx context.Context, ref party.Ref) ([]Invoice, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE party_type=$1 AND party_id=$2 AND status <> 'PAID'
ORDER BY date ASC, id ASC FOR UPDATE`, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *txRepository) NextSettlementOrder(ctx context.Context, invoiceID int64) (int, error) {
	var next int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(settlement_order), 0) + 1 FROM allocations WHERE invoice_id=$1`, invoiceID).Scan(&next)
	return next, err
}

func (r *txRepository) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO allocations (invoice_id, voucher_id, amount, settlement_order, is_reversed)
VALUES ($1,$2,$3,$4,FALSE) RETURNING id, created_at`, a.InvoiceID, a.VoucherID, toNumeric(a.Amount), a.SettlementOrder)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		return Allocation{}, err
	}
	return a, nil
}

func (r *txRepository) SumActiveAllocations(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM allocations WHERE invoice_id=$1 AND is_reversed=FALSE`, invoiceID).Scan(&sum)
	return sum, err
}

func (r *txRepository) UpdateInvoiceSettlement(ctx context.Context, invoiceID int64, paid, outstanding float64, status InvoiceStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET paid_amount=$2, outstanding=$3, status=$4, updated_at=NOW() WHERE id=$1`,
		invoiceID, toNumeric(paid), toNumeric(outstanding), status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) GetAllocationForUpdate(ctx context.Context, id int64) (Allocation, error) {
	return scanAllocation(r.tx.QueryRow(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) MarkAllocationReversed(ctx context.Context, id int64, actorID int64, reason string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE allocations SET is_reversed=TRUE, reversed_by=$2, reversed_at=NOW(), reverse_reason=$3 WHERE id=$1 AND is_reversed=FALSE`,
		id, actorID, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAllocationNotFound
	}
	return nil
}

func (r *txRepository) GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error) {
	return scanVoucher(r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateVoucher(ctx context.Context, id int64, status VoucherStatus, journalID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET status=$2, je_id=COALESCE($3, je_id), updated_at=NOW() WHERE id=$1`, id, status, journalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("voucher %d: %w", id, shared.ErrVoucherNotFound)
	}
	return nil
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
