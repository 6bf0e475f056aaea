package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository encapsulates DB operations for the posting engine.
type Repository interface {
	Get(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
	GetBySource(ctx context.Context, module string, sourceID uuid.UUID) (JournalEntry, error)
	List(ctx context.Context) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	GetJournalBySource(ctx context.Context, module string, sourceID uuid.UUID) (JournalEntry, error)
	InsertJournalEntry(ctx context.Context, in Input, totalDebit, totalCredit float64) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) error
	InsertGLEntries(ctx context.Context, entryID int64, in Input) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
	UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error

	// Account operations needed while holding the posting transaction.
	GetAccountForUpdate(ctx context.Context, accountID int64) (coa.Account, error)
	AddToBalance(ctx context.Context, accountID int64, delta float64) error
}

const entryColumns = `id, number, date, source_module, source_id, memo, total_debit, total_credit, status, posted_by, posted_at, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.SourceModule, &e.SourceID, &e.Memo,
		&e.TotalDebit, &e.TotalCredit, &e.Status, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *repository) Get(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		return JournalEntry{}, nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, je_id, account_id, debit, credit, description, created_at FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.Debit, &line.Credit, &line.Description, &line.CreatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

func (r *repository) GetBySource(ctx context.Context, module string, sourceID uuid.UUID) (JournalEntry, error) {
	return scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries e
JOIN source_links l ON l.je_id = e.id WHERE l.module=$1 AND l.ref_id=$2`, module, sourceID))
}

func (r *repository) List(ctx context.Context) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY number DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return mapConcurrency(err)
}

// mapConcurrency folds serialization and lock failures into the typed
// conflict error so callers can retry without parsing SQLSTATEs.
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

func (r *txRepository) GetJournalBySource(ctx context.Context, module string, sourceID uuid.UUID) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries e
JOIN source_links l ON l.je_id = e.id WHERE l.module=$1 AND l.ref_id=$2`, module, sourceID))
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in Input, totalDebit, totalCredit float64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, source_module, source_id, memo, total_debit, total_credit, status, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,'POSTED',$7,NOW()) RETURNING id, number, posted_at, created_at, updated_at`,
		in.Date, in.SourceModule, in.SourceID, in.Memo, toNumeric(totalDebit), toNumeric(totalCredit), nullInt(in.PostedBy))
	entry := JournalEntry{
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		TotalDebit:   totalDebit,
		TotalCredit:  totalCredit,
		Status:       JournalStatusPosted,
		PostedBy:     in.PostedBy,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5)`, entryID, line.AccountID, toNumeric(line.Debit), toNumeric(line.Credit), line.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertGLEntries(ctx context.Context, entryID int64, in Input) error {
	rate := in.ExchangeRate
	if rate == 0 {
		rate = 1
	}
	for _, line := range in.Lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO gl_entries (je_id, account_id, debit, credit, posting_date, voucher_type, voucher_no, currency, exchange_rate)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			entryID, line.AccountID, toNumeric(line.Debit), toNumeric(line.Credit), in.Date, in.VoucherType, in.VoucherNo, in.Currency, rate); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, je_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrSourceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		return JournalEntry{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, je_id, account_id, debit, credit, description, created_at FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.Debit, &line.Credit, &line.Description, &line.CreatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

func (r *txRepository) UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, entryID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

// GetAccountForUpdate locks the account row so concurrent postings to the
// same account serialize on the balance update.
func (r *txRepository) GetAccountForUpdate(ctx context.Context, accountID int64) (coa.Account, error) {
	var a coa.Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, nature, parent_id, level, is_group, balance, currency, is_active, created_at, updated_at
FROM accounts WHERE id=$1 FOR UPDATE`, accountID).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Nature, &a.ParentID, &a.Level, &a.IsGroup, &a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coa.Account{}, shared.ErrAccountNotFound
		}
		return coa.Account{}, err
	}
	return a, nil
}

func (r *txRepository) AddToBalance(ctx context.Context, accountID int64, delta float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at=NOW() WHERE id=$1`, accountID, toNumeric(delta))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

// Helpers
func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
