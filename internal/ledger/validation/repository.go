package validation

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/mappings"
)

// JournalImbalance is a posted journal entry whose line totals disagree with
// each other or with the stored header totals.
type JournalImbalance struct {
	JournalID   int64
	Number      int64
	TotalDebit  float64
	TotalCredit float64
	LineDebit   float64
	LineCredit  float64
}

// MirrorMismatch is a posted journal entry whose GL rows do not sum to the
// same totals as its lines.
type MirrorMismatch struct {
	JournalID  int64
	Number     int64
	LineDebit  float64
	LineCredit float64
	GLDebit    float64
	GLCredit   float64
}

// DuplicateLink is an invoice that is linked to more than one journal entry.
type DuplicateLink struct {
	InvoiceNumber string
	JournalCount  int64
}

// LinkStats counts how many records of a kind carry their ledger link.
type LinkStats struct {
	Total  int64
	Linked int64
}

// Rate returns the linked fraction, or 1 when there is nothing to link.
func (s LinkStats) Rate() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Linked) / float64(s.Total)
}

// Reader is the read surface the check modules run against. All methods of
// one run observe the same snapshot.
type Reader interface {
	ListAccounts(ctx context.Context) ([]coa.Account, error)
	ListMappings(ctx context.Context) ([]mappings.AccountMapping, error)
	UnbalancedJournals(ctx context.Context, since time.Time) ([]JournalImbalance, error)
	MirrorMismatches(ctx context.Context, since time.Time) ([]MirrorMismatch, error)
	DuplicateInvoiceLinks(ctx context.Context) ([]DuplicateLink, error)
	NatureTotals(ctx context.Context) (debitTotal, creditTotal float64, err error)
	InvoiceLinkStats(ctx context.Context) (LinkStats, error)
	PartyLinkStats(ctx context.Context) (LinkStats, error)
	LatestPostingDate(ctx context.Context) (time.Time, error)
}

// Repository opens consistent read snapshots for validation runs.
type Repository interface {
	WithSnapshot(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// WithSnapshot runs fn inside a read-only repeatable-read transaction so
// every check sees the ledger at one point in time.
func (r *repository) WithSnapshot(ctx context.Context, fn func(ctx context.Context, rd Reader) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &reader{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type reader struct {
	tx pgx.Tx
}

func (r *reader) ListAccounts(ctx context.Context) ([]coa.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, type, nature, parent_id, level, is_group, balance, currency, is_active, created_at, updated_at
FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coa.Account
	for rows.Next() {
		var a coa.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Nature, &a.ParentID, &a.Level, &a.IsGroup, &a.Balance, &a.Currency, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *reader) ListMappings(ctx context.Context) ([]mappings.AccountMapping, error) {
	rows, err := r.tx.Query(ctx, `SELECT module, mapping_key, role, account_id FROM account_mappings ORDER BY module, mapping_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []mappings.AccountMapping
	for rows.Next() {
		var m mappings.AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.Role, &m.AccountID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *reader) UnbalancedJournals(ctx context.Context, since time.Time) ([]JournalImbalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.number, e.total_debit, e.total_credit, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries e JOIN journal_lines l ON l.je_id = e.id
WHERE e.status='POSTED' AND e.date >= $1
GROUP BY e.id, e.number, e.total_debit, e.total_credit
HAVING ABS(COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)) > 0.01
    OR ABS(e.total_debit - COALESCE(SUM(l.debit), 0)) > 0.01
    OR ABS(e.total_credit - COALESCE(SUM(l.credit), 0)) > 0.01
ORDER BY e.id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalImbalance
	for rows.Next() {
		var j JournalImbalance
		if err := rows.Scan(&j.JournalID, &j.Number, &j.TotalDebit, &j.TotalCredit, &j.LineDebit, &j.LineCredit); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *reader) MirrorMismatches(ctx context.Context, since time.Time) ([]MirrorMismatch, error) {
	rows, err := r.tx.Query(ctx, `WITH lines AS (
	SELECT je_id, COALESCE(SUM(debit), 0) AS d, COALESCE(SUM(credit), 0) AS c FROM journal_lines GROUP BY je_id
), gl AS (
	SELECT je_id, COALESCE(SUM(debit), 0) AS d, COALESCE(SUM(credit), 0) AS c FROM gl_entries GROUP BY je_id
)
SELECT e.id, e.number, lines.d, lines.c, COALESCE(gl.d, 0), COALESCE(gl.c, 0)
FROM journal_entries e
JOIN lines ON lines.je_id = e.id
LEFT JOIN gl ON gl.je_id = e.id
WHERE e.status='POSTED' AND e.date >= $1
  AND (ABS(lines.d - COALESCE(gl.d, 0)) > 0.01 OR ABS(lines.c - COALESCE(gl.c, 0)) > 0.01)
ORDER BY e.id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MirrorMismatch
	for rows.Next() {
		var m MirrorMismatch
		if err := rows.Scan(&m.JournalID, &m.Number, &m.LineDebit, &m.LineCredit, &m.GLDebit, &m.GLCredit); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *reader) DuplicateInvoiceLinks(ctx context.Context) ([]DuplicateLink, error) {
	// uq_source_links is UNIQUE (module, ref_id), so a duplicate can only
	// arise when two modules posted against the same source document.
	rows, err := r.tx.Query(ctx, `SELECT i.number, COUNT(s.je_id)
FROM invoices i JOIN source_links s ON s.ref_id = i.source_id
GROUP BY i.number HAVING COUNT(s.je_id) > 1 ORDER BY i.number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DuplicateLink
	for rows.Next() {
		var d DuplicateLink
		if err := rows.Scan(&d.InvoiceNumber, &d.JournalCount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *reader) NatureTotals(ctx context.Context) (float64, float64, error) {
	var debitTotal, creditTotal float64
	err := r.tx.QueryRow(ctx, `SELECT
COALESCE(SUM(balance) FILTER (WHERE nature='DEBIT'), 0),
COALESCE(SUM(balance) FILTER (WHERE nature='CREDIT'), 0)
FROM accounts WHERE is_group=FALSE`).Scan(&debitTotal, &creditTotal)
	return debitTotal, creditTotal, err
}

func (r *reader) InvoiceLinkStats(ctx context.Context) (LinkStats, error) {
	var s LinkStats
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*), COUNT(je_id) FROM invoices`).Scan(&s.Total, &s.Linked)
	return s, err
}

func (r *reader) PartyLinkStats(ctx context.Context) (LinkStats, error) {
	var s LinkStats
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*), COUNT(account_id) FROM parties`).Scan(&s.Total, &s.Linked)
	return s, err
}

func (r *reader) LatestPostingDate(ctx context.Context) (time.Time, error) {
	var latest *time.Time
	if err := r.tx.QueryRow(ctx, `SELECT MAX(date) FROM journal_entries WHERE status='POSTED'`).Scan(&latest); err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}
