package posting

import (
	"time"

	"github.com/google/uuid"
)

// JournalStatus enumerates journal lifecycle values. Transitions are one-way:
// DRAFT -> POSTED -> CANCELLED.
type JournalStatus string

const (
	JournalStatusDraft     JournalStatus = "DRAFT"
	JournalStatusPosted    JournalStatus = "POSTED"
	JournalStatusCancelled JournalStatus = "CANCELLED"
)

// JournalEntry captures posting metadata. TotalDebit and TotalCredit are
// equal within a cent for every non-draft entry.
type JournalEntry struct {
	ID           int64         `json:"id"`
	Number       int64         `json:"number"`
	Date         time.Time     `json:"date"`
	SourceModule string        `json:"source_module"`
	SourceID     uuid.UUID     `json:"source_id"`
	Memo         string        `json:"memo,omitempty"`
	TotalDebit   float64       `json:"total_debit"`
	TotalCredit  float64       `json:"total_credit"`
	Status       JournalStatus `json:"status"`
	PostedBy     int64         `json:"posted_by"`
	PostedAt     *time.Time    `json:"posted_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Lines        []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores a debit or credit amount for an account. Exactly one of
// Debit/Credit is non-zero.
type JournalLine struct {
	ID          int64     `json:"id"`
	JournalID   int64     `json:"je_id"`
	AccountID   int64     `json:"account_id"`
	Debit       float64   `json:"debit"`
	Credit      float64   `json:"credit"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GLEntry is the per-account general-ledger row mirroring a journal line.
type GLEntry struct {
	ID           int64     `json:"id"`
	JournalID    int64     `json:"je_id"`
	AccountID    int64     `json:"account_id"`
	Debit        float64   `json:"debit"`
	Credit       float64   `json:"credit"`
	PostingDate  time.Time `json:"posting_date"`
	VoucherType  string    `json:"voucher_type,omitempty"`
	VoucherNo    string    `json:"voucher_no,omitempty"`
	Currency     string    `json:"currency"`
	ExchangeRate float64   `json:"exchange_rate"`
	CreatedAt    time.Time `json:"created_at"`
}
