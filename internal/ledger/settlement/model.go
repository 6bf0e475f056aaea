package settlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	"github.com/meridian-erp/meridian-erp/internal/party"
)

// InvoiceStatus is derived from the outstanding amount, never set directly.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
)

// DeriveStatus applies the settlement rule: paid once outstanding drops
// within a cent of zero, partially paid while any allocation exists.
func DeriveStatus(total, paid float64) InvoiceStatus {
	outstanding := total - paid
	switch {
	case outstanding <= shared.Epsilon:
		return InvoiceStatusPaid
	case paid > 0:
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusUnpaid
	}
}

// Invoice is the settlement-side view of an invoice-like document.
type Invoice struct {
	ID          int64         `json:"id"`
	Number      string        `json:"number"`
	Party       party.Ref     `json:"party"`
	Date        time.Time     `json:"date"`
	Currency    string        `json:"currency"`
	Total       float64       `json:"total"`
	PaidAmount  float64       `json:"paid_amount"`
	Outstanding float64       `json:"outstanding"`
	Status      InvoiceStatus `json:"status"`
	JournalID   *int64        `json:"je_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Allocation ties a voucher to an invoice. Reversals never delete history;
// they flag the row and exclude it from the paid amount.
type Allocation struct {
	ID              int64      `json:"id"`
	InvoiceID       int64      `json:"invoice_id"`
	VoucherID       int64      `json:"voucher_id"`
	Amount          float64    `json:"amount"`
	SettlementOrder int        `json:"settlement_order"`
	IsReversed      bool       `json:"is_reversed"`
	ReversedBy      *int64     `json:"reversed_by,omitempty"`
	ReversedAt      *time.Time `json:"reversed_at,omitempty"`
	ReverseReason   string     `json:"reverse_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// VoucherKind distinguishes money-in from money-out.
type VoucherKind string

const (
	VoucherKindReceipt VoucherKind = "RECEIPT"
	VoucherKindPayment VoucherKind = "PAYMENT"
)

// VoucherStatus enumerates voucher lifecycle values.
type VoucherStatus string

const (
	VoucherStatusDraft     VoucherStatus = "DRAFT"
	VoucherStatusPosted    VoucherStatus = "POSTED"
	VoucherStatusCancelled VoucherStatus = "CANCELLED"
)

// Voucher is a receipt or payment document. Its two account sides feed the
// posting engine; its amount feeds the settlement engine.
type Voucher struct {
	ID              int64         `json:"id"`
	Number          string        `json:"number"`
	Kind            VoucherKind   `json:"kind"`
	Party           party.Ref     `json:"party"`
	Date            time.Time     `json:"date"`
	Currency        string        `json:"currency"`
	Amount          float64       `json:"amount"`
	DebitAccountID  int64         `json:"debit_account_id"`
	CreditAccountID int64         `json:"credit_account_id"`
	Status          VoucherStatus `json:"status"`
	SourceID        uuid.UUID     `json:"source_id"`
	JournalID       *int64        `json:"je_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
