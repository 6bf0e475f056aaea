package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit on a journal entry.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrInvalidAccount indicates posting to an inactive or group account.
	ErrInvalidAccount = errors.New("ledger: account not postable")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrCodeExists indicates a duplicate account code.
	ErrCodeExists = errors.New("ledger: account code already exists")
	// ErrNatureMismatch indicates the requested nature conflicts with the account type.
	ErrNatureMismatch = errors.New("ledger: account nature does not match type")
	// ErrJournalNotFound indicates a missing journal entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("ledger: invoice not found")
	// ErrVoucherNotFound indicates a missing receipt/payment voucher.
	ErrVoucherNotFound = errors.New("ledger: voucher not found")
	// ErrAllocationNotFound indicates a missing allocation.
	ErrAllocationNotFound = errors.New("ledger: allocation not found")
	// ErrOverAllocation indicates an allocation exceeds the invoice outstanding amount.
	ErrOverAllocation = errors.New("ledger: allocation exceeds outstanding amount")
	// ErrMappingNotFound indicates an account mapping is missing.
	ErrMappingNotFound = errors.New("ledger: account mapping not found")
	// ErrSourceConflict indicates the source document is already linked to an entry.
	ErrSourceConflict = errors.New("ledger: source already linked")
	// ErrInvalidStatus indicates a forbidden lifecycle transition.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
	// ErrConcurrencyConflict indicates lock contention on a balance update.
	ErrConcurrencyConflict = errors.New("ledger: concurrent update conflict")
)
