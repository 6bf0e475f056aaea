package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger/mappings"
	"github.com/meridian-erp/meridian-erp/internal/ledger/posting"
	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// PostingPort is the slice of the posting engine a voucher needs.
type PostingPort interface {
	Post(ctx context.Context, in posting.Input) (posting.JournalEntry, error)
}

// MappingPort resolves default account targets for vouchers that do not
// carry explicit debit/credit accounts.
type MappingPort interface {
	Resolve(ctx context.Context, module, key string) (mappings.AccountMapping, error)
}

// AuditPort records settlement mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service allocates voucher amounts across outstanding invoices.
type Service struct {
	repo     Repository
	posting  PostingPort
	audit    AuditPort
	mappings MappingPort
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, postingSvc PostingPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, posting: postingSvc, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMappings enables account-mapping fallback for vouchers whose debit or
// credit side was left unset by the originating module.
func (s *Service) WithMappings(m MappingPort) {
	s.mappings = m
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) ListAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	return s.repo.ListAllocations(ctx, invoiceID)
}

// Allocate settles a voucher amount against invoices. Explicit targets are
// validated against each invoice's current outstanding balance; without
// targets the engine consumes the party's open invoices oldest first until
// the amount runs out. Any remainder is reported, not written.
func (s *Service) Allocate(ctx context.Context, in AllocateInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if len(in.Explicit) > 0 {
			result, err = s.allocateExplicit(ctx, tx, in)
		} else {
			result, err = s.allocateFIFO(ctx, tx, in)
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, in.ActorID, "settlement.allocate", in.VoucherID, map[string]any{
		"allocations": len(result.Allocations),
		"unapplied":   result.UnappliedAmount,
	})
	return result, nil
}

func (s *Service) allocateExplicit(ctx context.Context, tx TxRepository, in AllocateInput) (Result, error) {
	var result Result
	for _, target := range in.Explicit {
		invoice, err := tx.GetInvoiceForUpdate(ctx, target.InvoiceID)
		if err != nil {
			return Result{}, err
		}
		if target.Amount > invoice.Outstanding+shared.Epsilon {
			return Result{}, fmt.Errorf("%w: invoice %s outstanding %.2f, requested %.2f",
				shared.ErrOverAllocation, invoice.Number, invoice.Outstanding, target.Amount)
		}
		alloc, err := s.writeAllocation(ctx, tx, invoice, in.VoucherID, target.Amount)
		if err != nil {
			return Result{}, err
		}
		result.Allocations = append(result.Allocations, alloc)
	}
	var applied float64
	for _, a := range result.Allocations {
		applied += a.Amount
	}
	result.UnappliedAmount = shared.Round2(in.Amount - applied)
	return result, nil
}

func (s *Service) allocateFIFO(ctx context.Context, tx TxRepository, in AllocateInput) (Result, error) {
	invoices, err := tx.ListOpenInvoicesForUpdate(ctx, in.Party)
	if err != nil {
		return Result{}, err
	}
	var result Result
	remaining := in.Amount
	for _, invoice := range invoices {
		if remaining <= shared.Epsilon {
			break
		}
		portion := invoice.Outstanding
		if portion > remaining {
			portion = remaining
		}
		if portion <= shared.Epsilon {
			continue
		}
		alloc, err := s.writeAllocation(ctx, tx, invoice, in.VoucherID, shared.Round2(portion))
		if err != nil {
			return Result{}, err
		}
		result.Allocations = append(result.Allocations, alloc)
		remaining = shared.Round2(remaining - portion)
	}
	result.UnappliedAmount = shared.Round2(remaining)
	return result, nil
}

// writeAllocation inserts one allocation and recomputes the invoice's paid
// amount, outstanding balance and status inside the same transaction.
func (s *Service) writeAllocation(ctx context.Context, tx TxRepository, invoice Invoice, voucherID int64, amount float64) (Allocation, error) {
	order, err := tx.NextSettlementOrder(ctx, invoice.ID)
	if err != nil {
		return Allocation{}, err
	}
	alloc, err := tx.InsertAllocation(ctx, Allocation{
		InvoiceID:       invoice.ID,
		VoucherID:       voucherID,
		Amount:          amount,
		SettlementOrder: order,
	})
	if err != nil {
		return Allocation{}, err
	}
	if err := s.recomputeInvoice(ctx, tx, invoice); err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

func (s *Service) recomputeInvoice(ctx context.Context, tx TxRepository, invoice Invoice) error {
	paid, err := tx.SumActiveAllocations(ctx, invoice.ID)
	if err != nil {
		return err
	}
	paid = shared.Round2(paid)
	if paid > invoice.Total+shared.Epsilon {
		return fmt.Errorf("%w: invoice %s total %.2f, allocated %.2f",
			shared.ErrOverAllocation, invoice.Number, invoice.Total, paid)
	}
	outstanding := shared.Round2(invoice.Total - paid)
	if outstanding < 0 {
		outstanding = 0
	}
	return tx.UpdateInvoiceSettlement(ctx, invoice.ID, paid, outstanding, DeriveStatus(invoice.Total, paid))
}

// ReverseAllocation flags an allocation as reversed and re-derives the
// invoice's settlement state. The row stays on file.
func (s *Service) ReverseAllocation(ctx context.Context, allocationID, actorID int64, reason string) error {
	if allocationID == 0 {
		return errors.New("settlement: allocation id required")
	}
	var invoiceID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alloc, err := tx.GetAllocationForUpdate(ctx, allocationID)
		if err != nil {
			return err
		}
		if alloc.IsReversed {
			return fmt.Errorf("%w: allocation %d already reversed", shared.ErrInvalidStatus, allocationID)
		}
		invoice, err := tx.GetInvoiceForUpdate(ctx, alloc.InvoiceID)
		if err != nil {
			return err
		}
		if err := tx.MarkAllocationReversed(ctx, allocationID, actorID, reason); err != nil {
			return err
		}
		invoiceID = invoice.ID
		return s.recomputeInvoice(ctx, tx, invoice)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "settlement.reverse", allocationID, map[string]any{
		"invoice_id": invoiceID,
		"reason":     reason,
	})
	return nil
}

// PostVoucher posts a draft voucher's journal entry through the posting
// engine and then settles its amount. The journal posting and the
// allocations commit in separate transactions; the posting side is
// idempotent per voucher, so a crash between the two is recoverable by
// calling PostVoucher again. A failed allocation reverts the voucher to
// DRAFT so the retry path stays open.
func (s *Service) PostVoucher(ctx context.Context, voucherID, actorID int64, explicit []ExplicitAllocation) (Result, error) {
	voucher, err := s.repo.GetVoucher(ctx, voucherID)
	if err != nil {
		return Result{}, err
	}
	if voucher.Status == VoucherStatusCancelled {
		return Result{}, shared.ErrInvalidStatus
	}
	if voucher.Status == VoucherStatusPosted {
		existing, err := s.repo.ListVoucherAllocations(ctx, voucherID)
		if err != nil {
			return Result{}, err
		}
		if len(existing) > 0 {
			var applied float64
			for _, a := range existing {
				if !a.IsReversed {
					applied += a.Amount
				}
			}
			return Result{Allocations: existing, UnappliedAmount: shared.Round2(voucher.Amount - applied)}, nil
		}
	}
	debitID, creditID, err := s.voucherTargets(ctx, voucher)
	if err != nil {
		return Result{}, err
	}
	entry, err := s.posting.Post(ctx, posting.Input{
		Date:         voucher.Date,
		SourceModule: "VOUCHER:" + string(voucher.Kind),
		SourceID:     voucher.SourceID,
		Memo:         fmt.Sprintf("%s %s", voucher.Kind, voucher.Number),
		PostedBy:     actorID,
		VoucherType:  string(voucher.Kind),
		VoucherNo:    voucher.Number,
		Currency:     voucher.Currency,
		Lines: []posting.LineInput{
			{AccountID: debitID, Debit: voucher.Amount},
			{AccountID: creditID, Credit: voucher.Amount},
		},
	})
	if err != nil {
		return Result{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetVoucherForUpdate(ctx, voucherID)
		if err != nil {
			return err
		}
		if current.Status == VoucherStatusPosted {
			return nil
		}
		return tx.UpdateVoucher(ctx, voucherID, VoucherStatusPosted, &entry.ID)
	})
	if err != nil {
		return Result{}, err
	}
	result, err := s.Allocate(ctx, AllocateInput{
		VoucherID: voucherID,
		Amount:    voucher.Amount,
		Party:     voucher.Party,
		Explicit:  explicit,
		ActorID:   actorID,
	})
	if err != nil {
		s.revertVoucher(ctx, voucherID)
		return Result{}, err
	}
	return result, nil
}

// revertVoucher returns a voucher to DRAFT after its allocation failed. The
// journal entry stays on file; a retry re-enters through the idempotent
// posting path and only the allocation runs again.
func (s *Service) revertVoucher(ctx context.Context, voucherID int64) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetVoucherForUpdate(ctx, voucherID)
		if err != nil {
			return err
		}
		if current.Status != VoucherStatusPosted {
			return nil
		}
		return tx.UpdateVoucher(ctx, voucherID, VoucherStatusDraft, nil)
	})
	if err != nil && s.logger != nil {
		s.logger.Error("revert voucher after failed allocation",
			slog.Int64("voucher_id", voucherID), slog.Any("error", err))
	}
}

// voucherTargets fills in unset voucher account sides from the mapping
// table. Receipts debit the configured cash account and credit trade
// receivables; payments mirror that.
func (s *Service) voucherTargets(ctx context.Context, v Voucher) (int64, int64, error) {
	debitID, creditID := v.DebitAccountID, v.CreditAccountID
	if debitID > 0 && creditID > 0 {
		return debitID, creditID, nil
	}
	if s.mappings == nil {
		return 0, 0, shared.ErrInvalidAccount
	}
	resolve := func(module, key string) (int64, error) {
		m, err := s.mappings.Resolve(ctx, module, key)
		if err != nil {
			return 0, err
		}
		return m.AccountID, nil
	}
	var err error
	switch v.Kind {
	case VoucherKindReceipt:
		if debitID == 0 {
			if debitID, err = resolve("RECEIPT", "CASH"); err != nil {
				return 0, 0, err
			}
		}
		if creditID == 0 {
			if creditID, err = resolve("SALES", "TRADE_RECEIVABLE"); err != nil {
				return 0, 0, err
			}
		}
	case VoucherKindPayment:
		if creditID == 0 {
			if creditID, err = resolve("PAYMENT", "CASH"); err != nil {
				return 0, 0, err
			}
		}
		if debitID == 0 {
			if debitID, err = resolve("PURCHASE", "TRADE_PAYABLE"); err != nil {
				return 0, 0, err
			}
		}
	default:
		return 0, 0, shared.ErrInvalidStatus
	}
	return debitID, creditID, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "allocation",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
