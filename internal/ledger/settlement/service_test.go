package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger/mappings"
	"github.com/meridian-erp/meridian-erp/internal/ledger/posting"
	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	"github.com/meridian-erp/meridian-erp/internal/party"
)

type memoryState struct {
	invoices    map[int64]Invoice
	allocations map[int64]Allocation
	vouchers    map[int64]Voucher
	nextID      int64
}

type memoryRepo struct {
	state *memoryState
}

type memoryTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		invoices:    make(map[int64]Invoice),
		allocations: make(map[int64]Allocation),
		vouchers:    make(map[int64]Voucher),
	}}
}

func (s *memoryState) clone() *memoryState {
	cp := &memoryState{
		invoices:    make(map[int64]Invoice, len(s.invoices)),
		allocations: make(map[int64]Allocation, len(s.allocations)),
		vouchers:    make(map[int64]Voucher, len(s.vouchers)),
		nextID:      s.nextID,
	}
	for k, v := range s.invoices {
		cp.invoices[k] = v
	}
	for k, v := range s.allocations {
		cp.allocations[k] = v
	}
	for k, v := range s.vouchers {
		cp.vouchers[k] = v
	}
	return cp
}

func (r *memoryRepo) addInvoice(inv Invoice) Invoice {
	r.state.nextID++
	inv.ID = r.state.nextID
	if inv.Status == "" {
		inv.Status = InvoiceStatusUnpaid
	}
	inv.Outstanding = inv.Total - inv.PaidAmount
	r.state.invoices[inv.ID] = inv
	return inv
}

func (r *memoryRepo) addVoucher(v Voucher) Voucher {
	r.state.nextID++
	v.ID = r.state.nextID
	if v.Status == "" {
		v.Status = VoucherStatusDraft
	}
	if v.SourceID == uuid.Nil {
		v.SourceID = uuid.New()
	}
	r.state.vouchers[v.ID] = v
	return v
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.state.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrInvoiceNotFound
	}
	return inv, nil
}

func (r *memoryRepo) ListInvoices(ctx context.Context, ref party.Ref) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.state.invoices {
		if inv.Party == ref {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	var out []Allocation
	for _, a := range r.state.allocations {
		if a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListVoucherAllocations(ctx context.Context, voucherID int64) ([]Allocation, error) {
	var out []Allocation
	for _, a := range r.state.allocations {
		if a.VoucherID == voucherID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetVoucher(ctx context.Context, id int64) (Voucher, error) {
	v, ok := r.state.vouchers[id]
	if !ok {
		return Voucher{}, shared.ErrVoucherNotFound
	}
	return v, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	backup := r.state.clone()
	if err := fn(ctx, &memoryTx{state: r.state}); err != nil {
		*r.state = *backup
		return err
	}
	return nil
}

func (t *memoryTx) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := t.state.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *memoryTx) ListOpenInvoicesForUpdate(ctx context.Context, ref party.Ref) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range t.state.invoices {
		if inv.Party == ref && inv.Status != InvoiceStatusPaid {
			out = append(out, inv)
		}
	}
	// Oldest first, ties broken by creation order.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Date.Before(out[i].Date) || (out[j].Date.Equal(out[i].Date) && out[j].ID < out[i].ID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (t *memoryTx) NextSettlementOrder(ctx context.Context, invoiceID int64) (int, error) {
	max := 0
	for _, a := range t.state.allocations {
		if a.InvoiceID == invoiceID && a.SettlementOrder > max {
			max = a.SettlementOrder
		}
	}
	return max + 1, nil
}

func (t *memoryTx) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	t.state.nextID++
	a.ID = t.state.nextID
	a.CreatedAt = time.Now()
	t.state.allocations[a.ID] = a
	return a, nil
}

func (t *memoryTx) SumActiveAllocations(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	for _, a := range t.state.allocations {
		if a.InvoiceID == invoiceID && !a.IsReversed {
			sum += a.Amount
		}
	}
	return sum, nil
}

func (t *memoryTx) UpdateInvoiceSettlement(ctx context.Context, invoiceID int64, paid, outstanding float64, status InvoiceStatus) error {
	inv, ok := t.state.invoices[invoiceID]
	if !ok {
		return shared.ErrInvoiceNotFound
	}
	inv.PaidAmount = paid
	inv.Outstanding = outstanding
	inv.Status = status
	t.state.invoices[invoiceID] = inv
	return nil
}

func (t *memoryTx) GetAllocationForUpdate(ctx context.Context, id int64) (Allocation, error) {
	a, ok := t.state.allocations[id]
	if !ok {
		return Allocation{}, shared.ErrAllocationNotFound
	}
	return a, nil
}

func (t *memoryTx) MarkAllocationReversed(ctx context.Context, id int64, actorID int64, reason string) error {
	a, ok := t.state.allocations[id]
	if !ok || a.IsReversed {
		return shared.ErrAllocationNotFound
	}
	now := time.Now()
	a.IsReversed = true
	a.ReversedBy = &actorID
	a.ReversedAt = &now
	a.ReverseReason = reason
	t.state.allocations[id] = a
	return nil
}

func (t *memoryTx) GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error) {
	v, ok := t.state.vouchers[id]
	if !ok {
		return Voucher{}, shared.ErrVoucherNotFound
	}
	return v, nil
}

func (t *memoryTx) UpdateVoucher(ctx context.Context, id int64, status VoucherStatus, journalID *int64) error {
	v, ok := t.state.vouchers[id]
	if !ok {
		return shared.ErrVoucherNotFound
	}
	v.Status = status
	if journalID != nil {
		v.JournalID = journalID
	}
	t.state.vouchers[id] = v
	return nil
}

type fakePoster struct {
	inputs []posting.Input
	nextID int64
}

func (f *fakePoster) Post(ctx context.Context, in posting.Input) (posting.JournalEntry, error) {
	for i, prev := range f.inputs {
		if prev.SourceModule == in.SourceModule && prev.SourceID == in.SourceID {
			return posting.JournalEntry{ID: int64(i + 1), Status: posting.JournalStatusPosted}, nil
		}
	}
	f.inputs = append(f.inputs, in)
	f.nextID++
	return posting.JournalEntry{ID: f.nextID, Status: posting.JournalStatusPosted}, nil
}

var (
	customer = party.Ref{Type: party.TypeCustomer, ID: 42}
	supplier = party.Ref{Type: party.TypeSupplier, ID: 7}
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAllocateFIFOSettlesOldestFirst(t *testing.T) {
	repo := newMemoryRepo()
	i1 := repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 500})
	i2 := repo.addInvoice(Invoice{Number: "INV-2", Party: customer, Date: date(2024, 1, 15), Total: 800})
	voucher := repo.addVoucher(Voucher{Number: "RCV-1", Kind: VoucherKindReceipt, Party: customer, Amount: 1000})
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Allocate(context.Background(), AllocateInput{VoucherID: voucher.ID, Amount: 1000, Party: customer})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)
	require.Equal(t, 0.0, result.UnappliedAmount)

	first := repo.state.invoices[i1.ID]
	require.Equal(t, InvoiceStatusPaid, first.Status)
	require.Equal(t, 500.0, first.PaidAmount)
	require.Equal(t, 0.0, first.Outstanding)

	second := repo.state.invoices[i2.ID]
	require.Equal(t, InvoiceStatusPartiallyPaid, second.Status)
	require.Equal(t, 500.0, second.PaidAmount)
	require.Equal(t, 300.0, second.Outstanding)

	require.Equal(t, 1, result.Allocations[0].SettlementOrder)
	require.Equal(t, i1.ID, result.Allocations[0].InvoiceID)
	require.Equal(t, i2.ID, result.Allocations[1].InvoiceID)
}

func TestAllocateFIFOReportsUnappliedRemainder(t *testing.T) {
	repo := newMemoryRepo()
	repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 500})
	voucher := repo.addVoucher(Voucher{Number: "RCV-1", Kind: VoucherKindReceipt, Party: customer, Amount: 1200})
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Allocate(context.Background(), AllocateInput{VoucherID: voucher.ID, Amount: 1200, Party: customer})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	require.Equal(t, 700.0, result.UnappliedAmount)
}

func TestAllocateExplicitRejectsOverAllocation(t *testing.T) {
	repo := newMemoryRepo()
	inv := repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 500})
	voucher := repo.addVoucher(Voucher{Number: "RCV-1", Kind: VoucherKindReceipt, Party: customer, Amount: 600})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Allocate(context.Background(), AllocateInput{
		VoucherID: voucher.ID,
		Amount:    600,
		Party:     customer,
		Explicit:  []ExplicitAllocation{{InvoiceID: inv.ID, Amount: 600}},
	})
	require.ErrorIs(t, err, shared.ErrOverAllocation)

	// Rollback: no allocation rows, invoice untouched.
	require.Empty(t, repo.state.allocations)
	require.Equal(t, InvoiceStatusUnpaid, repo.state.invoices[inv.ID].Status)
}

func TestAllocateExplicitPartial(t *testing.T) {
	repo := newMemoryRepo()
	inv := repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 500})
	voucher := repo.addVoucher(Voucher{Number: "RCV-1", Kind: VoucherKindReceipt, Party: customer, Amount: 200})
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Allocate(context.Background(), AllocateInput{
		VoucherID: voucher.ID,
		Amount:    200,
		Party:     customer,
		Explicit:  []ExplicitAllocation{{InvoiceID: inv.ID, Amount: 200}},
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)

	got := repo.state.invoices[inv.ID]
	require.Equal(t, InvoiceStatusPartiallyPaid, got.Status)
	require.Equal(t, 300.0, got.Outstanding)
}

func TestSettlementOrderIsMonotonicPerInvoice(t *testing.T) {
	repo := newMemoryRepo()
	inv := repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 500})
	v1 := repo.addVoucher(Voucher{Number: "RCV-1", Kind: VoucherKindReceipt, Party: customer, Amount: 100})
	v2 := repo.addVoucher(Voucher{Number: "RCV-2", Kind: VoucherKindReceipt, Party: customer, Amount: 150})
	svc := NewService(repo, nil, nil, nil)

	first, err := svc.Allocate(context.Background(), AllocateInput{VoucherID: v1.ID, Amount: 100, Party: customer})
	require.NoError(t, err)
	second, err := svc.Allocate(context.Background(), AllocateInput{VoucherID: v2.ID, Amount: 150, Party: customer})
	require.NoError(t, err)

	require.Equal(t, 1, first.Allocations[0].SettlementOrder)
	require.Equal(t, 2, second.Allocations[0].SettlementOrder)
	require.Equal(t, 250.0, repo.state.invoices[inv.ID].PaidAmount)
}

func TestReverseAllocationReopensInvoice(t *testing.T) {
	repo := newMemoryRepo()
	inv := repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 1000})
	v1 := repo.addVoucher(Voucher{Number: "RCV-1", Kind: VoucherKindReceipt, Party: customer, Amount: 600})
	v2 := repo.addVoucher(Voucher{Number: "RCV-2", Kind: VoucherKindReceipt, Party: customer, Amount: 400})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Allocate(context.Background(), AllocateInput{VoucherID: v1.ID, Amount: 600, Party: customer})
	require.NoError(t, err)
	result, err := svc.Allocate(context.Background(), AllocateInput{VoucherID: v2.ID, Amount: 400, Party: customer})
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPaid, repo.state.invoices[inv.ID].Status)

	err = svc.ReverseAllocation(context.Background(), result.Allocations[0].ID, 9, "bounced cheque")
	require.NoError(t, err)

	got := repo.state.invoices[inv.ID]
	require.Equal(t, InvoiceStatusPartiallyPaid, got.Status)
	require.Equal(t, 600.0, got.PaidAmount)
	require.Equal(t, 400.0, got.Outstanding)

	reversed := repo.state.allocations[result.Allocations[0].ID]
	require.True(t, reversed.IsReversed)
	require.Equal(t, "bounced cheque", reversed.ReverseReason)
	require.NotNil(t, reversed.ReversedAt)

	// Reversal is one-shot.
	err = svc.ReverseAllocation(context.Background(), result.Allocations[0].ID, 9, "again")
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestPostVoucherPostsJournalThenAllocates(t *testing.T) {
	repo := newMemoryRepo()
	inv := repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 300})
	voucher := repo.addVoucher(Voucher{
		Number: "RCV-1", Kind: VoucherKindReceipt, Party: customer,
		Date: date(2024, 2, 1), Currency: "USD", Amount: 300,
		DebitAccountID: 11, CreditAccountID: 12,
	})
	poster := &fakePoster{}
	svc := NewService(repo, poster, nil, nil)

	result, err := svc.PostVoucher(context.Background(), voucher.ID, 5, nil)
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	require.Len(t, poster.inputs, 1)
	require.Equal(t, 300.0, poster.inputs[0].Lines[0].Debit)
	require.Equal(t, VoucherStatusPosted, repo.state.vouchers[voucher.ID].Status)
	require.NotNil(t, repo.state.vouchers[voucher.ID].JournalID)
	require.Equal(t, InvoiceStatusPaid, repo.state.invoices[inv.ID].Status)

	// Second call neither re-posts nor re-allocates.
	again, err := svc.PostVoucher(context.Background(), voucher.ID, 5, nil)
	require.NoError(t, err)
	require.Len(t, poster.inputs, 1)
	require.Len(t, again.Allocations, 1)
	require.Len(t, repo.state.allocations, 1)
}

type fakeMappings struct {
	byKey map[string]int64
}

func (f *fakeMappings) Resolve(ctx context.Context, module, key string) (mappings.AccountMapping, error) {
	id, ok := f.byKey[module+"/"+key]
	if !ok {
		return mappings.AccountMapping{}, shared.ErrMappingNotFound
	}
	return mappings.AccountMapping{Module: module, Key: key, AccountID: id}, nil
}

func TestPostVoucherResolvesTargetsFromMappings(t *testing.T) {
	repo := newMemoryRepo()
	repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 200})
	voucher := repo.addVoucher(Voucher{
		Number: "RCV-2", Kind: VoucherKindReceipt, Party: customer,
		Date: date(2024, 2, 1), Currency: "USD", Amount: 200,
	})
	poster := &fakePoster{}
	svc := NewService(repo, poster, nil, nil)
	svc.WithMappings(&fakeMappings{byKey: map[string]int64{
		"RECEIPT/CASH":           41,
		"SALES/TRADE_RECEIVABLE": 42,
	}})

	_, err := svc.PostVoucher(context.Background(), voucher.ID, 5, nil)
	require.NoError(t, err)
	require.Len(t, poster.inputs, 1)
	require.Equal(t, int64(41), poster.inputs[0].Lines[0].AccountID)
	require.Equal(t, int64(42), poster.inputs[0].Lines[1].AccountID)
}

func TestPostVoucherRevertsToDraftWhenAllocationFails(t *testing.T) {
	repo := newMemoryRepo()
	inv := repo.addInvoice(Invoice{Number: "INV-1", Party: customer, Date: date(2024, 1, 1), Total: 100})
	voucher := repo.addVoucher(Voucher{
		Number: "RCV-3", Kind: VoucherKindReceipt, Party: customer,
		Date: date(2024, 2, 1), Currency: "USD", Amount: 400,
		DebitAccountID: 11, CreditAccountID: 12,
	})
	poster := &fakePoster{}
	svc := NewService(repo, poster, nil, nil)

	_, err := svc.PostVoucher(context.Background(), voucher.ID, 5,
		[]ExplicitAllocation{{InvoiceID: inv.ID, Amount: 400}})
	require.ErrorIs(t, err, shared.ErrOverAllocation)

	// The journal entry stays on file, the voucher drops back to draft, and
	// the invoice is untouched.
	require.Len(t, poster.inputs, 1)
	require.Equal(t, VoucherStatusDraft, repo.state.vouchers[voucher.ID].Status)
	require.NotNil(t, repo.state.vouchers[voucher.ID].JournalID)
	require.Empty(t, repo.state.allocations)
	require.Equal(t, InvoiceStatusUnpaid, repo.state.invoices[inv.ID].Status)

	// Retrying settles without a second journal entry.
	result, err := svc.PostVoucher(context.Background(), voucher.ID, 5,
		[]ExplicitAllocation{{InvoiceID: inv.ID, Amount: 100}})
	require.NoError(t, err)
	require.Len(t, poster.inputs, 1)
	require.Len(t, result.Allocations, 1)
	require.Equal(t, VoucherStatusPosted, repo.state.vouchers[voucher.ID].Status)
	require.Equal(t, InvoiceStatusPaid, repo.state.invoices[inv.ID].Status)
}

func TestPostVoucherWithoutTargetsOrMappings(t *testing.T) {
	repo := newMemoryRepo()
	voucher := repo.addVoucher(Voucher{
		Number: "PAY-1", Kind: VoucherKindPayment, Party: supplier,
		Date: date(2024, 2, 1), Currency: "USD", Amount: 50,
	})
	svc := NewService(repo, &fakePoster{}, nil, nil)

	_, err := svc.PostVoucher(context.Background(), voucher.ID, 5, nil)
	require.ErrorIs(t, err, shared.ErrInvalidAccount)
}

func TestAllocateValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	_, err := svc.Allocate(context.Background(), AllocateInput{VoucherID: 1, Amount: 0, Party: customer})
	require.Error(t, err)
	_, err = svc.Allocate(context.Background(), AllocateInput{VoucherID: 1, Amount: 50})
	require.Error(t, err)
}
