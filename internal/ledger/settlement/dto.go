package settlement

import (
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	"github.com/meridian-erp/meridian-erp/internal/party"
)

// ExplicitAllocation targets one invoice with a caller-chosen amount.
type ExplicitAllocation struct {
	InvoiceID int64
	Amount    float64
}

// AllocateInput drives one settlement run for a posted voucher. When
// Explicit is empty the engine falls back to FIFO over the party's open
// invoices.
type AllocateInput struct {
	VoucherID int64
	Amount    float64
	Party     party.Ref
	Explicit  []ExplicitAllocation
	ActorID   int64
}

// Validate checks the request shape.
func (in AllocateInput) Validate() error {
	if in.VoucherID == 0 {
		return errors.New("settlement: voucher id required")
	}
	if in.Amount <= 0 {
		return errors.New("settlement: amount must be positive")
	}
	if len(in.Explicit) == 0 && !in.Party.Valid() {
		return errors.New("settlement: party required for FIFO allocation")
	}
	var explicitTotal float64
	for idx, target := range in.Explicit {
		if target.InvoiceID == 0 {
			return fmt.Errorf("settlement: target %d missing invoice", idx)
		}
		if target.Amount <= 0 {
			return fmt.Errorf("settlement: target %d amount must be positive", idx)
		}
		explicitTotal += target.Amount
	}
	if len(in.Explicit) > 0 && explicitTotal > in.Amount+shared.Epsilon {
		return fmt.Errorf("settlement: explicit targets exceed voucher amount")
	}
	return nil
}

// Result reports the allocations written and any remainder the caller must
// decide about (on-account credit is out of this engine's hands).
type Result struct {
	Allocations     []Allocation `json:"allocations"`
	UnappliedAmount float64      `json:"unapplied_amount"`
}
