package posting

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
)

// LineInput describes a journal line for a posting request. The account pair
// behind each line comes from the account-mapping provider; the engine only
// enforces the double-entry invariant.
type LineInput struct {
	AccountID   int64
	Debit       float64
	Credit      float64
	Description string
}

// Input groups fields required to post a journal entry.
type Input struct {
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	VoucherType  string
	VoucherNo    string
	Currency     string
	ExchangeRate float64
	Lines        []LineInput
}

// Validate ensures posting input meets the double-entry preconditions.
func (in Input) Validate() error {
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: posting date required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("ledger: line %d has no amount", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if !shared.EqualWithin(debit, credit) {
		return shared.ErrUnbalanced
	}
	return nil
}

// Totals returns the rounded debit and credit sums.
func (in Input) Totals() (debit, credit float64) {
	for _, line := range in.Lines {
		debit += line.Debit
		credit += line.Credit
	}
	return shared.Round2(debit), shared.Round2(credit)
}

// CancelInput wraps parameters for cancelling a posted entry.
type CancelInput struct {
	EntryID int64
	ActorID int64
	Reason  string
}
