package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records ledger mutations in the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the posting engine. It turns a validated business document into
// a balanced journal entry with mirrored GL lines and applies the effect to
// account balances, all inside one transaction.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context) ([]JournalEntry, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	return s.repo.Get(ctx, entryID)
}

// Post creates the journal entry for a source document. Posting is
// idempotent per (source module, source id): a second call returns the entry
// created by the first instead of duplicating it.
func (s *Service) Post(ctx context.Context, in Input) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if existing, err := s.repo.GetBySource(ctx, in.SourceModule, in.SourceID); err == nil {
		return existing, nil
	} else if !errors.Is(err, shared.ErrJournalNotFound) {
		return JournalEntry{}, err
	}

	totalDebit, totalCredit := in.Totals()
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Re-check under the transaction; a concurrent poster may have won.
		if existing, err := tx.GetJournalBySource(ctx, in.SourceModule, in.SourceID); err == nil {
			entry = existing
			return nil
		} else if !errors.Is(err, shared.ErrJournalNotFound) {
			return err
		}

		if err := s.applyBalances(ctx, tx, in.Lines, 1); err != nil {
			return err
		}

		inserted, err := tx.InsertJournalEntry(ctx, in, totalDebit, totalCredit)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, in.Lines); err != nil {
			return err
		}
		if err := tx.InsertGLEntries(ctx, inserted.ID, in); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, in.SourceModule, in.SourceID, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, in.Lines, s.now())
		entry = inserted
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrSourceConflict) {
			// Lost the race after our pre-check; the winner's entry is the answer.
			return s.repo.GetBySource(ctx, in.SourceModule, in.SourceID)
		}
		return JournalEntry{}, err
	}
	s.record(ctx, in.PostedBy, "journal.post", entry.ID, map[string]any{
		"number":        entry.Number,
		"source_module": in.SourceModule,
		"source_id":     in.SourceID.String(),
		"total":         entry.TotalDebit,
	})
	return entry, nil
}

// Cancel voids a posted entry and backs its effect out of account balances.
// The entry and its GL rows remain on file; only the status changes.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.GetJournalWithLines(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if current.Status != JournalStatusPosted {
			return shared.ErrInvalidStatus
		}
		inputs := make([]LineInput, 0, len(lines))
		for _, line := range lines {
			inputs = append(inputs, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
		}
		if err := s.applyBalances(ctx, tx, inputs, -1); err != nil {
			return err
		}
		if err := tx.UpdateJournalStatus(ctx, current.ID, JournalStatusCancelled); err != nil {
			return err
		}
		entry = current
		entry.Status = JournalStatusCancelled
		entry.Lines = lines
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.cancel", entry.ID, map[string]any{"reason": in.Reason})
	return entry, nil
}

// applyBalances locks each target account and moves its running balance by
// the line delta, signed by the account's nature. Accounts are locked in ID
// order so two concurrent postings cannot deadlock on each other.
func (s *Service) applyBalances(ctx context.Context, tx TxRepository, lines []LineInput, sign float64) error {
	deltas := make(map[int64]float64, len(lines))
	order := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, seen := deltas[line.AccountID]; !seen {
			order = append(order, line.AccountID)
		}
		deltas[line.AccountID] += line.Debit - line.Credit
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, accountID := range order {
		account, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return fmt.Errorf("account %d: %w", accountID, err)
		}
		if !account.IsActive {
			return fmt.Errorf("%w: account %s is inactive", shared.ErrInvalidAccount, account.Code)
		}
		if account.IsGroup {
			return fmt.Errorf("%w: account %s is a group account", shared.ErrInvalidAccount, account.Code)
		}
		delta := deltas[accountID]
		if account.Nature == coa.NatureCredit {
			delta = -delta
		}
		if err := tx.AddToBalance(ctx, accountID, shared.Round2(sign*delta)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func toJournalLines(entryID int64, lines []LineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID:   entryID,
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			CreatedAt:   ts,
		})
	}
	return out
}
