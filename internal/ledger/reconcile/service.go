package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// Result compares an account's stored running balance against the balance
// recomputed from its GL rows.
type Result struct {
	AccountID         int64   `json:"account_id"`
	AccountCode       string  `json:"account_code"`
	StoredBalance     float64 `json:"stored_balance"`
	CalculatedBalance float64 `json:"calculated_balance"`
	Difference        float64 `json:"difference"`
	InSync            bool    `json:"in_sync"`
	Repaired          bool    `json:"repaired"`
}

// TrialBalance aggregates leaf balances per nature across the whole ledger.
type TrialBalance struct {
	DebitTotal  float64 `json:"debit_total"`
	CreditTotal float64 `json:"credit_total"`
	Difference  float64 `json:"difference"`
	Balanced    bool    `json:"balanced"`
}

// AuditPort records repair actions.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service recomputes balances from postings and reports drift. It never
// corrects silently: repair happens only on explicit request and is logged
// as a remediation action.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Recalculate derives the account's balance from its GL rows. For a
// debit-nature account that is debits minus credits; for credit nature the
// other way round.
func (s *Service) Recalculate(ctx context.Context, accountID int64, repair bool) (Result, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return Result{}, err
	}
	debit, credit, err := s.repo.SumPostings(ctx, accountID)
	if err != nil {
		return Result{}, err
	}
	calculated := debit - credit
	if account.Nature == coa.NatureCredit {
		calculated = credit - debit
	}
	calculated = shared.Round2(calculated)

	result := Result{
		AccountID:         account.ID,
		AccountCode:       account.Code,
		StoredBalance:     account.Balance,
		CalculatedBalance: calculated,
		Difference:        shared.Round2(account.Balance - calculated),
		InSync:            shared.EqualWithin(account.Balance, calculated),
	}
	if result.InSync || !repair {
		if !result.InSync && s.logger != nil {
			s.logger.Warn("account balance out of sync",
				slog.String("code", account.Code),
				slog.Float64("stored", result.StoredBalance),
				slog.Float64("calculated", result.CalculatedBalance))
		}
		return result, nil
	}

	if err := s.repo.RepairBalance(ctx, accountID, calculated); err != nil {
		return Result{}, err
	}
	result.Repaired = true
	result.StoredBalance = calculated
	result.InSync = true
	if s.logger != nil {
		s.logger.Info("repaired account balance",
			slog.String("code", account.Code),
			slog.Float64("balance", calculated))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			Action:   "reconcile.repair",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", accountID),
			Meta: map[string]any{
				"previous":   account.Balance,
				"calculated": calculated,
			},
			At: s.now(),
		})
	}
	return result, nil
}

// CheckTrialBalance verifies the accounting equation: total debit-nature
// balances equal total credit-nature balances within tolerance.
func (s *Service) CheckTrialBalance(ctx context.Context) (TrialBalance, error) {
	debitTotal, creditTotal, err := s.repo.NatureTotals(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	diff := shared.Round2(debitTotal - creditTotal)
	return TrialBalance{
		DebitTotal:  shared.Round2(debitTotal),
		CreditTotal: shared.Round2(creditTotal),
		Difference:  diff,
		Balanced:    math.Abs(diff) <= shared.Epsilon,
	}, nil
}
