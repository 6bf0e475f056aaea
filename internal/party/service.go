package party

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
)

// AccountCreator is the slice of the CoA service the registry needs.
type AccountCreator interface {
	CreateAccount(ctx context.Context, in coa.CreateAccountInput) (coa.Account, error)
	GetByCode(ctx context.Context, code string) (coa.Account, error)
}

// ControlAccounts maps each party type to the group account its subsidiary
// ledger accounts live under.
type ControlAccounts struct {
	Customer string
	Supplier string
	Employee string
}

func (c ControlAccounts) forType(t Type) (string, coa.AccountType, error) {
	switch t {
	case TypeCustomer:
		return c.Customer, coa.AccountTypeAsset, nil
	case TypeSupplier:
		return c.Supplier, coa.AccountTypeLiability, nil
	case TypeEmployee:
		return c.Employee, coa.AccountTypeLiability, nil
	default:
		return "", "", fmt.Errorf("party: unknown type %q", t)
	}
}

// Service resolves parties to their ledger accounts. Account provisioning is
// an explicit step invoked after party creation, not an implicit hook, so
// failures surface to the caller.
type Service struct {
	repo     Repository
	accounts AccountCreator
	control  ControlAccounts
	logger   *slog.Logger
}

func NewService(repo Repository, accounts AccountCreator, control ControlAccounts, logger *slog.Logger) *Service {
	return &Service{repo: repo, accounts: accounts, control: control, logger: logger}
}

func (s *Service) Get(ctx context.Context, ref Ref) (Party, error) {
	return s.repo.Get(ctx, ref)
}

func (s *Service) List(ctx context.Context, t Type) ([]Party, error) {
	return s.repo.List(ctx, t)
}

// EnsureAccount returns the party's ledger account ID, creating the account
// under the configured control parent on first use.
func (s *Service) EnsureAccount(ctx context.Context, ref Ref) (int64, error) {
	if !ref.Valid() {
		return 0, fmt.Errorf("party: invalid reference %s", ref)
	}
	p, err := s.repo.Get(ctx, ref)
	if err != nil {
		return 0, err
	}
	if p.AccountID != nil {
		return *p.AccountID, nil
	}

	parentCode, accountType, err := s.control.forType(ref.Type)
	if err != nil {
		return 0, err
	}
	if parentCode == "" {
		return 0, fmt.Errorf("party: no control account configured for %s", ref.Type)
	}
	account, err := s.accounts.CreateAccount(ctx, coa.CreateAccountInput{
		Code:       fmt.Sprintf("%s.%03d", parentCode, ref.ID),
		Name:       p.Name,
		Type:       accountType,
		ParentCode: parentCode,
	})
	if err != nil {
		return 0, fmt.Errorf("provision account for %s: %w", ref, err)
	}
	if err := s.repo.SetAccount(ctx, ref, account.ID); err != nil {
		return 0, err
	}
	if s.logger != nil {
		s.logger.Info("provisioned party ledger account",
			slog.String("party", ref.String()),
			slog.String("code", account.Code))
	}
	return account.ID, nil
}
