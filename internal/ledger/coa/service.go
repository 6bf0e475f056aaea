package coa

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
)

var codeSegment = regexp.MustCompile(`^[0-9]+$`)

// CreateAccountInput groups fields required to create an account.
type CreateAccountInput struct {
	Code       string
	Name       string
	Type       AccountType
	ParentCode string
	Currency   string
	IsGroup    bool
}

// Validate checks the input shape before touching storage.
func (in CreateAccountInput) Validate() error {
	if in.Code == "" {
		return fmt.Errorf("ledger: account code required")
	}
	for _, seg := range strings.Split(in.Code, ".") {
		if !codeSegment.MatchString(seg) {
			return fmt.Errorf("ledger: malformed account code %q", in.Code)
		}
	}
	if in.Name == "" {
		return fmt.Errorf("ledger: account name required")
	}
	if _, ok := NatureForType(in.Type); !ok {
		return fmt.Errorf("ledger: unknown account type %q", in.Type)
	}
	return nil
}

// Service implements chart-of-accounts business rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// CreateAccount inserts a new account under an optional parent. A leaf parent
// without postings is auto-promoted to a group account; the promotion is
// logged as a warning because it mutates an account the caller did not name.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	nature, _ := NatureForType(in.Type)
	account := Account{
		Code:     in.Code,
		Name:     in.Name,
		Type:     in.Type,
		Nature:   nature,
		Level:    len(strings.Split(in.Code, ".")),
		IsGroup:  in.IsGroup,
		Currency: in.Currency,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.ParentCode != "" {
			parent, err := tx.GetByCodeForUpdate(ctx, in.ParentCode)
			if err != nil {
				return fmt.Errorf("resolve parent %q: %w", in.ParentCode, err)
			}
			if !in.IsGroup && account.Level != parent.Level+1 {
				account.Level = parent.Level + 1
			}
			if !parent.IsGroup {
				children, err := tx.CountChildren(ctx, parent.ID)
				if err != nil {
					return err
				}
				if children > 0 {
					// A non-group parent with children is already a defect;
					// refuse to deepen it.
					return fmt.Errorf("%w: parent %s is not a group account", shared.ErrInvalidAccount, parent.Code)
				}
				posted, err := tx.HasPostings(ctx, parent.ID)
				if err != nil {
					return err
				}
				if posted {
					return fmt.Errorf("%w: parent %s already carries postings", shared.ErrInvalidAccount, parent.Code)
				}
				if err := tx.MarkGroup(ctx, parent.ID); err != nil {
					return err
				}
				if s.logger != nil {
					s.logger.Warn("auto-promoted account to group",
						slog.String("code", parent.Code),
						slog.String("child", in.Code))
				}
			}
			account.ParentID = &parent.ID
		}
		inserted, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		account = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// ResolvePath returns the chain of accounts leading to code, root first,
// ending with the account itself. Every ancestor segment must exist.
func (s *Service) ResolvePath(ctx context.Context, code string) ([]Account, error) {
	segments := strings.Split(code, ".")
	if len(segments) == 0 || code == "" {
		return nil, fmt.Errorf("ledger: empty account code")
	}
	path := make([]Account, 0, len(segments))
	for i := range segments {
		ancestor := strings.Join(segments[:i+1], ".")
		account, err := s.repo.GetByCode(ctx, ancestor)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", ancestor, err)
		}
		path = append(path, account)
	}
	return path, nil
}

// Deactivate retires an account. Accounts with postings are never deleted,
// they only stop accepting new postings.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetActive(ctx, id, false)
	})
}
