package mappings

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
)

// Provider resolves document categories to their default debit/credit
// account pairs. The posting engine itself stays mapping-agnostic; callers
// use the provider to build posting lines before handing them over.
type Provider struct {
	repo Repository
}

func NewProvider(repo Repository) *Provider {
	return &Provider{repo: repo}
}

// Resolve returns the mapping for one module/key pair.
func (p *Provider) Resolve(ctx context.Context, module, key string) (AccountMapping, error) {
	return p.repo.Get(ctx, module, key)
}

// ResolveModule returns every mapped account for a document category.
func (p *Provider) ResolveModule(ctx context.Context, module string) ([]AccountMapping, error) {
	out, err := p.repo.ListByModule(ctx, module)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("module %s: %w", module, shared.ErrMappingNotFound)
	}
	return out, nil
}

// Missing reports which of the required mappings are absent.
func (p *Provider) Missing(ctx context.Context, required []RequiredKey) ([]RequiredKey, error) {
	var missing []RequiredKey
	for _, req := range required {
		if _, err := p.repo.Get(ctx, req.Module, req.Key); err != nil {
			if errors.Is(err, shared.ErrMappingNotFound) {
				missing = append(missing, req)
				continue
			}
			return nil, err
		}
	}
	return missing, nil
}
