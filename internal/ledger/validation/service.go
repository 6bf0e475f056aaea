package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/ledger/mappings"
	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
)

// Config tunes a validation run.
type Config struct {
	// Required lists the account mappings that must exist. Empty falls back
	// to mappings.DefaultRequired.
	Required []mappings.RequiredKey
	// LinkWarnRate and LinkFailRate grade integration coverage. Rates below
	// fail are critical, below warn are warnings.
	LinkWarnRate float64
	LinkFailRate float64
	// StalenessWindow flags a ledger with no posting activity for this long.
	StalenessWindow time.Duration
	// HistoricalWindow bounds the integrity scans of a default run; runs
	// with ValidateHistorical cover full history.
	HistoricalWindow time.Duration
	// SlowScanBudget is the per-probe budget of the performance module.
	SlowScanBudget time.Duration
	// HistorySize bounds the in-memory report history.
	HistorySize int
}

func (c Config) withDefaults() Config {
	if len(c.Required) == 0 {
		c.Required = mappings.DefaultRequired
	}
	if c.LinkWarnRate <= 0 {
		c.LinkWarnRate = 0.90
	}
	if c.LinkFailRate <= 0 {
		c.LinkFailRate = 0.50
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = 90 * 24 * time.Hour
	}
	if c.HistoricalWindow <= 0 {
		c.HistoricalWindow = 365 * 24 * time.Hour
	}
	if c.SlowScanBudget <= 0 {
		c.SlowScanBudget = 500 * time.Millisecond
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 20
	}
	return c
}

// Service orchestrates the check modules. One run reads the ledger through a
// single snapshot so every module judges the same state; a broken module
// scores zero but never takes the run down with it.
type Service struct {
	repo    Repository
	store   ReportStore
	history *History
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
	newID   func() uuid.UUID
}

func NewService(repo Repository, store ReportStore, logger *slog.Logger, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		repo:    repo,
		store:   store,
		history: NewHistory(cfg.HistorySize),
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		newID:   uuid.New,
	}
}

// RunOptions widens or narrows one validation run.
type RunOptions struct {
	// IncludePerformance adds the scan-timing module.
	IncludePerformance bool
	// ValidateHistorical scans full journal history instead of the
	// configured historical window.
	ValidateHistorical bool
}

type namedCheck struct {
	module string
	fn     checkFn
}

func (s *Service) checks(opts RunOptions) []namedCheck {
	var since time.Time
	if !opts.ValidateHistorical {
		since = s.now().Add(-s.cfg.HistoricalWindow)
	}
	fns := []namedCheck{
		{"account_mappings", checkAccountMappings(s.cfg.Required)},
		{"chart_of_accounts", checkChartOfAccounts},
		{"data_integrity", checkDataIntegrity(since)},
		{"trial_balance", checkTrialBalance},
		{"integration", checkIntegration(s.cfg.LinkWarnRate, s.cfg.LinkFailRate, s.cfg.StalenessWindow, s.now)},
	}
	if opts.IncludePerformance {
		fns = append(fns, namedCheck{"performance", checkPerformance(s.cfg.SlowScanBudget, s.now)})
	}
	return fns
}

// Run executes a default validation run.
func (s *Service) Run(ctx context.Context) (Report, error) {
	return s.RunWith(ctx, RunOptions{})
}

// RunWith executes every check module and returns the aggregated report.
func (s *Service) RunWith(ctx context.Context, opts RunOptions) (Report, error) {
	runID := s.newID()
	startedAt := s.now()

	var modules []ModuleResult
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
		for _, check := range s.checks(opts) {
			if err := ctx.Err(); err != nil {
				return err
			}
			modules = append(modules, runCheck(ctx, r, check.module, check.fn))
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("validation run: %w", err)
	}

	report := aggregate(runID, startedAt, s.now(), modules)
	s.history.Add(report)
	if s.store != nil {
		if err := s.store.Save(ctx, report); err != nil && s.logger != nil {
			s.logger.Error("store validation report", slog.Any("error", err), slog.String("run_id", runID.String()))
		}
	}
	if s.logger != nil {
		s.logger.Info("validation run finished",
			slog.String("run_id", runID.String()),
			slog.Float64("percent", report.Percent),
			slog.String("band", string(report.Band)),
			slog.Int("issues", len(report.Issues)))
	}
	return report, nil
}

// runCheck isolates one module: a panic inside a check becomes an error
// result attributed to that module instead of crashing the run.
func runCheck(ctx context.Context, r Reader, module string, check checkFn) (result ModuleResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = errorResult(module, fmt.Errorf("panic: %v", rec))
		}
	}()
	return check(ctx, r)
}

// History returns stored reports newest first.
func (s *Service) History() []Report {
	return s.history.List()
}

// Latest returns the newest in-memory report, falling back to the store.
func (s *Service) Latest(ctx context.Context) (Report, error) {
	if report, ok := s.history.Latest(); ok {
		return report, nil
	}
	if s.store != nil {
		return s.store.Latest(ctx)
	}
	return Report{}, ErrNoReport
}

// QuickHealthCheck runs the cheap probes concurrently. It answers "is the
// ledger consistent right now" without the scoring machinery.
func (s *Service) QuickHealthCheck(ctx context.Context) (HealthSummary, error) {
	var (
		trialBalanceIssue string
		unbalancedCount   int
		missingMappings   int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.repo.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
			debit, credit, err := r.NatureTotals(ctx)
			if err != nil {
				return err
			}
			if !shared.EqualWithin(debit, credit) {
				trialBalanceIssue = fmt.Sprintf("trial balance off by %.2f", shared.Round2(debit-credit))
			}
			return nil
		})
	})
	g.Go(func() error {
		return s.repo.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
			unbalanced, err := r.UnbalancedJournals(ctx, time.Time{})
			if err != nil {
				return err
			}
			unbalancedCount = len(unbalanced)
			return nil
		})
	})
	g.Go(func() error {
		return s.repo.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
			mapped, err := r.ListMappings(ctx)
			if err != nil {
				return err
			}
			have := make(map[mappings.RequiredKey]bool, len(mapped))
			for _, m := range mapped {
				have[mappings.RequiredKey{Module: m.Module, Key: m.Key}] = true
			}
			for _, req := range s.cfg.Required {
				if !have[req] {
					missingMappings++
				}
			}
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return HealthSummary{}, err
	}

	var issues []string
	if trialBalanceIssue != "" {
		issues = append(issues, trialBalanceIssue)
	}
	if unbalancedCount > 0 {
		issues = append(issues, fmt.Sprintf("%d unbalanced posted journals", unbalancedCount))
	}
	if missingMappings > 0 {
		issues = append(issues, fmt.Sprintf("%d required account mappings missing", missingMappings))
	}
	return HealthSummary{Healthy: len(issues) == 0, Issues: issues}, nil
}
