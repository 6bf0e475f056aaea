package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/mappings"
)

type fakeReader struct {
	accounts   []coa.Account
	mapped     []mappings.AccountMapping
	unbalanced []JournalImbalance
	mismatches []MirrorMismatch
	duplicates []DuplicateLink
	debitTotal float64
	creditTot  float64
	invoices   LinkStats
	parties    LinkStats
	lastPosted time.Time

	accountsErr error
}

func (f *fakeReader) ListAccounts(ctx context.Context) ([]coa.Account, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return f.accounts, nil
}

func (f *fakeReader) ListMappings(ctx context.Context) ([]mappings.AccountMapping, error) {
	return f.mapped, nil
}

func (f *fakeReader) UnbalancedJournals(ctx context.Context, since time.Time) ([]JournalImbalance, error) {
	return f.unbalanced, nil
}

func (f *fakeReader) MirrorMismatches(ctx context.Context, since time.Time) ([]MirrorMismatch, error) {
	return f.mismatches, nil
}

func (f *fakeReader) DuplicateInvoiceLinks(ctx context.Context) ([]DuplicateLink, error) {
	return f.duplicates, nil
}

func (f *fakeReader) NatureTotals(ctx context.Context) (float64, float64, error) {
	return f.debitTotal, f.creditTot, nil
}

func (f *fakeReader) InvoiceLinkStats(ctx context.Context) (LinkStats, error) {
	return f.invoices, nil
}

func (f *fakeReader) PartyLinkStats(ctx context.Context) (LinkStats, error) {
	return f.parties, nil
}

func (f *fakeReader) LatestPostingDate(ctx context.Context) (time.Time, error) {
	return f.lastPosted, nil
}

type fakeSnapshot struct {
	reader *fakeReader
}

func (f *fakeSnapshot) WithSnapshot(ctx context.Context, fn func(ctx context.Context, r Reader) error) error {
	return fn(ctx, f.reader)
}

var testRequired = []mappings.RequiredKey{
	{Module: "SALES", Key: "TRADE_RECEIVABLE"},
	{Module: "RECEIPT", Key: "CASH"},
}

func healthyReader() *fakeReader {
	parent := int64(1)
	return &fakeReader{
		accounts: []coa.Account{
			{ID: 1, Code: "1", Type: coa.AccountTypeAsset, Nature: coa.NatureDebit, Level: 1, IsGroup: true, IsActive: true, Balance: 0},
			{ID: 2, Code: "1.1", Type: coa.AccountTypeAsset, Nature: coa.NatureDebit, ParentID: &parent, Level: 2, IsActive: true, Balance: 500},
			{ID: 3, Code: "4", Type: coa.AccountTypeRevenue, Nature: coa.NatureCredit, Level: 1, IsActive: true, Balance: 500},
		},
		mapped: []mappings.AccountMapping{
			{Module: "SALES", Key: "TRADE_RECEIVABLE", Role: mappings.RoleDebit, AccountID: 2},
			{Module: "RECEIPT", Key: "CASH", Role: mappings.RoleDebit, AccountID: 2},
		},
		debitTotal: 500,
		creditTot:  500,
		invoices:   LinkStats{Total: 10, Linked: 10},
		parties:    LinkStats{Total: 4, Linked: 4},
	}
}

func newTestService(reader *fakeReader) *Service {
	return NewService(&fakeSnapshot{reader: reader}, nil, nil, Config{Required: testRequired})
}

func TestRunHealthyLedgerScoresFull(t *testing.T) {
	svc := newTestService(healthyReader())

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Modules, 5)
	for _, m := range report.Modules {
		require.Equal(t, StatusPassed, m.Status, m.Module)
		require.Equal(t, m.MaxScore, m.Score, m.Module)
	}
	require.Equal(t, 100.0, report.Percent)
	require.Equal(t, BandExcellent, report.Band)
	require.True(t, report.Healthy())
	require.Empty(t, report.Issues)
}

func TestRunWithPerformanceModule(t *testing.T) {
	svc := newTestService(healthyReader())

	report, err := svc.RunWith(context.Background(), RunOptions{
		IncludePerformance: true,
		ValidateHistorical: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Modules, 6)
	require.Equal(t, "performance", report.Modules[5].Module)
	require.Equal(t, StatusPassed, report.Modules[5].Status)
	require.Equal(t, 100.0, report.Percent)
}

func TestRunFlagsDefects(t *testing.T) {
	reader := healthyReader()
	reader.unbalanced = []JournalImbalance{{JournalID: 7, Number: 7, TotalDebit: 100, TotalCredit: 90, LineDebit: 100, LineCredit: 90}}
	reader.mapped = reader.mapped[:1]
	reader.creditTot = 490
	svc := newTestService(reader)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Healthy())
	require.Less(t, report.Percent, 100.0)

	byModule := make(map[string]ModuleResult)
	for _, m := range report.Modules {
		byModule[m.Module] = m
	}
	require.Equal(t, StatusFailed, byModule["data_integrity"].Status)
	require.Equal(t, StatusFailed, byModule["account_mappings"].Status)
	require.Equal(t, StatusFailed, byModule["trial_balance"].Status)
	require.Equal(t, StatusPassed, byModule["chart_of_accounts"].Status)
	require.NotEmpty(t, report.Recommendations)
}

func TestDataIntegrityFlagsHeaderDrift(t *testing.T) {
	check := checkDataIntegrity(time.Time{})
	result := check(context.Background(), &fakeReader{
		unbalanced: []JournalImbalance{
			{JournalID: 3, Number: 1003, TotalDebit: 150, TotalCredit: 150, LineDebit: 100, LineCredit: 100},
		},
	})
	require.Equal(t, StatusFailed, result.Status)
	require.Contains(t, result.Issues[0].Message, "header totals")
	require.Contains(t, result.Issues[0].Message, "1,003")
}

func TestDataIntegrityFlagsDuplicateInvoiceLinks(t *testing.T) {
	check := checkDataIntegrity(time.Time{})
	result := check(context.Background(), &fakeReader{
		duplicates: []DuplicateLink{{InvoiceNumber: "INV-0042", JournalCount: 2}},
	})
	require.Equal(t, StatusFailed, result.Status)
	require.Contains(t, result.Issues[0].Message, "INV-0042")
	require.Contains(t, result.Issues[0].Message, "2 journal entries")
}

func TestRunScoringIsDeterministic(t *testing.T) {
	reader := healthyReader()
	reader.invoices = LinkStats{Total: 100, Linked: 90}
	svc := newTestService(reader)

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	second, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, first.Score, second.Score)
	require.Equal(t, first.Percent, second.Percent)
	require.Equal(t, first.Band, second.Band)
	require.NotEqual(t, first.RunID, second.RunID)
}

func TestIntegrationThresholds(t *testing.T) {
	check := checkIntegration(0.95, 0.80, 90*24*time.Hour, time.Now)

	warn := check(context.Background(), &fakeReader{
		invoices: LinkStats{Total: 100, Linked: 90},
		parties:  LinkStats{Total: 10, Linked: 10},
	})
	require.Equal(t, StatusWarning, warn.Status)

	fail := check(context.Background(), &fakeReader{
		invoices: LinkStats{Total: 100, Linked: 50},
		parties:  LinkStats{Total: 10, Linked: 10},
	})
	require.Equal(t, StatusFailed, fail.Status)

	empty := check(context.Background(), &fakeReader{})
	require.Equal(t, StatusPassed, empty.Status)
}

func TestIntegrationStaleness(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	check := checkIntegration(0.95, 0.80, 90*24*time.Hour, now)

	stale := check(context.Background(), &fakeReader{
		invoices:   LinkStats{Total: 10, Linked: 10},
		parties:    LinkStats{Total: 4, Linked: 4},
		lastPosted: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, StatusWarning, stale.Status)
	require.Contains(t, stale.Warnings[0], "2024-01-01")

	fresh := check(context.Background(), &fakeReader{
		invoices:   LinkStats{Total: 10, Linked: 10},
		parties:    LinkStats{Total: 4, Linked: 4},
		lastPosted: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, StatusPassed, fresh.Status)
}

func TestChartOfAccountsStructuralChecks(t *testing.T) {
	missing := int64(99)
	leaf := int64(2)
	reader := &fakeReader{accounts: []coa.Account{
		{ID: 1, Code: "1", Type: coa.AccountTypeAsset, Nature: coa.NatureDebit, Level: 1, IsGroup: true, IsActive: true},
		{ID: 2, Code: "1.1", Type: coa.AccountTypeAsset, Nature: coa.NatureCredit, ParentID: &missing, Level: 2, IsActive: true},
		{ID: 3, Code: "1.2", Type: coa.AccountTypeAsset, Nature: coa.NatureDebit, ParentID: &leaf, Level: 3, IsActive: true},
	}}

	result := checkChartOfAccounts(context.Background(), reader)
	require.Equal(t, StatusFailed, result.Status)

	var messages []string
	for _, issue := range result.Issues {
		messages = append(messages, issue.Message)
	}
	require.Contains(t, messages, "account 1.1 stores nature CREDIT but its type ASSET implies DEBIT")
	require.Contains(t, messages, "account 1.1 references missing parent 99")
	require.Contains(t, messages, "account 1.2 is parented to leaf account 1.1")
}

func TestCheckErrorScoresZeroWithoutAborting(t *testing.T) {
	reader := healthyReader()
	reader.accountsErr = errors.New("connection reset")
	svc := newTestService(reader)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Modules, 5)

	byModule := make(map[string]ModuleResult)
	for _, m := range report.Modules {
		byModule[m.Module] = m
	}
	require.Equal(t, StatusError, byModule["account_mappings"].Status)
	require.Zero(t, byModule["account_mappings"].Score)
	require.Equal(t, StatusError, byModule["chart_of_accounts"].Status)
	// Checks that do not touch accounts still run.
	require.Equal(t, StatusPassed, byModule["trial_balance"].Status)
}

func TestRunCheckRecoversPanic(t *testing.T) {
	result := runCheck(context.Background(), &fakeReader{}, "trial_balance", func(ctx context.Context, r Reader) ModuleResult {
		panic("boom")
	})
	require.Equal(t, StatusError, result.Status)
	require.Equal(t, "trial_balance", result.Module)
	require.Zero(t, result.Score)
	require.Contains(t, result.Error, "boom")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	svc := newTestService(healthyReader())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQuickHealthCheck(t *testing.T) {
	svc := newTestService(healthyReader())
	summary, err := svc.QuickHealthCheck(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Healthy)
	require.Empty(t, summary.Issues)

	reader := healthyReader()
	reader.creditTot = 450
	reader.mapped = nil
	svc = newTestService(reader)
	summary, err = svc.QuickHealthCheck(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Healthy)
	require.Len(t, summary.Issues, 2)
}

func TestHistoryKeepsBoundedNewestFirst(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(Report{Score: float64(i)})
	}
	list := h.List()
	require.Len(t, list, 3)
	require.Equal(t, 4.0, list[0].Score)
	require.Equal(t, 2.0, list[2].Score)

	latest, ok := h.Latest()
	require.True(t, ok)
	require.Equal(t, 4.0, latest.Score)
}

func TestServiceHistoryAndLatest(t *testing.T) {
	svc := newTestService(healthyReader())
	_, err := svc.Latest(context.Background())
	require.ErrorIs(t, err, ErrNoReport)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, report.RunID, latest.RunID)
	require.Len(t, svc.History(), 1)
}

func TestBandFor(t *testing.T) {
	require.Equal(t, BandExcellent, BandFor(90))
	require.Equal(t, BandGood, BandFor(75))
	require.Equal(t, BandFair, BandFor(60))
	require.Equal(t, BandPoor, BandFor(40))
	require.Equal(t, BandCritical, BandFor(39.9))
}

func TestAggregateDuration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	report := aggregate([16]byte{1}, start, start.Add(2*time.Second), []ModuleResult{
		{Module: "a", Status: StatusPassed, Score: 20, MaxScore: 20},
		{Module: "b", Status: StatusFailed, Score: 10, MaxScore: 20},
	})
	require.Equal(t, 2*time.Second, report.Duration)
	require.Equal(t, 75.0, report.Percent)
	require.Equal(t, BandGood, report.Band)
}
