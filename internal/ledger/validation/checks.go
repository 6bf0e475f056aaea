package validation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/mappings"
	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
)

const moduleMaxScore = 20.0

const (
	criticalPenalty = 5.0
	warningPenalty  = 2.0
)

// amounts formats money in issue messages with thousand separators.
var amounts = message.NewPrinter(language.English)

type checkFn func(ctx context.Context, r Reader) ModuleResult

// builder accumulates findings for one module and folds them into a scored
// result.
type builder struct {
	result ModuleResult
}

func newBuilder(module string) *builder {
	return &builder{result: ModuleResult{Module: module, MaxScore: moduleMaxScore}}
}

func (b *builder) critical(format string, args ...any) {
	b.result.Issues = append(b.result.Issues, Issue{
		Severity: SeverityCritical,
		Message:  amounts.Sprintf(format, args...),
	})
}

func (b *builder) warning(format string, args ...any) {
	msg := amounts.Sprintf(format, args...)
	b.result.Issues = append(b.result.Issues, Issue{Severity: SeverityWarning, Message: msg})
	b.result.Warnings = append(b.result.Warnings, msg)
}

func (b *builder) recommend(msg string) {
	b.result.Recommendations = append(b.result.Recommendations, msg)
}

func (b *builder) done() ModuleResult {
	score := moduleMaxScore
	status := StatusPassed
	for _, issue := range b.result.Issues {
		switch issue.Severity {
		case SeverityCritical:
			score -= criticalPenalty
			status = StatusFailed
		case SeverityWarning:
			score -= warningPenalty
			if status == StatusPassed {
				status = StatusWarning
			}
		}
	}
	if score < 0 {
		score = 0
	}
	b.result.Score = score
	b.result.Status = status
	return b.result
}

// checkAccountMappings verifies that every required document category is
// mapped and that each mapping points at a postable account.
func checkAccountMappings(required []mappings.RequiredKey) checkFn {
	return func(ctx context.Context, r Reader) ModuleResult {
		b := newBuilder("account_mappings")
		mapped, err := r.ListMappings(ctx)
		if err != nil {
			return errorResult("account_mappings", err)
		}
		accounts, err := r.ListAccounts(ctx)
		if err != nil {
			return errorResult("account_mappings", err)
		}
		byID := make(map[int64]coa.Account, len(accounts))
		for _, a := range accounts {
			byID[a.ID] = a
		}
		have := make(map[mappings.RequiredKey]bool, len(mapped))
		for _, m := range mapped {
			have[mappings.RequiredKey{Module: m.Module, Key: m.Key}] = true
			account, ok := byID[m.AccountID]
			if !ok {
				b.critical("mapping %s/%s points at unknown account %d", m.Module, m.Key, m.AccountID)
				continue
			}
			if !account.Postable() {
				b.critical("mapping %s/%s points at non-postable account %s", m.Module, m.Key, account.Code)
			}
		}
		for _, req := range required {
			if !have[req] {
				b.critical("required mapping %s/%s is not configured", req.Module, req.Key)
			}
		}
		if len(b.result.Issues) > 0 {
			b.recommend("configure the missing account mappings before posting documents for those modules")
		}
		return b.done()
	}
}

// checkChartOfAccounts verifies structural invariants of the account tree:
// unique codes, valid parent links, level consistency, and nature derived
// from type.
func checkChartOfAccounts(ctx context.Context, r Reader) ModuleResult {
	b := newBuilder("chart_of_accounts")
	accounts, err := r.ListAccounts(ctx)
	if err != nil {
		return errorResult("chart_of_accounts", err)
	}
	byID := make(map[int64]coa.Account, len(accounts))
	byCode := make(map[string]int, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
		byCode[a.Code]++
	}
	for code, n := range byCode {
		if n > 1 {
			b.critical("account code %s appears %d times", code, n)
		}
	}
	for _, a := range accounts {
		if nature, ok := coa.NatureForType(a.Type); !ok {
			b.critical("account %s has unknown type %s", a.Code, a.Type)
		} else if nature != a.Nature {
			b.critical("account %s stores nature %s but its type %s implies %s", a.Code, a.Nature, a.Type, nature)
		}
		if a.ParentID == nil {
			if a.Level != 1 {
				b.warning("root account %s has level %d, expected 1", a.Code, a.Level)
			}
			continue
		}
		parent, ok := byID[*a.ParentID]
		if !ok {
			b.critical("account %s references missing parent %d", a.Code, *a.ParentID)
			continue
		}
		if !parent.IsGroup {
			b.critical("account %s is parented to leaf account %s", a.Code, parent.Code)
		}
		if a.Level != parent.Level+1 {
			b.warning("account %s has level %d under parent %s at level %d", a.Code, a.Level, parent.Code, parent.Level)
		}
		if a.IsActive && !parent.IsActive {
			b.warning("active account %s sits under inactive parent %s", a.Code, parent.Code)
		}
	}
	if len(b.result.Issues) > 0 {
		b.recommend("review the chart of accounts hierarchy; structural defects corrupt rollup reporting")
	}
	return b.done()
}

// checkDataIntegrity verifies the posting invariants on stored data: every
// posted journal balances, its GL rows mirror its lines, and no invoice is
// linked to more than one journal entry. A zero since scans full history.
func checkDataIntegrity(since time.Time) checkFn {
	return func(ctx context.Context, r Reader) ModuleResult {
		b := newBuilder("data_integrity")
		unbalanced, err := r.UnbalancedJournals(ctx, since)
		if err != nil {
			return errorResult("data_integrity", err)
		}
		for _, j := range unbalanced {
			if !shared.EqualWithin(j.LineDebit, j.LineCredit) {
				b.critical("journal %d is unbalanced: debit %.2f vs credit %.2f", j.Number, j.LineDebit, j.LineCredit)
				continue
			}
			b.critical("journal %d header totals (%.2f/%.2f) disagree with its line sums (%.2f/%.2f)",
				j.Number, j.TotalDebit, j.TotalCredit, j.LineDebit, j.LineCredit)
		}
		mismatches, err := r.MirrorMismatches(ctx, since)
		if err != nil {
			return errorResult("data_integrity", err)
		}
		for _, m := range mismatches {
			b.critical("journal %d lines (%.2f/%.2f) do not mirror its GL rows (%.2f/%.2f)",
				m.Number, m.LineDebit, m.LineCredit, m.GLDebit, m.GLCredit)
		}
		duplicates, err := r.DuplicateInvoiceLinks(ctx)
		if err != nil {
			return errorResult("data_integrity", err)
		}
		for _, d := range duplicates {
			b.critical("invoice %s is linked to %d journal entries", d.InvoiceNumber, d.JournalCount)
		}
		if len(b.result.Issues) > 0 {
			b.recommend("investigate the flagged journals; balanced double-sided postings are a hard invariant")
		}
		return b.done()
	}
}

// checkPerformance times the heaviest snapshot scans. Slow scans degrade
// every scheduled run, so they surface as warnings before they hurt.
func checkPerformance(slowScan time.Duration, now func() time.Time) checkFn {
	return func(ctx context.Context, r Reader) ModuleResult {
		b := newBuilder("performance")
		probes := []struct {
			name string
			run  func() error
		}{
			{"account scan", func() error { _, err := r.ListAccounts(ctx); return err }},
			{"journal balance scan", func() error { _, err := r.UnbalancedJournals(ctx, time.Time{}); return err }},
			{"gl mirror scan", func() error { _, err := r.MirrorMismatches(ctx, time.Time{}); return err }},
		}
		for _, probe := range probes {
			start := now()
			if err := probe.run(); err != nil {
				return errorResult("performance", err)
			}
			if elapsed := now().Sub(start); elapsed > slowScan {
				b.warning("%s took %s (budget %s)", probe.name, elapsed.Round(time.Millisecond), slowScan)
			}
		}
		if len(b.result.Issues) > 0 {
			b.recommend("add or rebuild indexes on the scanned tables before validation runs get slower")
		}
		return b.done()
	}
}

// checkTrialBalance verifies the accounting equation over stored balances.
func checkTrialBalance(ctx context.Context, r Reader) ModuleResult {
	b := newBuilder("trial_balance")
	debitTotal, creditTotal, err := r.NatureTotals(ctx)
	if err != nil {
		return errorResult("trial_balance", err)
	}
	diff := shared.Round2(debitTotal - creditTotal)
	if !shared.EqualWithin(debitTotal, creditTotal) {
		b.critical("trial balance is off by %.2f: debit total %.2f vs credit total %.2f", diff, debitTotal, creditTotal)
		b.recommend("recalculate account balances from postings to locate the drifted accounts")
	}
	return b.done()
}

// checkIntegration measures how completely business documents are tied into
// the ledger. Rates below failRate are critical, below warnRate warnings. A
// ledger with no posting activity inside the staleness window gets a warning.
func checkIntegration(warnRate, failRate float64, staleness time.Duration, now func() time.Time) checkFn {
	return func(ctx context.Context, r Reader) ModuleResult {
		b := newBuilder("integration")
		grade := func(name string, stats LinkStats, err error) {
			if err != nil {
				b.critical("%s link statistics unavailable: %v", name, err)
				return
			}
			rate := stats.Rate()
			switch {
			case rate < failRate:
				b.critical("only %d of %d %s carry a ledger link (%.0f%%)", stats.Linked, stats.Total, name, 100*rate)
			case rate < warnRate:
				b.warning("%d of %d %s carry a ledger link (%.0f%%)", stats.Linked, stats.Total, name, 100*rate)
			}
		}
		invoices, err := r.InvoiceLinkStats(ctx)
		grade("invoices", invoices, err)
		parties, err := r.PartyLinkStats(ctx)
		grade("parties", parties, err)
		latest, err := r.LatestPostingDate(ctx)
		if err != nil {
			b.critical("posting activity unavailable: %v", err)
		} else if !latest.IsZero() && now().Sub(latest) > staleness {
			b.warning("no journal activity since %s", latest.Format("2006-01-02"))
		}
		if len(b.result.Issues) > 0 {
			b.recommend("re-post the unlinked documents so subledger activity reaches the general ledger")
		}
		return b.done()
	}
}

func errorResult(module string, err error) ModuleResult {
	return ModuleResult{
		Module:   module,
		Status:   StatusError,
		Score:    0,
		MaxScore: moduleMaxScore,
		Error:    fmt.Sprintf("check failed: %v", err),
	}
}
