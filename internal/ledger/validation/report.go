package validation

import (
	"time"

	"github.com/google/uuid"
)

// Status classifies a module outcome. "error" means the check itself broke,
// which scores zero without aborting the run.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
)

// Severity classifies an issue for reporting.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue is one finding with a machine-usable severity and a human message.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ModuleResult is the outcome of one check module.
type ModuleResult struct {
	Module          string   `json:"module"`
	Status          Status   `json:"status"`
	Score           float64  `json:"score"`
	MaxScore        float64  `json:"max_score"`
	Issues          []Issue  `json:"issues,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Band is the qualitative health classification of an overall score.
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandFair      Band = "fair"
	BandPoor      Band = "poor"
	BandCritical  Band = "critical"
)

// BandFor maps an overall percentage to its band.
func BandFor(percent float64) Band {
	switch {
	case percent >= 90:
		return BandExcellent
	case percent >= 75:
		return BandGood
	case percent >= 60:
		return BandFair
	case percent >= 40:
		return BandPoor
	default:
		return BandCritical
	}
}

// Report is the aggregated outcome of one validation run.
type Report struct {
	RunID           uuid.UUID      `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	Duration        time.Duration  `json:"duration"`
	Modules         []ModuleResult `json:"modules"`
	Score           float64        `json:"score"`
	MaxScore        float64        `json:"max_score"`
	Percent         float64        `json:"percent"`
	Band            Band           `json:"band"`
	Issues          []Issue        `json:"issues,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// Healthy reports whether the run found no critical issues.
func (r Report) Healthy() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

func aggregate(runID uuid.UUID, startedAt, completedAt time.Time, modules []ModuleResult) Report {
	report := Report{
		RunID:       runID,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Modules:     modules,
	}
	for _, m := range modules {
		report.Score += m.Score
		report.MaxScore += m.MaxScore
		report.Issues = append(report.Issues, m.Issues...)
		report.Warnings = append(report.Warnings, m.Warnings...)
		report.Recommendations = append(report.Recommendations, m.Recommendations...)
	}
	if report.MaxScore > 0 {
		report.Percent = 100 * report.Score / report.MaxScore
	}
	report.Band = BandFor(report.Percent)
	return report
}

// HealthSummary is the cheap liveness view used by QuickHealthCheck.
type HealthSummary struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
}
