// Package healthcheck evaluates runtime checks for the status endpoint and the
// periodic status log.
package healthcheck

import (
	"context"
	"sort"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
	// StatusUnknown indicates check result is not yet known.
	StatusUnknown = "unknown"
)

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Checker evaluates one or more runtime checks.
type Checker interface {
	ListChecks(ctx context.Context) []CheckResult
}

// Report is the combined result of several checkers.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Collect runs every checker and folds the results into one report. The overall
// status is the worst status seen; an empty report is unknown.
func Collect(ctx context.Context, checkers ...Checker) Report {
	report := Report{Status: StatusUnknown, Checks: []CheckResult{}}
	for _, c := range checkers {
		if c == nil {
			continue
		}
		report.Checks = append(report.Checks, c.ListChecks(ctx)...)
	}
	sort.SliceStable(report.Checks, func(i, j int) bool { return report.Checks[i].ID < report.Checks[j].ID })
	for _, item := range report.Checks {
		if severity(item.Status) > severity(report.Status) || report.Status == StatusUnknown {
			report.Status = item.Status
		}
	}
	return report
}

func severity(status string) int {
	switch status {
	case StatusOK:
		return 1
	case StatusWarn:
		return 2
	case StatusError:
		return 3
	default:
		return 0
	}
}
