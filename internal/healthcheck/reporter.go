package healthcheck

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// Reporter logs a status report on a cron schedule.
type Reporter struct {
	logger   *slog.Logger
	cron     *cron.Cron
	checkers []Checker
}

// NewReporter logs the status report on a cron schedule such as "@every 10m".
// An empty schedule disables reporting.
func NewReporter(log *slog.Logger, schedule string, checkers ...Checker) (*Reporter, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Reporter{
		logger:   log.With(slog.String("component", "status")),
		checkers: checkers,
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return r, nil
	}
	r.cron = cron.New()
	if _, err := r.cron.AddFunc(schedule, func() { r.Report(context.Background()) }); err != nil {
		return nil, fmt.Errorf("status schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins the schedule.
func (r *Reporter) Start() {
	if r.cron != nil {
		r.cron.Start()
	}
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report logs the current status once.
func (r *Reporter) Report(ctx context.Context) Report {
	report := Collect(ctx, r.checkers...)
	attrs := []any{slog.String("status", report.Status)}
	for _, item := range report.Checks {
		attrs = append(attrs, slog.Group(item.ID,
			slog.String("status", item.Status),
			slog.String("summary", item.Summary),
		))
	}
	if report.Status == StatusError {
		r.logger.Warn("status report", attrs...)
	} else {
		r.logger.Info("status report", attrs...)
	}
	return report
}
