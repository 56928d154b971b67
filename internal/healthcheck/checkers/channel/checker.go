package channelchecker

import (
	"context"
	"log/slog"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/healthcheck"
)

const checkTypeChannelConnection = "channel.connection"

// ConnectionObserver reads the platform connection state.
type ConnectionObserver interface {
	Connected() bool
	Identity() channel.Identity
}

// Checker evaluates the platform connection.
type Checker struct {
	logger   *slog.Logger
	observer ConnectionObserver
}

// NewChecker creates a channel health checker.
func NewChecker(log *slog.Logger, observer ConnectionObserver) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		observer: observer,
	}
}

// ListChecks reports whether the event stream is connected.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	if c.observer == nil {
		c.logger.Warn("channel healthcheck dependency is unavailable")
		return []healthcheck.CheckResult{{
			ID:      checkTypeChannelConnection,
			Type:    checkTypeChannelConnection,
			Status:  healthcheck.StatusWarn,
			Summary: "Channel checker service is not available.",
			Detail:  "connection observer is nil",
		}}
	}

	id := c.observer.Identity()
	item := healthcheck.CheckResult{
		ID:      checkTypeChannelConnection,
		Type:    checkTypeChannelConnection,
		Status:  healthcheck.StatusError,
		Summary: "Slack socket is disconnected.",
		Metadata: map[string]any{
			"user_id": id.UserID,
			"team_id": id.TeamID,
		},
	}
	if id.UserID == "" {
		item.Detail = "bot identity not resolved"
	}
	if c.observer.Connected() {
		item.Status = healthcheck.StatusOK
		item.Summary = "Slack socket is connected."
	}
	return []healthcheck.CheckResult{item}
}
