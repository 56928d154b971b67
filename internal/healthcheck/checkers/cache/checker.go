// Package cachechecker reports the size of the in-memory history and preview caches.
package cachechecker

import (
	"context"
	"fmt"

	"github.com/memohai/jester/internal/healthcheck"
	"github.com/memohai/jester/internal/history"
)

const (
	checkTypeHistory = "cache.history"
	checkTypePreview = "cache.preview"
)

// HistoryStats is satisfied by history.Store.
type HistoryStats interface {
	Stats() history.Stats
}

// PreviewStats is satisfied by preview.Cache.
type PreviewStats interface {
	Len() int
	Renders() int64
}

// Checker reports cache sizes. The caches never evict, so these numbers only grow.
type Checker struct {
	history  HistoryStats
	previews PreviewStats
}

// NewChecker creates a cache checker. previews may be nil when link previews are disabled.
func NewChecker(history HistoryStats, previews PreviewStats) *Checker {
	return &Checker{history: history, previews: previews}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	var items []healthcheck.CheckResult
	if c.history != nil {
		st := c.history.Stats()
		items = append(items, healthcheck.CheckResult{
			ID:      checkTypeHistory,
			Type:    checkTypeHistory,
			Status:  healthcheck.StatusOK,
			Summary: fmt.Sprintf("%d messages cached across %d channels.", st.Messages, st.Channels),
			Metadata: map[string]any{
				"channels": st.Channels,
				"messages": st.Messages,
				"markers":  st.Markers,
			},
		})
	}
	if c.previews != nil {
		n := c.previews.Len()
		items = append(items, healthcheck.CheckResult{
			ID:      checkTypePreview,
			Type:    checkTypePreview,
			Status:  healthcheck.StatusOK,
			Summary: fmt.Sprintf("%d link previews cached.", n),
			Metadata: map[string]any{
				"entries": n,
				"renders": c.previews.Renders(),
			},
		})
	}
	return items
}
