package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/jester/internal/channel"
)

// materializeLimit bounds concurrent attachment resolution across one page.
const materializeLimit = 4

// Backfill selects how much history to read. Count and Pages are mutually exclusive.
type Backfill struct {
	// Count is the number of messages wanted; it is rounded up to whole pages.
	Count int
	// Pages is an explicit page budget.
	Pages int
}

func (b Backfill) pageBudget(pageSize int) (int, error) {
	if b.Count > 0 && b.Pages > 0 {
		return 0, ErrConflictingBackfill
	}
	if b.Pages > 0 {
		return b.Pages, nil
	}
	if b.Count <= 0 {
		return 0, nil
	}
	return (b.Count + pageSize - 1) / pageSize, nil
}

// Bootstrap reads history pages newest-first until the budget is spent or pagination ends,
// and returns the messages in chronological order. It does not modify the registry.
func (s *Store) Bootstrap(ctx context.Context, channelID string, b Backfill) ([]channel.Message, error) {
	budget, err := b.pageBudget(s.pageSize)
	if err != nil {
		return nil, err
	}

	var pages [][]channel.RawMessage
	cursor := ""
	for budget > 0 {
		s.logger.Debug("fetching messages", slog.String("channel", channelID), slog.String("cursor", cursor))
		page, err := s.reader.History(ctx, channel.HistoryQuery{
			Channel: channelID,
			Cursor:  cursor,
			Limit:   s.pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("read history page: %w", err)
		}
		raw := slices.Clone(page.Messages)
		slices.Reverse(raw)
		pages = append(pages, raw)
		budget--
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	var ordered []channel.RawMessage
	for i := len(pages) - 1; i >= 0; i-- {
		ordered = append(ordered, pages[i]...)
	}

	out := make([]channel.Message, len(ordered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(materializeLimit)
	for i, raw := range ordered {
		g.Go(func() error {
			out[i] = s.Materialize(gctx, raw)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// Refetch re-reads the single message at ts. It returns false when the platform no longer has it.
func (s *Store) Refetch(ctx context.Context, channelID, ts string) (channel.Message, bool, error) {
	page, err := s.reader.History(ctx, channel.HistoryQuery{
		Channel:   channelID,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return channel.Message{}, false, fmt.Errorf("read message: %w", err)
	}
	for _, raw := range page.Messages {
		if raw.TS == ts {
			return s.Materialize(ctx, raw), true, nil
		}
	}
	return channel.Message{}, false, nil
}
