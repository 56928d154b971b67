// Package history keeps the per-channel message cache the bot prompts from,
// along with the per-channel staleness marker.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/memohai/jester/internal/channel"
)

// ErrConflictingBackfill is returned when a backfill names both a message count and a page budget.
var ErrConflictingBackfill = errors.New("history: backfill count and pages are mutually exclusive")

const (
	DefaultPageSize      = 100
	DefaultBackfillCount = 1000
)

// Previewer resolves a link to a screenshot, or nil when none is available.
type Previewer interface {
	Get(ctx context.Context, url string) []byte
}

// Options configures a Store.
type Options struct {
	PageSize      int
	BackfillCount int
	Files         channel.FileFetcher
	Previews      Previewer
}

// Store is the registry of channel histories and staleness markers. Channels are
// created lazily and live for the process lifetime; nothing is evicted.
type Store struct {
	reader        channel.HistoryReader
	files         channel.FileFetcher
	previews      Previewer
	pageSize      int
	backfillCount int
	logger        *slog.Logger

	group singleflight.Group

	mu           sync.Mutex
	channels     map[string][]channel.Message
	bootstrapped map[string]struct{}
	markers      map[string]string
}

// Stats summarizes the registry size.
type Stats struct {
	Channels int
	Messages int
	Markers  int
}

// NewStore creates a Store reading backfill pages from reader.
func NewStore(log *slog.Logger, reader channel.HistoryReader, opts Options) *Store {
	if log == nil {
		log = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.BackfillCount < 0 {
		opts.BackfillCount = DefaultBackfillCount
	}
	return &Store{
		reader:        reader,
		files:         opts.Files,
		previews:      opts.Previews,
		pageSize:      opts.PageSize,
		backfillCount: opts.BackfillCount,
		logger:        log.With(slog.String("component", "history")),
		channels:      map[string][]channel.Message{},
		bootstrapped:  map[string]struct{}{},
		markers:       map[string]string{},
	}
}

// Ensure bootstraps the channel with the configured backfill count unless a bootstrap already
// succeeded. Concurrent first calls for one channel share a single bootstrap. It reports whether
// a bootstrap ran. On error the channel stays unknown and the next call tries again.
func (s *Store) Ensure(ctx context.Context, channelID string) (bool, error) {
	if s.Known(channelID) {
		return false, nil
	}
	v, err, _ := s.group.Do(channelID, func() (any, error) {
		if s.Known(channelID) {
			return false, nil
		}
		msgs, err := s.Bootstrap(ctx, channelID, Backfill{Count: s.backfillCount})
		if err != nil {
			return false, err
		}
		s.install(channelID, msgs)
		s.logger.Info("channel bootstrapped", slog.String("channel", channelID), slog.Int("messages", len(msgs)))
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// install puts the backfill in front of messages upserted while it was running.
// A live message with a backfilled timestamp replaces it in place.
func (s *Store) install(channelID string, msgs []channel.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]channel.Message, len(msgs), len(msgs)+len(s.channels[channelID]))
	copy(merged, msgs)
	for _, m := range s.channels[channelID] {
		merged = upsertInto(merged, m)
	}
	s.channels[channelID] = merged
	s.bootstrapped[channelID] = struct{}{}
}

// Known reports whether the channel history has been bootstrapped.
func (s *Store) Known(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bootstrapped[channelID]
	return ok
}

// Upsert replaces the message with the same timestamp in place, or appends it.
func (s *Store) Upsert(channelID string, msg channel.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channelID] = upsertInto(s.channels[channelID], msg)
}

// Replace swaps in msg only when a message with its timestamp is still cached.
// It reports whether it did.
func (s *Store) Replace(channelID string, msg channel.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.channels[channelID]
	for i := range list {
		if list[i].TS == msg.TS {
			list[i] = msg
			return true
		}
	}
	return false
}

func upsertInto(list []channel.Message, msg channel.Message) []channel.Message {
	for i := range list {
		if list[i].TS == msg.TS {
			list[i] = msg
			return list
		}
	}
	return append(list, msg)
}

// Remove drops the message with the given timestamp. Absent timestamps are a no-op.
func (s *Store) Remove(channelID, ts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.channels[channelID]
	if !ok {
		return
	}
	out := list[:0]
	for _, m := range list {
		if m.TS != ts {
			out = append(out, m)
		}
	}
	s.channels[channelID] = out
}

// Messages returns a copy of the channel history in chronological order.
func (s *Store) Messages(channelID string) []channel.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.channels[channelID]
	out := make([]channel.Message, len(list))
	copy(out, list)
	return out
}

// Mark records ts as the newest primary event of the channel.
func (s *Store) Mark(channelID, ts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[channelID] = ts
}

// Marker returns the newest primary event timestamp of the channel.
func (s *Store) Marker(channelID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[channelID]
}

// Stats reports registry sizes.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Channels: len(s.channels), Markers: len(s.markers)}
	for _, list := range s.channels {
		st.Messages += len(list)
	}
	return st
}
