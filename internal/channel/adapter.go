package channel

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by adapters used before Start.
var ErrNotConnected = errors.New("channel adapter not connected")

// EventHandler is invoked for every message event delivered by an adapter.
type EventHandler func(ctx context.Context, event Event)

// HistoryReader reads a channel's history one page at a time.
type HistoryReader interface {
	History(ctx context.Context, query HistoryQuery) (HistoryPage, error)
}

// Sender posts a message and returns the platform-assigned timestamp.
type Sender interface {
	Send(ctx context.Context, channelID, text string, mrkdwn bool) (SentMessage, error)
}

// FileFetcher downloads a private platform file.
type FileFetcher interface {
	FetchFile(ctx context.Context, url string) (data []byte, mime string, err error)
}

// Adapter is a connected platform: it streams events and exposes the capabilities above.
type Adapter interface {
	HistoryReader
	Sender
	FileFetcher
	Identity() Identity
	Start(ctx context.Context, handler EventHandler) error
	Connected() bool
}
