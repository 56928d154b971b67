// Package slack connects the bot to Slack: Socket Mode for events and the Web API
// for history reads, posting and private file downloads.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/memohai/jester/internal/channel"
)

const defaultReconnectDelay = 2 * time.Second

var errDisconnectRequested = errors.New("slack requested disconnect")

// Adapter implements channel.Adapter over Socket Mode.
type Adapter struct {
	client         *Client
	logger         *slog.Logger
	reconnectDelay time.Duration

	mu        sync.RWMutex
	identity  channel.Identity
	connected atomic.Bool
	now       func() time.Time
}

// NewAdapter creates an Adapter using client for all Web API calls.
func NewAdapter(log *slog.Logger, client *Client) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		client:         client,
		logger:         log.With(slog.String("adapter", "slack")),
		reconnectDelay: defaultReconnectDelay,
		now:            time.Now,
	}
}

// Connect resolves the bot identity. It must succeed before Start.
func (a *Adapter) Connect(ctx context.Context) (channel.Identity, error) {
	id, err := a.client.AuthTest(ctx)
	if err != nil {
		return channel.Identity{}, fmt.Errorf("slack auth.test: %w", err)
	}
	if id.UserID == "" {
		return channel.Identity{}, fmt.Errorf("slack auth.test returned no user id")
	}
	a.mu.Lock()
	a.identity = id
	a.mu.Unlock()
	a.logger.Info("slack identity resolved",
		slog.String("user_id", id.UserID),
		slog.String("bot_id", id.BotID),
		slog.String("team_id", id.TeamID),
	)
	return id, nil
}

// Identity returns the identity resolved by Connect.
func (a *Adapter) Identity() channel.Identity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.identity
}

// Connected reports whether a Socket Mode connection is currently open.
func (a *Adapter) Connected() bool {
	return a.connected.Load()
}

func (a *Adapter) History(ctx context.Context, q channel.HistoryQuery) (channel.HistoryPage, error) {
	return a.client.History(ctx, q)
}

func (a *Adapter) Send(ctx context.Context, channelID, text string, mrkdwn bool) (channel.SentMessage, error) {
	return a.client.PostMessage(ctx, channelID, text, mrkdwn)
}

func (a *Adapter) FetchFile(ctx context.Context, url string) ([]byte, string, error) {
	return a.client.FetchFile(ctx, url)
}

// Start consumes Socket Mode until ctx is canceled, reconnecting on any
// connection failure. Every envelope is acknowledged before it is handled and
// message events are handed to handler in arrival order.
func (a *Adapter) Start(ctx context.Context, handler channel.EventHandler) error {
	if a.Identity().UserID == "" {
		return channel.ErrNotConnected
	}
	for {
		if ctx.Err() != nil {
			a.logger.Info("slack socket stopped", slog.String("reason", "context canceled"))
			return nil
		}
		conn, err := a.client.connectSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("slack socket connect failed", slog.Any("error", err))
			if err := sleepWithContext(ctx, a.reconnectDelay); err != nil {
				return nil
			}
			continue
		}
		a.connected.Store(true)
		a.logger.Info("slack socket connected")
		err = a.consume(ctx, conn, handler)
		a.connected.Store(false)
		_ = conn.Close()
		if ctx.Err() != nil {
			a.logger.Info("slack socket stopped", slog.String("reason", "context canceled"))
			return nil
		}
		if errors.Is(err, errDisconnectRequested) {
			a.logger.Info("slack socket refresh requested")
			continue
		}
		a.logger.Warn("slack socket dropped", slog.Any("error", err))
		if err := sleepWithContext(ctx, a.reconnectDelay); err != nil {
			return nil
		}
	}
}

func (a *Adapter) consume(ctx context.Context, conn *websocket.Conn, handler channel.EventHandler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env socketEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			a.logger.Warn("slack envelope decode failed", slog.Any("error", err))
			continue
		}
		if env.EnvelopeID != "" {
			if err := conn.WriteJSON(socketAck{EnvelopeID: env.EnvelopeID}); err != nil {
				return fmt.Errorf("ack envelope: %w", err)
			}
		}
		switch env.Type {
		case envelopeHello:
			a.logger.Debug("slack socket hello")
		case envelopeDisconnect:
			a.logger.Debug("slack socket disconnect", slog.String("reason", env.Reason))
			return errDisconnectRequested
		case envelopeEventsAPI:
			event, ok, err := parseMessageEvent(env.Payload, a.now())
			if err != nil {
				a.logger.Warn("slack event decode failed", slog.String("envelope_id", env.EnvelopeID), slog.Any("error", err))
				continue
			}
			if !ok {
				continue
			}
			if handler != nil {
				handler(ctx, event)
			}
		default:
			a.logger.Debug("slack envelope ignored", slog.String("type", env.Type))
		}
	}
}
