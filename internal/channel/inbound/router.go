// Package inbound routes platform events into the history store and decides
// which of them get a reply.
package inbound

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/conversation"
)

// Store is the history registry as seen by the router.
type Store interface {
	Ensure(ctx context.Context, channelID string) (bool, error)
	Materialize(ctx context.Context, raw channel.RawMessage) channel.Message
	Refetch(ctx context.Context, channelID, ts string) (channel.Message, bool, error)
	Upsert(channelID string, msg channel.Message)
	Replace(channelID string, msg channel.Message) bool
	Remove(channelID, ts string)
	Mark(channelID, ts string)
}

// Replier answers a routed event.
type Replier interface {
	Reply(ctx context.Context, t conversation.Trigger) (conversation.Outcome, error)
}

// Router is the channel.EventHandler of the bot.
type Router struct {
	store   Store
	dir     *channel.Directory
	replier Replier
	self    channel.Identity
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewRouter creates a Router. self is the bot's own identity, used to detect
// mentions and to ignore the bot's own messages.
func NewRouter(log *slog.Logger, store Store, dir *channel.Directory, replier Replier, self channel.Identity) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		store:   store,
		dir:     dir,
		replier: replier,
		self:    self,
		logger:  log.With(slog.String("component", "router")),
	}
}

// HandleEvent applies one event. The staleness marker and the text of a primary
// message are recorded before HandleEvent returns, so both follow delivery order.
// Attachment resolution, bootstrap and replies continue in the background.
func (r *Router) HandleEvent(ctx context.Context, ev channel.Event) {
	kind := ev.Kind()
	log := r.logger.With(
		slog.String("channel", ev.Channel),
		slog.String("ts", ev.TS),
		slog.String("kind", kind.String()),
	)
	switch kind {
	case channel.KindPrimary:
		if strings.TrimSpace(ev.TS) == "" {
			log.Warn("primary event without ts dropped")
			return
		}
		r.store.Mark(ev.Channel, ev.TS)
		r.store.Upsert(ev.Channel, ev.Message.TextOnly())
		trigger, reply := r.route(ev, log)
		r.spawn(func() {
			r.syncPrimary(ctx, ev, log)
			if reply {
				r.reply(ctx, trigger, log)
			}
		})
	case channel.KindEdit:
		r.spawn(func() { r.syncEdit(ctx, ev, log) })
	case channel.KindDelete:
		r.store.Remove(ev.Channel, ev.DeletedTS)
		log.Debug("message removed", slog.String("deleted_ts", ev.DeletedTS))
	default:
		log.Debug("event ignored", slog.String("subtype", string(ev.Subtype)))
	}
}

// Wait blocks until every background task started by HandleEvent has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) spawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Router) syncPrimary(ctx context.Context, ev channel.Event, log *slog.Logger) {
	if _, err := r.store.Ensure(ctx, ev.Channel); err != nil {
		log.Warn("history bootstrap failed", slog.Any("error", err))
	}
	if !r.store.Replace(ev.Channel, r.store.Materialize(ctx, ev.Message)) {
		log.Debug("message removed before its attachments resolved")
	}
}

func (r *Router) syncEdit(ctx context.Context, ev channel.Event, log *slog.Logger) {
	if _, err := r.store.Ensure(ctx, ev.Channel); err != nil {
		log.Warn("history bootstrap failed", slog.Any("error", err))
	}
	msg, ok, err := r.store.Refetch(ctx, ev.Channel, ev.EditedTS)
	if err != nil {
		log.Warn("edited message refetch failed", slog.String("edited_ts", ev.EditedTS), slog.Any("error", err))
		return
	}
	if !ok {
		log.Debug("edited message no longer exists", slog.String("edited_ts", ev.EditedTS))
		return
	}
	r.store.Upsert(ev.Channel, msg)
}

// route decides whether a primary event warrants a reply.
func (r *Router) route(ev channel.Event, log *slog.Logger) (conversation.Trigger, bool) {
	t := conversation.Trigger{
		Channel:       ev.Channel,
		TS:            ev.TS,
		DirectMessage: ev.IsDirect(),
		Mentioned:     r.self.UserID != "" && strings.Contains(ev.Text, channel.MentionToken(r.self.UserID)),
	}
	if !t.DirectMessage && !t.Mentioned && !r.dir.IsFreeChannel(ev.Channel) {
		return t, false
	}
	if !t.DirectMessage && !r.dir.IsKnownChannel(ev.Channel) {
		log.Info("reply dropped, channel not configured")
		return t, false
	}
	if ev.User == r.self.UserID || ev.FromBot() {
		log.Debug("reply dropped, message from a bot", slog.String("user", ev.User), slog.String("bot_id", ev.BotID))
		return t, false
	}
	return t, true
}

func (r *Router) reply(ctx context.Context, t conversation.Trigger, log *slog.Logger) {
	outcome, err := r.replier.Reply(ctx, t)
	if err != nil {
		log.Warn("reply failed", slog.String("outcome", outcome.String()), slog.Any("error", err))
		return
	}
	log.Debug("reply finished", slog.String("outcome", outcome.String()))
}
