package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/chat"
)

// DefaultFallbackText is sent when generation fails and no fallback is configured.
const DefaultFallbackText = "my brain just fell out of my ear. give me a minute."

// Options configures a Coordinator.
type Options struct {
	BotName      string
	BotUserID    string
	Temperature  float32
	FallbackText string
	// MentionBypassesStaleness sends replies to DMs and mentions even when a newer
	// message arrived while generating.
	MentionBypassesStaleness bool
	// MaxTurnBytes bounds the text of one turn. Zero keeps text whole.
	MaxTurnBytes int
}

// Coordinator produces, validates and sends replies.
type Coordinator struct {
	history History
	dir     *channel.Directory
	gen     chat.Generator
	sender  channel.Sender
	prompts *chat.Prompts
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(log *slog.Logger, history History, dir *channel.Directory, gen chat.Generator, sender channel.Sender, prompts *chat.Prompts, opts Options) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if opts.FallbackText == "" {
		opts.FallbackText = DefaultFallbackText
	}
	return &Coordinator{
		history: history,
		dir:     dir,
		gen:     gen,
		sender:  sender,
		prompts: prompts,
		opts:    opts,
		logger:  log.With(slog.String("component", "conversation")),
		now:     time.Now,
	}
}

// Reply generates an answer to the trigger from the channel's current history and
// sends it unless the model abstained or the channel moved on in the meantime.
// The returned error is non-nil only for prompt rendering and send failures.
func (c *Coordinator) Reply(ctx context.Context, t Trigger) (Outcome, error) {
	log := c.logger.With(
		slog.String("reply_id", uuid.NewString()),
		slog.String("channel", t.Channel),
		slog.String("trigger_ts", t.TS),
	)

	req, err := c.request(c.history.Messages(t.Channel), t.DirectMessage)
	if err != nil {
		return 0, err
	}
	started := c.now()
	res, err := c.gen.Generate(ctx, req)
	if err != nil {
		log.Error("generation failed, using fallback", slog.Any("error", err))
		res = chat.Result{Text: c.opts.FallbackText}
	}
	log.Debug("generation finished",
		slog.Int("turns", len(req.Turns)),
		slog.Duration("elapsed", c.now().Sub(started)),
		slog.String("model", res.Model),
		slog.Int("total_tokens", res.Usage.TotalTokens),
	)

	text := stripAttribution(res.Text)
	if res.Abstain || text == "" || isAbstention(text) {
		log.Info("reply abstained")
		return OutcomeAbstained, nil
	}

	if !c.fresh(t) {
		log.Info("reply discarded, channel moved on", slog.String("marker", c.history.Marker(t.Channel)))
		return OutcomeStale, nil
	}

	out := decodeEscapes(c.dir.ToNative(text))
	sent, err := c.sender.Send(ctx, t.Channel, out, true)
	if err != nil {
		log.Error("reply send failed", slog.Any("error", err))
		return OutcomeSendFailed, fmt.Errorf("send reply: %w", err)
	}
	c.history.Upsert(t.Channel, channel.Message{User: c.opts.BotUserID, TS: sent.TS, Text: out})
	log.Info("reply sent", slog.String("ts", sent.TS))
	return OutcomeSent, nil
}

// request assembles the system prompt, history turns and the trailing instruction.
func (c *Coordinator) request(msgs []channel.Message, direct bool) (chat.Request, error) {
	params := c.promptParams()
	system, err := c.prompts.System(params)
	if err != nil {
		return chat.Request{}, err
	}
	instruction, err := c.prompts.Instruction(params)
	if err != nil {
		return chat.Request{}, err
	}
	turns := c.BuildTurns(msgs, direct)
	turns = append(turns, chat.TextTurn(chat.RoleUser, instruction))
	return chat.Request{System: system, Turns: turns, Temperature: c.opts.Temperature}, nil
}

// fresh reports whether the trigger is still the newest primary event of its channel.
func (c *Coordinator) fresh(t Trigger) bool {
	if c.opts.MentionBypassesStaleness && t.Addressed() {
		return true
	}
	return c.history.Marker(t.Channel) == t.TS
}
