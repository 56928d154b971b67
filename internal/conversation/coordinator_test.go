package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/chat"
	"github.com/memohai/jester/internal/history"
)

const (
	botUserID = "U042LLR0XJS"
	ericID    = "U02KC6BS7"
	evanID    = "U030HKE0G4E"
	testChan  = "C01T0PC528P"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	err   error
	nextT int
}

func (s *fakeSender) Send(ctx context.Context, channelID, text string, mrkdwn bool) (channel.SentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return channel.SentMessage{}, s.err
	}
	if !mrkdwn {
		return channel.SentMessage{}, errors.New("expected mrkdwn")
	}
	s.sent = append(s.sent, text)
	s.nextT++
	return channel.SentMessage{Channel: channelID, TS: fmt.Sprintf("1714600000.%06d", s.nextT)}, nil
}

func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newTestDirectory(t *testing.T) *channel.Directory {
	t.Helper()
	dir, err := channel.NewDirectory(
		map[string]string{"Eric": ericID, "Evan": evanID, "Evil Robbie": botUserID},
		map[string]string{"devs": testChan},
		nil,
	)
	require.NoError(t, err)
	return dir
}

func newTestCoordinator(t *testing.T, store *history.Store, gen chat.Generator, sender channel.Sender, bypass bool) *Coordinator {
	t.Helper()
	prompts, err := chat.NewPrompts("", "")
	require.NoError(t, err)
	c := NewCoordinator(nil, store, newTestDirectory(t), gen, sender, prompts, Options{
		BotName:                  "Evil Robbie",
		BotUserID:                botUserID,
		Temperature:              1.5,
		MentionBypassesStaleness: bypass,
	})
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC) }
	return c
}

func reply(text string) chat.Generator {
	return chat.GeneratorFunc(func(ctx context.Context, req chat.Request) (chat.Result, error) {
		return chat.Result{Text: text}, nil
	})
}

func TestReplySendsAndRecordsBotMessage(t *testing.T) {
	t.Parallel()

	store := history.NewStore(nil, nil, history.Options{})
	store.Upsert(testChan, channel.Message{User: ericID, TS: "1714564800.000100", Text: "roast <@" + evanID + ">"})
	store.Mark(testChan, "1714564800.000100")
	sender := &fakeSender{}
	c := newTestCoordinator(t, store, reply(`[Evil Robbie at 2024-05-01T12:05:00] <@Evan> still uses tabs\nsad`), sender, true)

	outcome, err := c.Reply(context.Background(), Trigger{Channel: testChan, TS: "1714564800.000100"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
	require.Equal(t, []string{"<@" + evanID + "> still uses tabs\nsad"}, sender.texts())

	msgs := store.Messages(testChan)
	require.Len(t, msgs, 2)
	assert.Equal(t, botUserID, msgs[1].User)
	assert.Equal(t, "1714600000.000001", msgs[1].TS)
}

func TestReplyAbstains(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"Pass", "PASS!", "  pass.", "[Evil Robbie at x] pass"} {
		store := history.NewStore(nil, nil, history.Options{})
		store.Mark(testChan, "1.0")
		sender := &fakeSender{}
		c := newTestCoordinator(t, store, reply(text), sender, true)

		outcome, err := c.Reply(context.Background(), Trigger{Channel: testChan, TS: "1.0"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAbstained, outcome, text)
		assert.Empty(t, sender.texts())
	}
}

func TestReplyStructuredAbstain(t *testing.T) {
	t.Parallel()

	store := history.NewStore(nil, nil, history.Options{})
	store.Mark(testChan, "1.0")
	sender := &fakeSender{}
	gen := chat.GeneratorFunc(func(ctx context.Context, req chat.Request) (chat.Result, error) {
		return chat.Result{Text: "meh", Abstain: true}, nil
	})
	c := newTestCoordinator(t, store, gen, sender, true)

	outcome, err := c.Reply(context.Background(), Trigger{Channel: testChan, TS: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAbstained, outcome)
	assert.Empty(t, sender.texts())
}

// newerMessageDuringGeneration simulates a second message landing while the model is busy.
func newerMessageDuringGeneration(store *history.Store) chat.Generator {
	return chat.GeneratorFunc(func(ctx context.Context, req chat.Request) (chat.Result, error) {
		store.Mark(testChan, "2.0")
		return chat.Result{Text: "too late"}, nil
	})
}

func TestReplyStaleness(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		trigger Trigger
		bypass  bool
		want    Outcome
	}{
		{name: "unprompted", trigger: Trigger{Channel: testChan, TS: "1.0"}, bypass: true, want: OutcomeStale},
		{name: "mention with override", trigger: Trigger{Channel: testChan, TS: "1.0", Mentioned: true}, bypass: true, want: OutcomeSent},
		{name: "dm with override", trigger: Trigger{Channel: testChan, TS: "1.0", DirectMessage: true}, bypass: true, want: OutcomeSent},
		{name: "mention without override", trigger: Trigger{Channel: testChan, TS: "1.0", Mentioned: true}, bypass: false, want: OutcomeStale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := history.NewStore(nil, nil, history.Options{})
			store.Mark(testChan, "1.0")
			sender := &fakeSender{}
			c := newTestCoordinator(t, store, newerMessageDuringGeneration(store), sender, tc.bypass)

			outcome, err := c.Reply(context.Background(), tc.trigger)
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)
			if tc.want == OutcomeStale {
				assert.Empty(t, sender.texts())
				assert.Empty(t, store.Messages(testChan))
			} else {
				assert.Len(t, sender.texts(), 1)
			}
		})
	}
}

func TestReplyFallsBackOnGenerationError(t *testing.T) {
	t.Parallel()

	store := history.NewStore(nil, nil, history.Options{})
	store.Mark(testChan, "1.0")
	sender := &fakeSender{}
	gen := chat.GeneratorFunc(func(ctx context.Context, req chat.Request) (chat.Result, error) {
		return chat.Result{}, errors.New("quota exceeded")
	})
	c := newTestCoordinator(t, store, gen, sender, true)

	outcome, err := c.Reply(context.Background(), Trigger{Channel: testChan, TS: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)
	assert.Equal(t, []string{DefaultFallbackText}, sender.texts())
}

func TestReplySendFailure(t *testing.T) {
	t.Parallel()

	store := history.NewStore(nil, nil, history.Options{})
	store.Mark(testChan, "1.0")
	sender := &fakeSender{err: errors.New("channel_not_found")}
	c := newTestCoordinator(t, store, reply("hi"), sender, true)

	outcome, err := c.Reply(context.Background(), Trigger{Channel: testChan, TS: "1.0"})
	require.Error(t, err)
	assert.Equal(t, OutcomeSendFailed, outcome)
	assert.Empty(t, store.Messages(testChan))
}

func TestReplyRequestShape(t *testing.T) {
	t.Parallel()

	store := history.NewStore(nil, nil, history.Options{})
	store.Upsert(testChan, channel.Message{User: ericID, TS: "1714564800.000100", Text: "yo"})
	store.Mark(testChan, "1714564800.000100")
	var got chat.Request
	gen := chat.GeneratorFunc(func(ctx context.Context, req chat.Request) (chat.Result, error) {
		got = req
		return chat.Result{Text: "pass"}, nil
	})
	c := newTestCoordinator(t, store, gen, &fakeSender{}, true)

	_, err := c.Reply(context.Background(), Trigger{Channel: testChan, TS: "1714564800.000100", DirectMessage: true})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got.Temperature, 0.0001)
	assert.Contains(t, got.System, "Your name is Evil Robbie.")
	assert.Contains(t, got.System, "- Eric: <@Eric>")
	assert.NotContains(t, got.System, "- Evil Robbie:")
	require.Len(t, got.Turns, 2)
	assert.Equal(t, "[Eric at 2024-05-01T12:00:00 (private message to Evil Robbie)] yo", got.Turns[0].Parts[0].Text)
	assert.Equal(t, "You are Evil Robbie. Generate a response, if desired.", got.Turns[1].Parts[0].Text)
}

func TestBuildTurnsTranscript(t *testing.T) {
	t.Parallel()

	store := history.NewStore(nil, nil, history.Options{})
	c := newTestCoordinator(t, store, reply("pass"), &fakeSender{}, true)
	msgs := []channel.Message{
		{User: ericID, TS: "1714564800.000100", Text: "hey <@" + botUserID + "> roast <@" + evanID + ">"},
		{User: botUserID, TS: "1714564860.000200", Text: "no"},
		{User: evanID, TS: "1714564920.000300", Images: []channel.Image{{Source: channel.ImageSourceFile, Data: []byte{1, 2, 3}, MIMEType: "image/png"}}},
		{BotID: "B0OTHER", TS: "1714564980.000400", Text: "deploy finished", Images: []channel.Image{{Source: channel.ImageSourceBlock, URL: "https://img.io/chart.png"}}},
	}
	req, err := c.request(msgs, false)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "transcript", []byte(renderTurns(req.Turns)))
}

func TestBuildTurnsUnparseableTimestamp(t *testing.T) {
	t.Parallel()

	store := history.NewStore(nil, nil, history.Options{})
	c := newTestCoordinator(t, store, reply("pass"), &fakeSender{}, true)
	turns := c.BuildTurns([]channel.Message{{User: ericID, TS: "garbled", Text: "hello"}}, true)
	require.Len(t, turns, 1)
	assert.Equal(t, "[Eric at no timestamp (private message to Evil Robbie)] hello", turns[0].Parts[0].Text)
}

func renderTurns(turns []chat.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString(string(turn.Role))
		b.WriteString(":")
		for _, p := range turn.Parts {
			b.WriteString(" ")
			switch {
			case p.Image != nil && len(p.Image.Data) > 0:
				fmt.Fprintf(&b, "<image %s %d bytes>", p.Image.MIMEType, len(p.Image.Data))
			case p.Image != nil:
				fmt.Fprintf(&b, "<image %s>", p.Image.URL)
			default:
				b.WriteString(p.Text)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
