package conversation

import (
	"strings"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/chat"
	"github.com/memohai/jester/internal/prune"
)

// BuildTurns renders history as prompt turns. Each message with text becomes one
// turn and each image an extra turn under the same header. Messages written by
// the bot are assistant turns.
func (c *Coordinator) BuildTurns(msgs []channel.Message, direct bool) []chat.Turn {
	turns := make([]chat.Turn, 0, len(msgs)+1)
	for _, m := range msgs {
		role := chat.RoleUser
		if c.isSelf(m) {
			role = chat.RoleAssistant
		}
		header := c.header(m, direct)
		if strings.TrimSpace(m.Text) != "" {
			body := prune.Text(c.dir.ToAlias(m.Text), c.opts.MaxTurnBytes)
			turns = append(turns, chat.TextTurn(role, header+" "+body))
		}
		for _, img := range m.Images {
			turns = append(turns, chat.Turn{
				Role: role,
				Parts: []chat.Part{
					{Text: header},
					{Image: &chat.Image{Data: img.Data, MIMEType: img.MIMEType, URL: img.URL}},
				},
			})
		}
	}
	return turns
}

func (c *Coordinator) isSelf(m channel.Message) bool {
	return m.User != "" && m.User == c.opts.BotUserID
}

const noTimestamp = "no timestamp"

// header formats the "[Name at time]" attribution that prefixes a turn.
func (c *Coordinator) header(m channel.Message, direct bool) string {
	author := m.User
	if author == "" {
		author = m.BotID
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(c.dir.DisplayName(author))
	b.WriteString(" at ")
	if at, ok := m.Time(); ok {
		b.WriteString(chat.FormatTime(at))
	} else {
		b.WriteString(noTimestamp)
	}
	if direct {
		b.WriteString(" (private message to ")
		b.WriteString(c.opts.BotName)
		b.WriteString(")")
	}
	b.WriteString("]")
	return b.String()
}

func (c *Coordinator) promptParams() chat.PromptParams {
	params := chat.PromptParams{BotName: c.opts.BotName, Now: c.now()}
	for _, entry := range c.dir.Roster() {
		if entry.UserID == c.opts.BotUserID {
			continue
		}
		params.Roster = append(params.Roster, chat.RosterName{Name: entry.Name})
	}
	return params
}
