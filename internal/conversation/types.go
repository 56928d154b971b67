// Package conversation turns a channel's history into a reply: it builds the
// prompt, runs generation, post-processes the text and decides whether the
// reply is still worth sending.
package conversation

import (
	"github.com/memohai/jester/internal/channel"
)

// AbstainKeyword is the reply the model gives when it has nothing to say.
const AbstainKeyword = "pass"

// Trigger identifies the event a reply answers.
type Trigger struct {
	Channel       string
	TS            string
	DirectMessage bool
	Mentioned     bool
}

// Addressed reports whether the bot was spoken to directly.
func (t Trigger) Addressed() bool {
	return t.DirectMessage || t.Mentioned
}

// Outcome is the result of one reply attempt.
type Outcome int

const (
	OutcomeSent Outcome = iota + 1
	OutcomeAbstained
	OutcomeStale
	OutcomeSendFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeAbstained:
		return "abstained"
	case OutcomeStale:
		return "stale"
	case OutcomeSendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

// History is the slice of the history store the coordinator reads and appends to.
type History interface {
	Messages(channelID string) []channel.Message
	Marker(channelID string) string
	Upsert(channelID string, msg channel.Message)
}
