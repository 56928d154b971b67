package slack

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memohai/jester/internal/channel"
)

const (
	envelopeHello      = "hello"
	envelopeEventsAPI  = "events_api"
	envelopeDisconnect = "disconnect"
)

type socketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type"`
	Reason     string          `json:"reason,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type socketAck struct {
	EnvelopeID string `json:"envelope_id"`
}

type eventCallback struct {
	Type    string          `json:"type"`
	TeamID  string          `json:"team_id"`
	EventID string          `json:"event_id"`
	Event   json.RawMessage `json:"event"`
}

type wireFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Mimetype   string `json:"mimetype"`
	Thumb1024  string `json:"thumb_1024"`
	URLPrivate string `json:"url_private"`
}

type wireBlock struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
	AltText  string `json:"alt_text"`
}

type wireMessage struct {
	Type    string      `json:"type"`
	Subtype string      `json:"subtype,omitempty"`
	User    string      `json:"user,omitempty"`
	BotID   string      `json:"bot_id,omitempty"`
	Text    string      `json:"text"`
	TS      string      `json:"ts"`
	Files   []wireFile  `json:"files,omitempty"`
	Blocks  []wireBlock `json:"blocks,omitempty"`
}

func (m wireMessage) raw() channel.RawMessage {
	out := channel.RawMessage{
		User:  strings.TrimSpace(m.User),
		BotID: strings.TrimSpace(m.BotID),
		TS:    strings.TrimSpace(m.TS),
		Text:  m.Text,
	}
	for _, f := range m.Files {
		out.Files = append(out.Files, channel.RawFile{
			ID:         f.ID,
			Name:       f.Name,
			Mimetype:   f.Mimetype,
			Thumb1024:  f.Thumb1024,
			URLPrivate: f.URLPrivate,
		})
	}
	for _, b := range m.Blocks {
		out.Blocks = append(out.Blocks, channel.RawBlock{Type: b.Type, ImageURL: b.ImageURL, AltText: b.AltText})
	}
	return out
}

type wireEvent struct {
	wireMessage
	Channel     string       `json:"channel"`
	ChannelType string       `json:"channel_type"`
	DeletedTS   string       `json:"deleted_ts,omitempty"`
	Message     *wireMessage `json:"message,omitempty"`
}

// parseMessageEvent decodes an events_api payload. ok is false for anything
// other than a message event.
func parseMessageEvent(payload json.RawMessage, now time.Time) (channel.Event, bool, error) {
	if len(payload) == 0 {
		return channel.Event{}, false, nil
	}
	var cb eventCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return channel.Event{}, false, fmt.Errorf("decode event callback: %w", err)
	}
	if cb.Type != "event_callback" || len(cb.Event) == 0 {
		return channel.Event{}, false, nil
	}
	var ev wireEvent
	if err := json.Unmarshal(cb.Event, &ev); err != nil {
		return channel.Event{}, false, fmt.Errorf("decode message event: %w", err)
	}
	if ev.Type != "message" {
		return channel.Event{}, false, nil
	}

	out := channel.Event{
		Channel:     strings.TrimSpace(ev.Channel),
		ChannelType: strings.TrimSpace(ev.ChannelType),
		TS:          strings.TrimSpace(ev.TS),
		User:        strings.TrimSpace(ev.User),
		BotID:       strings.TrimSpace(ev.BotID),
		Subtype:     channel.Subtype(ev.Subtype),
		Text:        ev.Text,
		DeletedTS:   strings.TrimSpace(ev.DeletedTS),
		Message:     ev.raw(),
		ReceivedAt:  now,
	}
	if out.Subtype == channel.SubtypeMessageChanged && ev.Message != nil {
		inner := ev.Message.raw()
		out.EditedTS = inner.TS
		out.User = inner.User
		out.BotID = inner.BotID
		out.Text = inner.Text
		out.Message = inner
	}
	return out, true, nil
}
