// Package channel provides the chat-platform abstraction the bot is built on.
// It defines the event and message types, the capabilities a platform adapter
// exposes (history reads, sends, file fetches), and the user directory used to
// translate mentions between platform IDs and human-readable aliases.
package channel

import (
	"strconv"
	"strings"
	"time"
)

// Subtype is the platform's message subtype. The empty subtype is a newly authored message.
type Subtype string

const (
	SubtypeNone           Subtype = ""
	SubtypeFileShare      Subtype = "file_share"
	SubtypeMessageChanged Subtype = "message_changed"
	SubtypeMessageDeleted Subtype = "message_deleted"
)

// EventKind is the routing classification of an inbound event.
type EventKind int

const (
	KindOther EventKind = iota
	KindPrimary
	KindEdit
	KindDelete
)

// String returns a log-friendly name for the kind.
func (k EventKind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindEdit:
		return "edit"
	case KindDelete:
		return "delete"
	default:
		return "other"
	}
}

// ConversationDirect is the conversation type of a one-to-one direct message.
const ConversationDirect = "im"

// Event is a message notification received from the platform.
type Event struct {
	Channel     string
	ChannelType string
	TS          string
	User        string
	BotID       string
	Subtype     Subtype
	Text        string
	// DeletedTS is set on message_deleted events.
	DeletedTS string
	// EditedTS is the timestamp of the edited message on message_changed events.
	EditedTS string
	// Message is the payload of primary events, with files and blocks.
	Message    RawMessage
	ReceivedAt time.Time
}

// Kind classifies the event. Primary events are the only ones that advance staleness.
func (e Event) Kind() EventKind {
	switch e.Subtype {
	case SubtypeNone, SubtypeFileShare:
		return KindPrimary
	case SubtypeMessageChanged:
		return KindEdit
	case SubtypeMessageDeleted:
		return KindDelete
	default:
		return KindOther
	}
}

// IsDirect reports whether the event arrived in a direct conversation.
func (e Event) IsDirect() bool {
	return strings.EqualFold(strings.TrimSpace(e.ChannelType), ConversationDirect)
}

// FromBot reports whether the event was authored by a bot integration.
func (e Event) FromBot() bool {
	return strings.TrimSpace(e.BotID) != ""
}

// RawFile is an uploaded file as the platform reports it.
type RawFile struct {
	ID         string
	Name       string
	Mimetype   string
	Thumb1024  string
	URLPrivate string
}

// ThumbnailURL returns the preferred image rendition of the file, or "" if it has none.
func (f RawFile) ThumbnailURL() string {
	if u := strings.TrimSpace(f.Thumb1024); u != "" {
		return u
	}
	if strings.HasPrefix(strings.ToLower(f.Mimetype), "image/") {
		return strings.TrimSpace(f.URLPrivate)
	}
	return ""
}

// RawBlock is a layout block. Only image blocks carry data the bot uses.
type RawBlock struct {
	Type     string
	ImageURL string
	AltText  string
}

// RawMessage is a message as returned by history reads, before attachment resolution.
type RawMessage struct {
	User   string
	BotID  string
	TS     string
	Text   string
	Files  []RawFile
	Blocks []RawBlock
}

// TextOnly returns the message without attachments resolved.
func (m RawMessage) TextOnly() Message {
	return Message{User: m.User, BotID: m.BotID, TS: m.TS, Text: m.Text}
}

// ImageSource names where an image attachment came from.
type ImageSource string

const (
	ImageSourceFile  ImageSource = "file"
	ImageSourceBlock ImageSource = "block"
	ImageSourceLink  ImageSource = "link"
)

// Image is a resolved image attachment. It carries either bytes or a URL.
type Image struct {
	Source   ImageSource
	URL      string
	Data     []byte
	MIMEType string
}

// HasData reports whether the image bytes are inline.
func (i Image) HasData() bool {
	return len(i.Data) > 0
}

// Message is one entry of a channel history.
type Message struct {
	User   string
	BotID  string
	TS     string
	Text   string
	Images []Image
}

// Time converts the message timestamp to wall-clock time.
func (m Message) Time() (time.Time, bool) {
	return ParseTS(m.TS)
}

// ParseTS parses a platform timestamp of the form "seconds.micros".
func ParseTS(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false
	}
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	var nanos int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		nanos = n
	}
	return time.Unix(s, nanos).UTC(), true
}

// HistoryQuery selects one page of a channel's history, newest first.
type HistoryQuery struct {
	Channel   string
	Cursor    string
	Limit     int
	Latest    string
	Inclusive bool
}

// HistoryPage is one page of history, newest first. An empty NextCursor ends pagination.
type HistoryPage struct {
	Messages   []RawMessage
	NextCursor string
}

// SentMessage identifies a message the bot posted.
type SentMessage struct {
	Channel string
	TS      string
}

// Identity is the bot's own identity on the platform.
type Identity struct {
	UserID string
	BotID  string
	TeamID string
	Name   string
}

// MentionToken returns the platform mention syntax for a user ID.
func MentionToken(userID string) string {
	return "<@" + userID + ">"
}
