package slack

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/jester/internal/channel"
)

func callback(event string) json.RawMessage {
	return json.RawMessage(`{"type":"event_callback","team_id":"T1","event_id":"Ev1","event":` + event + `}`)
}

func TestParseMessageEvent(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		event  string
		wantOK bool
		check  func(t *testing.T, ev channel.Event)
	}{
		{
			name:   "direct message",
			event:  `{"type":"message","channel":"D1","channel_type":"im","user":"U1","text":"hi","ts":"1714564800.000100"}`,
			wantOK: true,
			check: func(t *testing.T, ev channel.Event) {
				assert.Equal(t, channel.KindPrimary, ev.Kind())
				assert.True(t, ev.IsDirect())
				assert.Equal(t, "1714564800.000100", ev.Message.TS)
				assert.Equal(t, now, ev.ReceivedAt)
			},
		},
		{
			name: "file share",
			event: `{"type":"message","subtype":"file_share","channel":"C1","channel_type":"channel","user":"U1","text":"","ts":"2.0",
				"files":[{"id":"F1","mimetype":"image/jpeg","url_private":"https://files/a.jpg"}]}`,
			wantOK: true,
			check: func(t *testing.T, ev channel.Event) {
				assert.Equal(t, channel.KindPrimary, ev.Kind())
				require.Len(t, ev.Message.Files, 1)
				assert.Equal(t, "https://files/a.jpg", ev.Message.Files[0].ThumbnailURL())
			},
		},
		{
			name: "edit",
			event: `{"type":"message","subtype":"message_changed","channel":"C1","ts":"3.0",
				"message":{"type":"message","user":"U1","text":"fixed","ts":"1.0"},
				"previous_message":{"type":"message","user":"U1","text":"fxied","ts":"1.0"}}`,
			wantOK: true,
			check: func(t *testing.T, ev channel.Event) {
				assert.Equal(t, channel.KindEdit, ev.Kind())
				assert.Equal(t, "1.0", ev.EditedTS)
				assert.Equal(t, "fixed", ev.Text)
				assert.Equal(t, "U1", ev.User)
			},
		},
		{
			name:   "delete",
			event:  `{"type":"message","subtype":"message_deleted","channel":"C1","ts":"4.0","deleted_ts":"1.0"}`,
			wantOK: true,
			check: func(t *testing.T, ev channel.Event) {
				assert.Equal(t, channel.KindDelete, ev.Kind())
				assert.Equal(t, "1.0", ev.DeletedTS)
			},
		},
		{
			name:   "bot message",
			event:  `{"type":"message","subtype":"bot_message","channel":"C1","bot_id":"B9","text":"beep","ts":"5.0"}`,
			wantOK: true,
			check: func(t *testing.T, ev channel.Event) {
				assert.Equal(t, channel.KindOther, ev.Kind())
				assert.True(t, ev.FromBot())
			},
		},
		{
			name:   "reaction",
			event:  `{"type":"reaction_added","user":"U1","reaction":"joy"}`,
			wantOK: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ev, ok, err := parseMessageEvent(callback(tc.event), now)
			require.NoError(t, err)
			require.Equal(t, tc.wantOK, ok)
			if tc.check != nil {
				tc.check(t, ev)
			}
		})
	}
}

func TestParseMessageEventRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, _, err := parseMessageEvent(json.RawMessage(`{"type":`), time.Now())
	require.Error(t, err)

	_, ok, err := parseMessageEvent(nil, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}
