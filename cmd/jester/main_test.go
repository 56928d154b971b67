package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/memohai/jester/internal/channel"
	"github.com/memohai/jester/internal/history"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "jester "))
}

func TestTranscriptLine(t *testing.T) {
	t.Parallel()

	dir, err := channel.NewDirectory(map[string]string{"Eric": "U02KC6BS7"}, nil, nil)
	require.NoError(t, err)
	line := transcriptLine(dir, channel.Message{
		User:   "U02KC6BS7",
		TS:     "1714564800.000100",
		Text:   "look at\n<@U02KC6BS7>",
		Images: []channel.Image{{Source: channel.ImageSourceLink}},
	})
	assert.Equal(t, "[Eric at 2024-05-01T12:00:00] look at <@Eric> (+1 images)", line)
}

func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[slack]
bot_token = "xoxb-test"
base_url = "` + baseURL + `"

[directory.users]
Eric = "U02KC6BS7"

[directory.known_channels]
devs = "C01T0PC528P"

[history]
page_size = 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBackfillCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("channel") != "C01T0PC528P" {
			_, _ = io.WriteString(w, `{"ok":false,"error":"channel_not_found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"has_more":false,"messages":[
			{"type":"message","user":"U02KC6BS7","text":"second","ts":"1714564860.000100"},
			{"type":"message","user":"U02KC6BS7","text":"first","ts":"1714564800.000100"}
		]}`)
	}))
	defer srv.Close()

	root := &rootOptions{ConfigPath: writeTestConfig(t, srv.URL)}
	var out bytes.Buffer
	err := runBackfill(context.Background(), &out, root, &backfillOptions{}, "devs")
	require.NoError(t, err)
	assert.Equal(t,
		"[Eric at 2024-05-01T12:00:00] first\n[Eric at 2024-05-01T12:01:00] second\n2 messages from devs\n",
		out.String())

	err = runBackfill(context.Background(), io.Discard, root, &backfillOptions{Count: 10, Pages: 2}, "devs")
	require.ErrorIs(t, err, history.ErrConflictingBackfill)
}

func TestServeGraphIsComplete(t *testing.T) {
	t.Parallel()

	require.NoError(t, fx.ValidateApp(serveOptions(&rootOptions{})...))
}
