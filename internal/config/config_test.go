package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultBackfillCount, cfg.History.BackfillCount)
	assert.Equal(t, DefaultPageSize, cfg.History.PageSize)
	assert.Equal(t, DefaultSettleDelay, cfg.Preview.SettleDelay)
	assert.True(t, cfg.Reply.MentionBypassesStaleness)
	assert.InDelta(t, DefaultTemperature, cfg.Model.Temperature, 0.0001)
}

func TestLoadDecodesFileAndEnvFallback(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("SLACK_APP_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "gem-key")

	path := writeConfig(t, `
[slack]
app_token = "xapp-file"
bot_name = "Evil Robbie"

[directory]
free_channels = ["devs"]

[directory.users]
Eric = "U02KC6BS7"

[directory.known_channels]
devs = "C01T0PC528P"

[history]
backfill_count = 250
page_size = 50

[preview]
settle_delay = "2s"

[reply]
mention_bypasses_staleness = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "xoxb-env", cfg.Slack.BotToken)
	assert.Equal(t, "xapp-file", cfg.Slack.AppToken)
	assert.Equal(t, "gem-key", cfg.Model.APIKey)
	assert.Equal(t, "Evil Robbie", cfg.Slack.BotName)
	assert.Equal(t, "U02KC6BS7", cfg.Directory.Users["Eric"])
	assert.Equal(t, "C01T0PC528P", cfg.Directory.KnownChannels["devs"])
	assert.Equal(t, []string{"devs"}, cfg.Directory.FreeChannels)
	assert.Equal(t, 250, cfg.History.BackfillCount)
	assert.Equal(t, 50, cfg.History.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Preview.SettleDelay)
	assert.False(t, cfg.Reply.MentionBypassesStaleness)
	require.NoError(t, cfg.ValidateServe())
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	path := writeConfig(t, "[slack\nbot_token = 1")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_APP_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")

	base, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	base.Slack.BotToken = "xoxb"

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with token", mutate: func(*Config) {}},
		{name: "missing bot token", mutate: func(c *Config) { c.Slack.BotToken = "" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.Model.Provider = "ollama" }, wantErr: true},
		{name: "page size too large", mutate: func(c *Config) { c.History.PageSize = 5000 }, wantErr: true},
		{name: "temperature out of range", mutate: func(c *Config) { c.Model.Temperature = 3 }, wantErr: true},
		{name: "blank free channel", mutate: func(c *Config) { c.Directory.FreeChannels = []string{" "} }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		err := cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestValidateServeRequiresSocketAndModelCredentials(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb")
	t.Setenv("SLACK_APP_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Error(t, cfg.ValidateServe())

	cfg.Slack.AppToken = "xapp"
	require.Error(t, cfg.ValidateServe())

	cfg.Model.APIKey = "key"
	require.NoError(t, cfg.ValidateServe())
}
