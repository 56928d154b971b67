package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultSlackBaseURL   = "https://slack.com/api"
	DefaultBotName        = "Jester"
	DefaultBackfillCount  = 1000
	DefaultPageSize       = 100
	DefaultMaxImageBytes  = 20 * 1024 * 1024
	DefaultFetchTimeout   = 20 * time.Second
	DefaultSettleDelay    = 5 * time.Second
	DefaultViewportWidth  = 412
	DefaultViewportHeight = 915
	DefaultModelProvider  = "google"
	DefaultGoogleModel    = "gemini-1.5-flash"
	DefaultTemperature    = 1.5
	DefaultModelTimeout   = 90 * time.Second
	DefaultFallbackText   = "my brain just fell out of my ear. give me a minute."
	DefaultStatusSchedule = "@every 10m"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Slack     SlackConfig     `toml:"slack"`
	Directory DirectoryConfig `toml:"directory"`
	History   HistoryConfig   `toml:"history"`
	Preview   PreviewConfig   `toml:"preview"`
	Model     ModelConfig     `toml:"model"`
	Reply     ReplyConfig     `toml:"reply"`
	Status    StatusConfig    `toml:"status"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type SlackConfig struct {
	BotToken string `toml:"bot_token" validate:"required"`
	AppToken string `toml:"app_token"`
	BaseURL  string `toml:"base_url" validate:"required,url"`
	// BotName is the alias the bot answers to in prompts and rosters.
	BotName           string  `toml:"bot_name" validate:"required"`
	SendRatePerSecond float64 `toml:"send_rate_per_second" validate:"gte=0"`
}

// DirectoryConfig maps human-readable names to Slack identifiers.
type DirectoryConfig struct {
	Users         map[string]string `toml:"users"`
	KnownChannels map[string]string `toml:"known_channels"`
	// FreeChannels lists channels (by name or ID) where the bot may reply unprompted.
	FreeChannels []string `toml:"free_channels"`
}

type HistoryConfig struct {
	BackfillCount int           `toml:"backfill_count" validate:"gte=0"`
	PageSize      int           `toml:"page_size" validate:"gte=1,lte=1000"`
	Preload       []string      `toml:"preload"`
	MaxImageBytes int64         `toml:"max_image_bytes" validate:"gt=0"`
	FetchTimeout  time.Duration `toml:"fetch_timeout" validate:"gt=0"`
}

type PreviewConfig struct {
	Enabled        bool          `toml:"enabled"`
	SettleDelay    time.Duration `toml:"settle_delay" validate:"gte=0"`
	ViewportWidth  int           `toml:"viewport_width" validate:"gt=0"`
	ViewportHeight int           `toml:"viewport_height" validate:"gt=0"`
	ChromePath     string        `toml:"chrome_path"`
}

type ModelConfig struct {
	Provider     string        `toml:"provider" validate:"oneof=google openai"`
	Name         string        `toml:"name" validate:"required"`
	APIKey       string        `toml:"api_key"`
	BaseURL      string        `toml:"base_url" validate:"omitempty,url"`
	Temperature  float32       `toml:"temperature" validate:"gte=0,lte=2"`
	FallbackText string        `toml:"fallback_text" validate:"required"`
	Timeout      time.Duration `toml:"timeout" validate:"gt=0"`
}

type ReplyConfig struct {
	// MentionBypassesStaleness lets replies to mentions and DMs through even when
	// newer activity arrived while generating.
	MentionBypassesStaleness bool   `toml:"mention_bypasses_staleness"`
	Instruction              string `toml:"instruction"`
	Persona                  string `toml:"persona"`
	MaxTurnBytes             int    `toml:"max_turn_bytes" validate:"gte=0"`
}

type StatusConfig struct {
	LogSchedule string `toml:"log_schedule"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Slack: SlackConfig{
			BaseURL:           DefaultSlackBaseURL,
			BotName:           DefaultBotName,
			SendRatePerSecond: 1,
		},
		History: HistoryConfig{
			BackfillCount: DefaultBackfillCount,
			PageSize:      DefaultPageSize,
			MaxImageBytes: DefaultMaxImageBytes,
			FetchTimeout:  DefaultFetchTimeout,
		},
		Preview: PreviewConfig{
			Enabled:        true,
			SettleDelay:    DefaultSettleDelay,
			ViewportWidth:  DefaultViewportWidth,
			ViewportHeight: DefaultViewportHeight,
		},
		Model: ModelConfig{
			Provider:     DefaultModelProvider,
			Name:         DefaultGoogleModel,
			Temperature:  DefaultTemperature,
			FallbackText: DefaultFallbackText,
			Timeout:      DefaultModelTimeout,
		},
		Reply: ReplyConfig{
			MentionBypassesStaleness: true,
		},
		Status: StatusConfig{
			LogSchedule: DefaultStatusSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyEnv() {
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(os.Getenv(key))
		}
	}
	fill(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	fill(&c.Slack.AppToken, "SLACK_APP_TOKEN")
	switch c.Model.Provider {
	case "google":
		fill(&c.Model.APIKey, "GEMINI_API_KEY")
	case "openai":
		fill(&c.Model.APIKey, "OPENAI_API_KEY")
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. Socket Mode and model credentials are
// checked separately by ValidateServe since offline commands do not need them.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, name := range c.Directory.FreeChannels {
		if strings.TrimSpace(name) == "" {
			return errors.New("invalid config: directory.free_channels contains an empty entry")
		}
	}
	return nil
}

// ValidateServe additionally requires the credentials needed to run the bot.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Slack.AppToken) == "" {
		return errors.New("invalid config: slack.app_token is required for socket mode")
	}
	if strings.TrimSpace(c.Model.APIKey) == "" {
		return errors.New("invalid config: model.api_key is required")
	}
	return nil
}
