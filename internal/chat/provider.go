package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/jester/internal/config"
)

// ClientType represents the type of LLM provider client
type ClientType string

const (
	ClientTypeGoogle ClientType = "google"
	ClientTypeOpenAI ClientType = "openai"
)

// NewGenerator builds the generator selected by the model config.
func NewGenerator(ctx context.Context, log *slog.Logger, cfg config.ModelConfig, images ImageLoader) (Generator, error) {
	switch ClientType(strings.ToLower(strings.TrimSpace(cfg.Provider))) {
	case ClientTypeGoogle:
		return NewGoogleProvider(ctx, log, cfg.APIKey, cfg.Name, images, cfg.Timeout)
	case ClientTypeOpenAI:
		return NewOpenAIProvider(log, cfg.APIKey, cfg.BaseURL, cfg.Name, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}
