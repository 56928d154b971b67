package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// OpenAIProvider generates structured replies with any OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewOpenAIProvider(log *slog.Logger, apiKey, baseURL, model string, timeout time.Duration) *OpenAIProvider {
	if log == nil {
		log = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  log.With(slog.String("provider", "openai")),
	}
}

var openAIDecisionSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"should_message": {Type: jsonschema.Boolean, Description: decisionDescription},
		"message":        {Type: jsonschema.String, Description: "The message to send, or an empty string."},
	},
	Required:             []string{"should_message", "message"},
	AdditionalProperties: false,
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    buildOpenAIMessages(req),
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "reply_decision",
				Schema: &openAIDecisionSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, ErrEmptyResponse
	}
	d, err := decodeDecision(resp.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	result := d.result()
	result.Model = resp.Model
	result.Provider = string(ClientTypeOpenAI)
	result.Usage = Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return result, nil
}

func buildOpenAIMessages(req Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Turns)+1)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, turn := range req.Turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		if len(turn.Parts) == 1 && turn.Parts[0].Image == nil {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Parts[0].Text})
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			if part.Image == nil {
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: part.Text})
				continue
			}
			url := part.Image.URL
			if len(part.Image.Data) > 0 {
				url = "data:" + part.Image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(part.Image.Data)
			}
			if url == "" {
				continue
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
			})
		}
		// Assistant messages cannot carry images in the chat completions API.
		if role == openai.ChatMessageRoleAssistant {
			parts = textOnly(parts)
		}
		if len(parts) == 0 {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return msgs
}

func textOnly(parts []openai.ChatMessagePart) []openai.ChatMessagePart {
	out := parts[:0]
	for _, p := range parts {
		if p.Type == openai.ChatMessagePartTypeText {
			out = append(out, p)
		}
	}
	return out
}
