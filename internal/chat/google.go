package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ImageLoader downloads an image referenced by URL.
type ImageLoader interface {
	FetchImage(ctx context.Context, url string, header http.Header) ([]byte, string, error)
}

// GoogleProvider generates structured replies with the Gemini API.
type GoogleProvider struct {
	client  *genai.Client
	model   string
	images  ImageLoader
	timeout time.Duration
	logger  *slog.Logger
}

// NewGoogleProvider creates a Gemini-backed generator. URL images are downloaded
// through images since the API only accepts inline bytes for arbitrary hosts.
func NewGoogleProvider(ctx context.Context, log *slog.Logger, apiKey, model string, images ImageLoader, timeout time.Duration) (*GoogleProvider, error) {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GoogleProvider{
		client:  client,
		model:   model,
		images:  images,
		timeout: timeout,
		logger:  log.With(slog.String("provider", "google")),
	}, nil
}

var geminiSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
}

var geminiDecisionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"should_message": {Type: genai.TypeBoolean, Description: decisionDescription},
		"message":        {Type: genai.TypeString, Description: "The message to send, if any."},
	},
	Required: []string{"should_message"},
}

func (p *GoogleProvider) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	contents := p.buildContents(ctx, req.Turns)
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Temperature),
		SafetySettings:   geminiSafety,
		ResponseMIMEType: "application/json",
		ResponseSchema:   geminiDecisionSchema,
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("gemini generate: %w", err)
	}
	d, err := decodeDecision(resp.Text())
	if err != nil {
		return Result{}, err
	}
	result := d.result()
	result.Model = p.model
	result.Provider = string(ClientTypeGoogle)
	if u := resp.UsageMetadata; u != nil {
		result.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return result, nil
}

// buildContents converts turns to Gemini contents. Images that cannot be loaded are dropped.
func (p *GoogleProvider) buildContents(ctx context.Context, turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			if part.Image == nil {
				parts = append(parts, genai.NewPartFromText(part.Text))
				continue
			}
			data, mime := part.Image.Data, part.Image.MIMEType
			if len(data) == 0 && part.Image.URL != "" && p.images != nil {
				var err error
				data, mime, err = p.images.FetchImage(ctx, part.Image.URL, nil)
				if err != nil {
					p.logger.Warn("image dropped from prompt", slog.String("url", part.Image.URL), slog.Any("error", err))
					continue
				}
			}
			if len(data) == 0 {
				continue
			}
			parts = append(parts, genai.NewPartFromBytes(data, mime))
		}
		if len(parts) == 0 {
			continue
		}
		var role genai.Role = genai.RoleUser
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}
