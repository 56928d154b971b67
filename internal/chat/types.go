package chat

import (
	"context"
	"errors"
)

var (
	// ErrEmptyResponse is returned when the provider answers without any text.
	ErrEmptyResponse = errors.New("chat: empty response")
	// ErrMalformedDecision is returned when a structured reply cannot be decoded.
	ErrMalformedDecision = errors.New("chat: malformed decision")
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an image payload, inline bytes or a URL.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

// Part is one piece of a turn: text or an image.
type Part struct {
	Text  string
	Image *Image
}

// Turn is one message of the prompt sequence.
type Turn struct {
	Role  Role
	Parts []Part
}

// TextTurn builds a single-part text turn.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// Request is the internal request structure
type Request struct {
	System      string
	Turns       []Turn
	Temperature float32
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a generated reply. Abstain is set when the model declined to speak.
type Result struct {
	Text     string
	Abstain  bool
	Model    string
	Provider string
	Usage    Usage
}

// Generator produces one reply for a prompt sequence.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
