package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decisionDescription steers how often the model chooses to speak.
const decisionDescription = "Do you want to message the team? Careful not to message too much or too little: " +
	"replying to every message is too much, fewer than once a week is too little."

// decision is the structured reply both providers are asked for.
type decision struct {
	ShouldMessage bool   `json:"should_message"`
	Message       string `json:"message"`
}

// decodeDecision parses a structured reply. Code fences around the JSON are tolerated.
func decodeDecision(raw string) (decision, error) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if body == "" {
		return decision{}, ErrEmptyResponse
	}
	var d decision
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	return d, nil
}

func (d decision) result() Result {
	text := strings.TrimSpace(d.Message)
	return Result{Text: text, Abstain: !d.ShouldMessage || text == ""}
}
