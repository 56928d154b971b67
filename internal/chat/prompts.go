package chat

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// DefaultPersona is the system prompt used when none is configured.
// It is a text/template rendered with PromptParams.
const DefaultPersona = `Your name is {{.BotName}}. You hang around a team's Slack workspace as its court jester.
Much like a jester may mock the king, you tease and dunk on team members to keep things funny.
Keep your replies short and sweet, and don't hesitate to roast.

Messages reach you as "[Name at time] text". Never start your own reply with that header.
You may answer in Slack mrkdwn or plain text. To mention someone, write <@Name> with a name from the roster.
If you have nothing worth saying, reply with exactly: pass

# roster
{{- range .Roster}}
- {{.Name}}: <@{{.Name}}>
{{- end}}
`

// DefaultInstruction is the final turn appended after the history.
const DefaultInstruction = "You are {{.BotName}}. Generate a response, if desired."

// PromptParams contains parameters for generating system prompts
type PromptParams struct {
	BotName string
	Roster  []RosterName
	Now     time.Time
}

// RosterName is one user the model may mention.
type RosterName struct {
	Name string
}

// Prompts renders the persona and the trailing instruction.
type Prompts struct {
	persona     *template.Template
	instruction *template.Template
}

// NewPrompts parses the persona and instruction templates. Empty strings select the defaults.
func NewPrompts(persona, instruction string) (*Prompts, error) {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	p, err := template.New("persona").Option("missingkey=error").Parse(persona)
	if err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	i, err := template.New("instruction").Option("missingkey=error").Parse(instruction)
	if err != nil {
		return nil, fmt.Errorf("parse instruction: %w", err)
	}
	return &Prompts{persona: p, instruction: i}, nil
}

// System renders the system instruction.
func (p *Prompts) System(params PromptParams) (string, error) {
	return render(p.persona, params)
}

// Instruction renders the final instruction turn.
func (p *Prompts) Instruction(params PromptParams) (string, error) {
	return render(p.instruction, params)
}

func render(t *template.Template, params PromptParams) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, params); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}

// FormatTime formats a message time as it appears in turn headers.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}
