package models

import "encoding/json"

// PromptRequest is one generation unit sent to the Fabric backend.
type PromptRequest struct {
	UserInput    string            `json:"userInput,omitempty"`
	PatternName  string            `json:"patternName,omitempty"`
	StrategyName string            `json:"strategyName,omitempty"`
	SessionName  string            `json:"sessionName,omitempty"`
	ContextName  string            `json:"contextName,omitempty"`
	Model        string            `json:"model,omitempty"`
	Vendor       string            `json:"vendor,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
}

// Usable reports whether the prompt carries anything to generate from.
func (p PromptRequest) Usable() bool {
	return p.UserInput != "" || p.PatternName != ""
}

// ChatRequestPayload is the canonical request forwarded upstream.
// Nil generation parameters are omitted rather than sent as zero.
type ChatRequestPayload struct {
	Prompts          []PromptRequest `json:"prompts"`
	Language         string          `json:"language,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"topP,omitempty"`
	FrequencyPenalty *float64        `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64        `json:"presencePenalty,omitempty"`

	// Passthrough holds backend options copied verbatim. They are written
	// as top-level keys next to the fields above.
	Passthrough map[string]any `json:"-"`
}

// MarshalJSON flattens Passthrough into the top-level object. Known fields
// win over a passthrough key of the same name.
func (p ChatRequestPayload) MarshalJSON() ([]byte, error) {
	type plain ChatRequestPayload
	known, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	if len(p.Passthrough) == 0 {
		return known, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(fields)+len(p.Passthrough))
	for k, v := range p.Passthrough {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Frame types emitted by the Fabric backend on its event stream.
const (
	FrameContent  = "content"
	FrameError    = "error"
	FrameComplete = "complete"
)

// StreamFrame is one decoded event from the backend stream.
type StreamFrame struct {
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"` // "markdown" | "mermaid" | "plain"
	Content string `json:"content"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message formats.
const (
	FormatMarkdown = "markdown"
	FormatPlain    = "plain"
	FormatLoading  = "loading"
	FormatDiagram  = "diagram"
)

// Message is one entry of a chat session history.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Format  string `json:"format"`
}
