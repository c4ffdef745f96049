package domain

import "encoding/json"

// ToolDefinition describes a function the model may call.
// Parameters holds a JSON-Schema-like object; providers normalize it before
// sending.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
// Arguments is the raw JSON text produced by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolChoiceType selects how the model may use tools.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceNone     ToolChoiceType = "none"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceTool     ToolChoiceType = "tool"
)

// ToolChoice is the tool-choice policy of a request. ToolName is only used
// with ToolChoiceTool.
type ToolChoice struct {
	Type     ToolChoiceType `json:"type"`
	ToolName string         `json:"toolName,omitempty"`
}
