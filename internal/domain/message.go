package domain

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in a conversation.
//
// Tool result messages (Role == RoleTool) carry the id of the call they answer
// in ToolCallID; assistant messages may carry the calls the model requested.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// CallRequest is the provider-neutral input to a language model call.
// Pointer fields are omitted from the wire request when nil.
type CallRequest struct {
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	Tools            []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice       *ToolChoice       `json:"tool_choice,omitempty"`
	MaxOutputTokens  int               `json:"max_output_tokens,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	FrequencyPenalty *float64          `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64          `json:"presence_penalty,omitempty"`
	Seed             *int              `json:"seed,omitempty"`
	StopSequences    []string          `json:"stop_sequences,omitempty"`
	Headers          map[string]string `json:"-"`
}

// GenerateResult is returned from a non-streaming model call.
type GenerateResult struct {
	ID           string        `json:"id"`
	Model        string        `json:"model"`
	Content      []ContentPart `json:"content"`
	FinishReason FinishReason  `json:"finishReason"`
	Usage        Usage         `json:"usage"`
}

// Text concatenates every text part of the result.
func (r *GenerateResult) Text() string {
	var out string
	for _, p := range r.Content {
		if p.Type == ContentText {
			out += p.Text
		}
	}
	return out
}

// ToolCalls returns the tool-call parts of the result in order.
func (r *GenerateResult) ToolCalls() []ContentPart {
	var calls []ContentPart
	for _, p := range r.Content {
		if p.Type == ContentToolCall {
			calls = append(calls, p)
		}
	}
	return calls
}

// ContentType discriminates ContentPart.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentToolCall ContentType = "tool-call"
)

// ContentPart is one block of a non-streaming result.
type ContentPart struct {
	Type       ContentType `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolCallID string      `json:"toolCallId,omitempty"`
	ToolName   string      `json:"toolName,omitempty"`
	Input      string      `json:"input,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}
