package domain

// StreamPartType is the kind tag of a StreamPart.
type StreamPartType string

// Stream part kinds, in the order a well-formed stream may produce them.
const (
	PartTextStart      StreamPartType = "text-start"
	PartTextDelta      StreamPartType = "text-delta"
	PartTextEnd        StreamPartType = "text-end"
	PartToolInputStart StreamPartType = "tool-input-start"
	PartToolInputDelta StreamPartType = "tool-input-delta"
	PartToolInputEnd   StreamPartType = "tool-input-end"
	PartToolCall       StreamPartType = "tool-call"
	PartFinish         StreamPartType = "finish"
)

// FinishReason is the normalized reason a generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
	FinishUnknown       FinishReason = "unknown"
)

// StreamPart is one normalized event of a streaming response. Only the
// fields relevant to Type are set:
//
//	text-start, text-end             ID
//	text-delta                       ID, Delta
//	tool-input-start                 ID, ToolName
//	tool-input-delta                 ID, Delta
//	tool-input-end                   ID
//	tool-call                        ToolCallID, ToolName, Input
//	finish                           Usage, FinishReason
type StreamPart struct {
	Type         StreamPartType `json:"type"`
	ID           string         `json:"id,omitempty"`
	Delta        string         `json:"delta,omitempty"`
	ToolCallID   string         `json:"toolCallId,omitempty"`
	ToolName     string         `json:"toolName,omitempty"`
	Input        string         `json:"input,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
	FinishReason FinishReason   `json:"finishReason,omitempty"`
}

// TextStart opens the text span id.
func TextStart(id string) StreamPart {
	return StreamPart{Type: PartTextStart, ID: id}
}

// TextDelta carries one text fragment of span id.
func TextDelta(id, delta string) StreamPart {
	return StreamPart{Type: PartTextDelta, ID: id, Delta: delta}
}

// TextEnd closes the text span id.
func TextEnd(id string) StreamPart {
	return StreamPart{Type: PartTextEnd, ID: id}
}

// ToolInputStart opens the argument stream of tool call id.
func ToolInputStart(id, toolName string) StreamPart {
	return StreamPart{Type: PartToolInputStart, ID: id, ToolName: toolName}
}

// ToolInputDelta carries one raw argument fragment of tool call id.
func ToolInputDelta(id, delta string) StreamPart {
	return StreamPart{Type: PartToolInputDelta, ID: id, Delta: delta}
}

// ToolInputEnd closes the argument stream of tool call id.
func ToolInputEnd(id string) StreamPart {
	return StreamPart{Type: PartToolInputEnd, ID: id}
}

// ToolCallPart is the completed form of a streamed tool invocation.
func ToolCallPart(id, toolName, input string) StreamPart {
	return StreamPart{Type: PartToolCall, ToolCallID: id, ToolName: toolName, Input: input}
}

// Finish copies usage so later mutation by the producer is not observed.
func Finish(usage Usage, reason FinishReason) StreamPart {
	u := usage
	return StreamPart{Type: PartFinish, Usage: &u, FinishReason: reason}
}
