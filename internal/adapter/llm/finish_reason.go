package llm

import "chatstream/internal/domain"

// mapFinishReason normalizes an OpenAI-compatible finish_reason.
func mapFinishReason(raw string) domain.FinishReason {
	switch raw {
	case "stop":
		return domain.FinishStop
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	case "tool_calls", "function_call":
		return domain.FinishToolCalls
	default:
		return domain.FinishUnknown
	}
}
