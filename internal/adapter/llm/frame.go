package llm

import (
	"github.com/tidwall/gjson"

	"chatstream/internal/domain"
)

// chunkFrame is the decoded form of one streaming chunk. Presence of
// optional fields is tracked explicitly: an index of 0 and a missing index
// mean different things to the tool-call accumulator.
type chunkFrame struct {
	usage    domain.Usage
	hasUsage bool

	hasChoice    bool
	finishReason string
	hasDelta     bool
	content      string
	toolCalls    []toolCallFragment
}

// toolCallFragment is one entry of choices[0].delta.tool_calls.
type toolCallFragment struct {
	id           string
	hasID        bool
	index        int
	hasIndex     bool
	name         string
	arguments    string
	hasArguments bool
}

// decodeFrame parses one SSE payload. It reports false when the payload is
// not a JSON object; such frames are dropped by the caller.
func decodeFrame(data []byte) (chunkFrame, bool) {
	if !gjson.ValidBytes(data) {
		return chunkFrame{}, false
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return chunkFrame{}, false
	}

	var f chunkFrame
	if u := root.Get("usage"); u.IsObject() {
		f.hasUsage = true
		f.usage = parseUsage(u)
	}

	choice := root.Get("choices.0")
	if !choice.IsObject() {
		return f, true
	}
	f.hasChoice = true

	if fr := choice.Get("finish_reason"); fr.Type == gjson.String {
		f.finishReason = fr.String()
	}

	delta := choice.Get("delta")
	if !delta.IsObject() {
		return f, true
	}
	f.hasDelta = true

	if c := delta.Get("content"); c.Type == gjson.String {
		f.content = c.String()
	}
	delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		if tc.IsObject() {
			f.toolCalls = append(f.toolCalls, parseToolCallFragment(tc))
		}
		return true
	})
	return f, true
}

func parseToolCallFragment(tc gjson.Result) toolCallFragment {
	var frag toolCallFragment
	if id := tc.Get("id"); id.Type == gjson.String && id.String() != "" {
		frag.id = id.String()
		frag.hasID = true
	}
	if idx := tc.Get("index"); idx.Type == gjson.Number {
		frag.index = int(idx.Int())
		frag.hasIndex = true
	}
	if name := tc.Get("function.name"); name.Type == gjson.String {
		frag.name = name.String()
	}
	// Some servers send "" on the first fragment; it carries nothing.
	if args := tc.Get("function.arguments"); args.Type == gjson.String && args.String() != "" {
		frag.arguments = args.String()
		frag.hasArguments = true
	}
	return frag
}

func parseUsage(u gjson.Result) domain.Usage {
	usage := domain.Usage{
		InputTokens:  int(u.Get("prompt_tokens").Int()),
		OutputTokens: int(u.Get("completion_tokens").Int()),
		TotalTokens:  int(u.Get("total_tokens").Int()),
	}
	if !u.Get("total_tokens").Exists() {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return usage
}
