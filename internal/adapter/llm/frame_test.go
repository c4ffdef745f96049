package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/domain"
)

func TestDecodeFrameRejectsInvalid(t *testing.T) {
	for _, payload := range []string{`{invalid json}`, `[1,2]`, `"text"`, `42`, ``} {
		_, ok := decodeFrame([]byte(payload))
		assert.False(t, ok, "payload %q", payload)
	}
}

func TestDecodeFrameTextDelta(t *testing.T) {
	f, ok := decodeFrame([]byte(`{"id":"x","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"},"finish_reason":null}]}`))
	require.True(t, ok)
	assert.True(t, f.hasChoice)
	assert.True(t, f.hasDelta)
	assert.Equal(t, "Hi", f.content)
	assert.Empty(t, f.finishReason)
	assert.False(t, f.hasUsage)
}

func TestDecodeFrameUsageOnly(t *testing.T) {
	f, ok := decodeFrame([]byte(`{"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	require.True(t, ok)
	assert.False(t, f.hasChoice)
	require.True(t, f.hasUsage)
	assert.Equal(t, domain.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, f.usage)
}

func TestDecodeFrameUsageTotalDerived(t *testing.T) {
	f, ok := decodeFrame([]byte(`{"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	require.True(t, ok)
	assert.Equal(t, 7, f.usage.TotalTokens)
}

func TestDecodeFrameUsageExplicitZeroTotalKept(t *testing.T) {
	f, ok := decodeFrame([]byte(`{"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":0}}`))
	require.True(t, ok)
	assert.Equal(t, domain.Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 0}, f.usage)
}

func TestDecodeFrameNullUsageIgnored(t *testing.T) {
	f, ok := decodeFrame([]byte(`{"choices":[{"delta":{}}],"usage":null}`))
	require.True(t, ok)
	assert.False(t, f.hasUsage)
}

func TestDecodeFrameEmptyFinishReason(t *testing.T) {
	f, ok := decodeFrame([]byte(`{"choices":[{"delta":{"content":"a"},"finish_reason":""}]}`))
	require.True(t, ok)
	assert.Empty(t, f.finishReason)
}

func TestDecodeFrameToolCallFragments(t *testing.T) {
	payload := `{"choices":[{"delta":{"tool_calls":[
		{"index":0,"id":"call_1","type":"function","function":{"name":"lookup","arguments":""}},
		{"index":1,"function":{"arguments":"{\"q\":"}},
		{"id":"","function":{"name":""}},
		"garbage"
	]}}]}`
	f, ok := decodeFrame([]byte(payload))
	require.True(t, ok)
	require.Len(t, f.toolCalls, 3)

	first := f.toolCalls[0]
	assert.True(t, first.hasID)
	assert.Equal(t, "call_1", first.id)
	assert.True(t, first.hasIndex)
	assert.Equal(t, 0, first.index)
	assert.Equal(t, "lookup", first.name)
	assert.False(t, first.hasArguments, "empty arguments carry nothing")

	second := f.toolCalls[1]
	assert.False(t, second.hasID)
	assert.True(t, second.hasIndex)
	assert.Equal(t, 1, second.index)
	assert.True(t, second.hasArguments)
	assert.Equal(t, `{"q":`, second.arguments)

	third := f.toolCalls[2]
	assert.False(t, third.hasID)
	assert.False(t, third.hasIndex)
	assert.Empty(t, third.name)
}
