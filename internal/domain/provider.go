package domain

import (
	"context"
	"iter"
)

// LanguageModel is the interface for any chat-completion backend.
type LanguageModel interface {
	// Generate sends a request and returns a complete response.
	Generate(ctx context.Context, req CallRequest) (*GenerateResult, error)
	// Stream sends a request and returns the normalized event sequence.
	// The error return covers connection and HTTP status failures; errors
	// while reading the body are yielded by the sequence, after which it
	// stops. The sequence is single-use. Stopping the range loop early
	// releases the underlying connection. A caller that gets a nil error
	// must range over the sequence (breaking out at once is enough):
	// the connection and any trace span stay open until it does.
	Stream(ctx context.Context, req CallRequest) (iter.Seq2[StreamPart, error], error)
	// Name returns the model's registry identifier (e.g., "openai", "groq").
	Name() string
}
