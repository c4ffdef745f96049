package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"chatstream/internal/domain"
)

var errStreamConsumed = errors.New("stream already consumed")

// IDGenerator returns a fresh identifier for a text span.
type IDGenerator func() string

// NewULID is the default IDGenerator.
func NewULID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// StreamOptions configures TransformStream.
type StreamOptions struct {
	// MaxFrameBytes bounds one SSE line. Zero means 4 MiB.
	MaxFrameBytes int
	// NewID generates the text span id. Nil means NewULID.
	NewID IDGenerator
	// Logger receives debug records for dropped frames and fragments.
	Logger *slog.Logger
}

// streamSession owns the mutable state of one streaming call. It is not
// safe for concurrent use; the transformer drives it from a single loop.
type streamSession struct {
	usage        domain.Usage
	finishReason domain.FinishReason
	finished     bool

	text   *textSpan
	tools  *toolCallAccumulator
	logger *slog.Logger
}

func newStreamSession(spanID string, logger *slog.Logger) *streamSession {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &streamSession{
		finishReason: domain.FinishStop,
		text:         newTextSpan(spanID),
		tools:        newToolCallAccumulator(),
		logger:       logger,
	}
}

// handleFrame dispatches one SSE payload and returns the parts it produces.
func (s *streamSession) handleFrame(data []byte) []domain.StreamPart {
	f, ok := decodeFrame(data)
	if !ok {
		s.logger.Debug("dropped malformed stream frame", "bytes", len(data))
		return nil
	}

	// Usage is replaced, never merged.
	if f.hasUsage {
		s.usage = f.usage
	}
	if !f.hasChoice {
		return nil
	}
	if f.finishReason != "" {
		s.finishReason = mapFinishReason(f.finishReason)
	}

	var parts []domain.StreamPart
	if f.hasDelta {
		if f.content != "" && s.text.ended {
			s.logger.Debug("dropped text after span end", "span", s.text.id)
		} else {
			parts = append(parts, s.text.append(f.content)...)
		}
		for _, frag := range f.toolCalls {
			p, err := s.tools.apply(frag)
			if err != nil {
				s.logger.Debug("dropped tool call fragment",
					"id", frag.id, "index", frag.index, "reason", err)
				continue
			}
			parts = append(parts, p...)
		}
	}

	// The delta of a finishing frame is delivered before the flush so the
	// last argument fragment lands inside its call.
	if f.finishReason != "" {
		parts = append(parts, s.flush()...)
	}
	return parts
}

// flush closes every open tool call, then the text span.
func (s *streamSession) flush() []domain.StreamPart {
	parts := s.tools.flush()
	return append(parts, s.text.close()...)
}

// finish flushes and appends the terminal part. Only the first call
// produces a finish part.
func (s *streamSession) finish() []domain.StreamPart {
	parts := s.flush()
	if s.finished {
		return parts
	}
	s.finished = true
	return append(parts, domain.Finish(s.usage, s.finishReason))
}

// TransformStream converts an OpenAI-compatible SSE body into normalized
// stream parts. The body is closed when iteration ends, including when the
// consumer stops early, and as soon as ctx is done so that a blocked read
// returns. A read error is yielded once and ends the sequence without a
// finish part. The sequence may be ranged over only once.
func TransformStream(ctx context.Context, body io.ReadCloser, opts StreamOptions) iter.Seq2[domain.StreamPart, error] {
	newID := opts.NewID
	if newID == nil {
		newID = NewULID
	}
	var consumed atomic.Bool

	return func(yield func(domain.StreamPart, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(domain.StreamPart{}, errStreamConsumed)
			return
		}
		closeBody := sync.OnceValue(body.Close)
		stop := context.AfterFunc(ctx, func() { closeBody() })
		defer func() {
			stop()
			closeBody()
		}()

		sess := newStreamSession(newID(), opts.Logger)
		emit := func(parts []domain.StreamPart) bool {
			for _, p := range parts {
				if !yield(p, nil) {
					return false
				}
			}
			return true
		}

		for data, err := range readFrames(ctx, body, opts.MaxFrameBytes) {
			if err != nil {
				yield(domain.StreamPart{}, err)
				return
			}
			if !emit(sess.handleFrame(data)) {
				return
			}
		}
		emit(sess.finish())
	}
}
