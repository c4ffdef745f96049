package llm

import (
	"errors"
	"strings"

	"chatstream/internal/domain"
)

// emptyToolInput is reported for a call that never received arguments.
const emptyToolInput = "{}"

var (
	errFragmentUncorrelated = errors.New("tool call fragment has no id and an unknown index")
	errToolCallCompleted    = errors.New("tool call already completed")
)

type toolCallState struct {
	id   string
	name string

	args    strings.Builder
	written bool

	// pending holds argument deltas received before the name, so that
	// tool-input-start is still the first part emitted for the call.
	pending []string

	started   bool
	completed bool
}

func (s *toolCallState) input() string {
	if !s.written {
		return emptyToolInput
	}
	return s.args.String()
}

func (s *toolCallState) start() []domain.StreamPart {
	s.started = true
	parts := make([]domain.StreamPart, 0, 1+len(s.pending))
	parts = append(parts, domain.ToolInputStart(s.id, s.name))
	for _, d := range s.pending {
		parts = append(parts, domain.ToolInputDelta(s.id, d))
	}
	s.pending = nil
	return parts
}

// toolCallAccumulator reassembles streamed tool calls. Fragments address a
// call by id on first mention and usually by positional index afterwards;
// indexToID is the correlation between the two.
type toolCallAccumulator struct {
	calls     map[string]*toolCallState
	order     []*toolCallState
	indexToID map[int]string
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		calls:     make(map[string]*toolCallState),
		indexToID: make(map[int]string),
	}
}

// resolve maps a fragment to its call id. An explicit id always wins and
// (re)binds the index; a bare index resolves only if already bound.
func (a *toolCallAccumulator) resolve(f toolCallFragment) (string, bool) {
	if f.hasID {
		if f.hasIndex {
			a.indexToID[f.index] = f.id
		}
		return f.id, true
	}
	if f.hasIndex {
		id, ok := a.indexToID[f.index]
		return id, ok
	}
	return "", false
}

// apply folds one fragment into the accumulator and returns the parts it
// produces. Dropped fragments return an error describing why.
func (a *toolCallAccumulator) apply(f toolCallFragment) ([]domain.StreamPart, error) {
	id, ok := a.resolve(f)
	if !ok {
		return nil, errFragmentUncorrelated
	}

	call, ok := a.calls[id]
	if !ok {
		call = &toolCallState{id: id}
		a.calls[id] = call
		a.order = append(a.order, call)
	}
	if call.completed {
		return nil, errToolCallCompleted
	}

	var parts []domain.StreamPart
	if f.name != "" && call.name == "" && !call.started {
		call.name = f.name
		parts = append(parts, call.start()...)
	}

	if f.hasArguments {
		call.args.WriteString(f.arguments)
		call.written = true
		if call.started {
			parts = append(parts, domain.ToolInputDelta(id, f.arguments))
		} else {
			call.pending = append(call.pending, f.arguments)
		}
	}
	return parts, nil
}

// flush completes every open call in creation order. Completed calls are
// skipped, so flushing twice emits nothing the second time.
func (a *toolCallAccumulator) flush() []domain.StreamPart {
	var parts []domain.StreamPart
	for _, call := range a.order {
		if call.completed {
			continue
		}
		if !call.started {
			parts = append(parts, call.start()...)
		}
		parts = append(parts,
			domain.ToolInputEnd(call.id),
			domain.ToolCallPart(call.id, call.name, call.input()),
		)
		call.completed = true
	}
	return parts
}

// len reports the number of calls seen so far.
func (a *toolCallAccumulator) len() int { return len(a.order) }
