package llm

import "chatstream/internal/domain"

// textSpan brackets the narrative text of one stream. The protocol carries
// at most one text stream, so a single span id is used.
type textSpan struct {
	id      string
	started bool
	ended   bool
}

func newTextSpan(id string) *textSpan {
	return &textSpan{id: id}
}

// append returns the parts for one text fragment. Empty fragments and text
// arriving after the span was closed produce nothing.
func (s *textSpan) append(text string) []domain.StreamPart {
	if text == "" || s.ended {
		return nil
	}
	if !s.started {
		s.started = true
		return []domain.StreamPart{domain.TextStart(s.id), domain.TextDelta(s.id, text)}
	}
	return []domain.StreamPart{domain.TextDelta(s.id, text)}
}

// close ends a started span. Calling it again is a no-op.
func (s *textSpan) close() []domain.StreamPart {
	if !s.started || s.ended {
		return nil
	}
	s.ended = true
	return []domain.StreamPart{domain.TextEnd(s.id)}
}
