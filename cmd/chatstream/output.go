package main

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/charmbracelet/lipgloss"

	"chatstream/internal/domain"
)

// eventWriter prints stream parts either as NDJSON on out, or, in text mode,
// as plain text on out with tool calls and the finish summary on status.
type eventWriter struct {
	out    io.Writer
	status io.Writer
	text   bool
	enc    *json.Encoder

	toolStyle  lipgloss.Style
	mutedStyle lipgloss.Style
	wroteText  bool
}

func newEventWriter(out, status io.Writer, text bool) *eventWriter {
	r := lipgloss.NewRenderer(status)
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &eventWriter{
		out:        out,
		status:     status,
		text:       text,
		enc:        enc,
		toolStyle:  r.NewStyle().Foreground(lipgloss.Color("#5F87FF")).Bold(true),
		mutedStyle: r.NewStyle().Faint(true),
	}
}

// writeStream drains parts and stops at the first error.
func (w *eventWriter) writeStream(parts iter.Seq2[domain.StreamPart, error]) error {
	for part, err := range parts {
		if err != nil {
			return err
		}
		if err := w.writePart(part); err != nil {
			return err
		}
	}
	return nil
}

func (w *eventWriter) writePart(p domain.StreamPart) error {
	if !w.text {
		return w.enc.Encode(p)
	}

	switch p.Type {
	case domain.PartTextDelta:
		w.wroteText = true
		_, err := io.WriteString(w.out, p.Delta)
		return err
	case domain.PartToolCall:
		w.printToolCall(p.ToolName, p.Input)
	case domain.PartFinish:
		if w.wroteText {
			fmt.Fprintln(w.out)
		}
		var usage domain.Usage
		if p.Usage != nil {
			usage = *p.Usage
		}
		w.printSummary(p.FinishReason, usage)
	}
	return nil
}

// writeResult prints a non-streaming result.
func (w *eventWriter) writeResult(res *domain.GenerateResult) error {
	if !w.text {
		return w.enc.Encode(res)
	}

	if text := res.Text(); text != "" {
		if _, err := fmt.Fprintln(w.out, text); err != nil {
			return err
		}
	}
	for _, call := range res.ToolCalls() {
		w.printToolCall(call.ToolName, call.Input)
	}
	w.printSummary(res.FinishReason, res.Usage)
	return nil
}

func (w *eventWriter) printToolCall(name, input string) {
	fmt.Fprintln(w.status, w.toolStyle.Render("→ "+name)+" "+input)
}

func (w *eventWriter) printSummary(reason domain.FinishReason, usage domain.Usage) {
	fmt.Fprintln(w.status, w.mutedStyle.Render(fmt.Sprintf("[%s] tokens: %d in, %d out, %d total",
		reason, usage.InputTokens, usage.OutputTokens, usage.TotalTokens)))
}
