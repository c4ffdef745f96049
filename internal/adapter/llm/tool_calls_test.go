package llm

import (
	"errors"
	"testing"

	"chatstream/internal/domain"
)

func idFrag(index int, id, name, args string) toolCallFragment {
	return toolCallFragment{
		id: id, hasID: id != "",
		index: index, hasIndex: true,
		name:      name,
		arguments: args, hasArguments: args != "",
	}
}

func indexFrag(index int, args string) toolCallFragment {
	return toolCallFragment{index: index, hasIndex: true, arguments: args, hasArguments: args != ""}
}

func applyAll(t *testing.T, acc *toolCallAccumulator, frags ...toolCallFragment) []domain.StreamPart {
	t.Helper()
	var parts []domain.StreamPart
	for _, f := range frags {
		p, err := acc.apply(f)
		if err != nil {
			t.Fatalf("apply(%+v): %v", f, err)
		}
		parts = append(parts, p...)
	}
	return parts
}

func TestToolCallAccumulatorResolve(t *testing.T) {
	acc := newToolCallAccumulator()

	if _, ok := acc.resolve(indexFrag(0, "x")); ok {
		t.Fatal("unmapped index should not resolve")
	}
	if id, ok := acc.resolve(idFrag(0, "a", "", "")); !ok || id != "a" {
		t.Fatalf("resolve id = %q, %v; want a, true", id, ok)
	}
	if id, ok := acc.resolve(indexFrag(0, "")); !ok || id != "a" {
		t.Fatalf("resolve index = %q, %v; want a, true", id, ok)
	}

	// An explicit id rebinds the index.
	acc.resolve(idFrag(0, "b", "", ""))
	if id, _ := acc.resolve(indexFrag(0, "")); id != "b" {
		t.Fatalf("rebound index = %q, want b", id)
	}

	// Id without index resolves but binds nothing.
	if id, ok := acc.resolve(toolCallFragment{id: "c", hasID: true}); !ok || id != "c" {
		t.Fatalf("resolve bare id = %q, %v; want c, true", id, ok)
	}
	if acc.indexToID[0] != "b" || len(acc.indexToID) != 1 {
		t.Fatalf("indexToID = %v, want map[0:b]", acc.indexToID)
	}
}

func TestToolCallAccumulatorConcatenatesArguments(t *testing.T) {
	acc := newToolCallAccumulator()
	parts := applyAll(t, acc,
		idFrag(0, "c1", "f", `{"a":`),
		indexFrag(0, `1,"b"`),
		indexFrag(0, `:2}`),
	)
	parts = append(parts, acc.flush()...)

	want := []domain.StreamPart{
		domain.ToolInputStart("c1", "f"),
		domain.ToolInputDelta("c1", `{"a":`),
		domain.ToolInputDelta("c1", `1,"b"`),
		domain.ToolInputDelta("c1", `:2}`),
		domain.ToolInputEnd("c1"),
		domain.ToolCallPart("c1", "f", `{"a":1,"b":2}`),
	}
	assertParts(t, parts, want)
}

func TestToolCallAccumulatorNoArguments(t *testing.T) {
	acc := newToolCallAccumulator()
	parts := applyAll(t, acc, idFrag(0, "c1", "ping", ""))
	parts = append(parts, acc.flush()...)

	want := []domain.StreamPart{
		domain.ToolInputStart("c1", "ping"),
		domain.ToolInputEnd("c1"),
		domain.ToolCallPart("c1", "ping", "{}"),
	}
	assertParts(t, parts, want)
}

func TestToolCallAccumulatorFirstNameWins(t *testing.T) {
	acc := newToolCallAccumulator()
	parts := applyAll(t, acc,
		idFrag(0, "c1", "first", ""),
		idFrag(0, "c1", "second", ""),
	)
	parts = append(parts, acc.flush()...)

	want := []domain.StreamPart{
		domain.ToolInputStart("c1", "first"),
		domain.ToolInputEnd("c1"),
		domain.ToolCallPart("c1", "first", "{}"),
	}
	assertParts(t, parts, want)
}

func TestToolCallAccumulatorArgumentsBeforeName(t *testing.T) {
	acc := newToolCallAccumulator()
	parts := applyAll(t, acc,
		idFrag(0, "c1", "", `{"x"`),
		indexFrag(0, `:1}`),
	)
	if len(parts) != 0 {
		t.Fatalf("parts before name = %v, want none", parts)
	}

	parts = applyAll(t, acc, toolCallFragment{index: 0, hasIndex: true, name: "late"})
	parts = append(parts, acc.flush()...)

	want := []domain.StreamPart{
		domain.ToolInputStart("c1", "late"),
		domain.ToolInputDelta("c1", `{"x"`),
		domain.ToolInputDelta("c1", `:1}`),
		domain.ToolInputEnd("c1"),
		domain.ToolCallPart("c1", "late", `{"x":1}`),
	}
	assertParts(t, parts, want)
}

func TestToolCallAccumulatorNeverNamed(t *testing.T) {
	acc := newToolCallAccumulator()
	applyAll(t, acc, idFrag(0, "c1", "", `{}`))

	want := []domain.StreamPart{
		domain.ToolInputStart("c1", ""),
		domain.ToolInputDelta("c1", `{}`),
		domain.ToolInputEnd("c1"),
		domain.ToolCallPart("c1", "", `{}`),
	}
	assertParts(t, acc.flush(), want)
}

func TestToolCallAccumulatorDropsUncorrelated(t *testing.T) {
	acc := newToolCallAccumulator()
	parts, err := acc.apply(indexFrag(3, `{"lost":true}`))
	if !errors.Is(err, errFragmentUncorrelated) {
		t.Fatalf("err = %v, want errFragmentUncorrelated", err)
	}
	if len(parts) != 0 || acc.len() != 0 {
		t.Fatalf("uncorrelated fragment created state: parts=%v len=%d", parts, acc.len())
	}
}

func TestToolCallAccumulatorFlushIdempotent(t *testing.T) {
	acc := newToolCallAccumulator()
	applyAll(t, acc, idFrag(0, "c1", "f", `{}`))

	if got := len(acc.flush()); got != 2 {
		t.Fatalf("first flush emitted %d parts, want 2", got)
	}
	if got := acc.flush(); len(got) != 0 {
		t.Fatalf("second flush emitted %v, want nothing", got)
	}

	_, err := acc.apply(indexFrag(0, `more`))
	if !errors.Is(err, errToolCallCompleted) {
		t.Fatalf("err = %v, want errToolCallCompleted", err)
	}
}

func TestToolCallAccumulatorCreationOrder(t *testing.T) {
	acc := newToolCallAccumulator()
	applyAll(t, acc,
		idFrag(1, "b", "second", ""),
		idFrag(0, "a", "first", ""),
		indexFrag(1, `{"n":2}`),
		indexFrag(0, `{"n":1}`),
	)

	flushed := acc.flush()
	want := []domain.StreamPart{
		domain.ToolInputEnd("b"),
		domain.ToolCallPart("b", "second", `{"n":2}`),
		domain.ToolInputEnd("a"),
		domain.ToolCallPart("a", "first", `{"n":1}`),
	}
	assertParts(t, flushed, want)
}

func assertParts(t *testing.T, got, want []domain.StreamPart) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d parts, want %d\ngot:  %+v\nwant: %+v", len(got), len(want), got, want)
	}
	for i := range want {
		if !partEqual(got[i], want[i]) {
			t.Errorf("part[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func partEqual(a, b domain.StreamPart) bool {
	if a.Usage != nil && b.Usage != nil {
		if *a.Usage != *b.Usage {
			return false
		}
		a.Usage, b.Usage = nil, nil
	}
	return a == b
}
