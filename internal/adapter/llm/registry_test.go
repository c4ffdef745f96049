package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/domain"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	m := &mockModel{name: "openai"}
	require.NoError(t, reg.Register(m))

	got, err := reg.Get("openai")
	require.NoError(t, err)
	assert.Same(t, m, got)
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&mockModel{name: "openai"}))

	err := reg.Register(&mockModel{name: "openai"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryNotFound(t *testing.T) {
	_, err := NewRegistry().Get("nope")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
	assert.Equal(t, domain.CodeProviderNotFound, domain.ErrorCodeOf(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"openrouter", "local", "openai"} {
		require.NoError(t, reg.Register(&mockModel{name: n}))
	}
	assert.Equal(t, []string{"local", "openai", "openrouter"}, reg.List())
	assert.Empty(t, NewRegistry().List())
}
