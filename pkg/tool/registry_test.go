package tool

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTool(name string, typ Type) Tool {
	return NewFunc(Definition{
		Name:        name,
		Type:        typ,
		Description: "test tool " + name,
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "ok", nil
	})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(testTool("calculator", TypeFunction), false))

	got, err := r.Get("calculator")
	require.NoError(t, err)
	assert.Equal(t, "calculator", got.Definition().Name)

	def, err := r.GetDefinition("calculator")
	require.NoError(t, err)
	assert.Equal(t, TypeFunction, def.Type)

	assert.True(t, r.Has("calculator"))
	assert.False(t, r.Has("missing"))
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(testTool("echo", TypeFunction), false))

	err := r.Register(testTool("echo", TypeFunction), false)
	require.Error(t, err)
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "tool_already_registered", regErr.Code)

	// replace=true overwrites
	require.NoError(t, r.Register(testTool("echo", TypeAPI), true))
	def, err := r.GetDefinition("echo")
	require.NoError(t, err)
	assert.Equal(t, TypeAPI, def.Type)
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("nope")
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "tool_not_found", regErr.Code)

	require.Error(t, r.Unregister("nope"))
}

func TestRegistry_ListSortedAndFiltered(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(testTool("zeta", TypeFunction), false))
	require.NoError(t, r.Register(testTool("alpha", TypeLLM), false))
	require.NoError(t, r.Register(testTool("mid", TypeFunction), false))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.List())
	assert.Equal(t, []string{"alpha"}, r.List(TypeLLM))
	assert.Equal(t, []string{"mid", "zeta"}, r.List(TypeFunction))

	// Definitions preserve insertion order for prompt rendering.
	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "zeta", defs[0].Name)
	assert.Equal(t, "alpha", defs[1].Name)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testTool("x", TypeFunction), false))

	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.False(t, r.Has("x"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(testTool(fmt.Sprintf("tool-%d", i), TypeFunction), false)
		}(i)
		go func(i int) {
			defer wg.Done()
			r.List()
			r.Has(fmt.Sprintf("tool-%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Count())
}

func TestDefault_Singleton(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}

func TestTypeCategory(t *testing.T) {
	tests := []struct {
		typ  Type
		want Category
	}{
		{TypeLLM, CategoryLLM},
		{TypeDatabase, CategoryDatabase},
		{TypeAPI, CategoryExternal},
		{TypeSearch, CategoryExternal},
		{TypeFileRead, CategoryExternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.Category(), "type %s", tt.typ)
	}
}
