package fixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/obay/internal/schema"
	"github.com/mesh-intelligence/obay/pkg/types"
)

func TestValid_PassesSchema(t *testing.T) {
	schemas, err := schema.LoadAll(schema.Embedded(), types.StandardKinds)
	require.NoError(t, err)

	g := New(42)
	for _, kind := range types.StandardKinds {
		t.Run(kind.Name, func(t *testing.T) {
			for range 50 {
				rec, err := g.Valid(kind)
				require.NoError(t, err)
				assert.Empty(t, rec.ID())
				require.NoError(t, schemas[kind.Name].Validate(rec), "%v", rec)
			}
		})
	}
}

func TestValid_Deterministic(t *testing.T) {
	a, err := New(7).Valid(types.KindWord)
	require.NoError(t, err)
	b, err := New(7).Valid(types.KindWord)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValid_WordPartsUnique(t *testing.T) {
	g := New(1)
	for range 100 {
		rec, err := g.Valid(types.KindWord)
		require.NoError(t, err)
		parts := rec["partsOfSpeech"].([]any)
		require.NotEmpty(t, parts)
		seen := map[any]bool{}
		for _, p := range parts {
			assert.False(t, seen[p], "duplicate part %v", p)
			seen[p] = true
		}
	}
}

func TestValid_UnknownKind(t *testing.T) {
	_, err := New(1).Valid(types.Kind{Name: "widget"})
	assert.Error(t, err)
}
