package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordClone(t *testing.T) {
	orig := Record{
		"id":    "r1",
		"name":  "a",
		"words": []any{"x", "y"},
		"meta":  map[string]any{"n": float64(1)},
	}
	cp := orig.Clone()
	require.Equal(t, orig, cp)

	cp["words"].([]any)[0] = "changed"
	cp["meta"].(map[string]any)["n"] = float64(2)
	assert.Equal(t, "x", orig["words"].([]any)[0])
	assert.Equal(t, float64(1), orig["meta"].(map[string]any)["n"])
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "", Record(nil).ID())
	assert.Equal(t, "", Record{"id": 5}.ID())
	assert.Equal(t, "abc", Record{"id": "abc"}.ID())
	assert.Equal(t, "z", Record{"name": "n"}.WithID("z").ID())
}

func TestNewID(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestScalarEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"float and int", float64(5), 5, true},
		{"int64 and float", int64(3), float64(3), true},
		{"different numbers", float64(5), float64(6), false},
		{"number and string", float64(5), "5", false},
		{"strings", "a", "a", true},
		{"bools", true, true, true},
		{"bool and number", true, float64(1), false},
		{"nils", nil, nil, true},
		{"slices never equal", []any{"a"}, []any{"a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScalarEqual(tt.a, tt.b))
		})
	}
}

func TestFeedQueryMatches(t *testing.T) {
	rec := Record{"id": "1", "name": "a", "count": float64(2)}

	assert.True(t, FeedQuery{}.Matches(rec))
	assert.True(t, FeedQuery{ID: "1"}.Matches(rec))
	assert.False(t, FeedQuery{ID: "2"}.Matches(rec))
	assert.True(t, FeedQuery{Filters: map[string]any{"name": "a", "count": float64(2)}}.Matches(rec))
	assert.False(t, FeedQuery{Filters: map[string]any{"name": "b"}}.Matches(rec))
	assert.False(t, FeedQuery{Filters: map[string]any{"missing": "x"}}.Matches(rec))
	assert.False(t, FeedQuery{}.Matches(nil))
}

func TestFromChange(t *testing.T) {
	t.Run("zero change is not found", func(t *testing.T) {
		env := FromChange(Change{})
		assert.False(t, env.Found)
		assert.Nil(t, env.Result)
	})
	t.Run("insert returns new value", func(t *testing.T) {
		env := FromChange(Change{NewVal: Record{"id": "1"}})
		assert.True(t, env.Found)
		assert.Equal(t, Record{"id": "1"}, env.Record())
		assert.Nil(t, env.OldVal)
	})
	t.Run("delete returns old value", func(t *testing.T) {
		env := FromChange(Change{OldVal: Record{"id": "1"}})
		assert.True(t, env.Found)
		assert.Equal(t, Record{"id": "1"}, env.Record())
		assert.Equal(t, Record{"id": "1"}, env.OldVal)
	})
}

func TestChangeEventJSON(t *testing.T) {
	b, err := json.Marshal(ReadyEvent())
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"ready"}`, string(b))

	b, err = json.Marshal(ChangeEvent{Change: Change{NewVal: Record{"id": "1"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"new_val":{"id":"1"}}`, string(b))

	b, err = json.Marshal(ChangeEvent{Change: Change{OldVal: Record{"id": "1"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"old_val":{"id":"1"}}`, string(b))

	assert.Equal(t, "state", ReadyEvent().Name())
	assert.Equal(t, "record", ChangeEvent{}.Name())
}

func TestEnvelopeJSON(t *testing.T) {
	n := 3
	b, err := json.Marshal(Envelope{Result: []Record{}, Count: &n, Found: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":[],"count":3,"found":true}`, string(b))

	b, err = json.Marshal(NotFound())
	require.NoError(t, err)
	assert.JSONEq(t, `{"found":false}`, string(b))
}
