package skill

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestResolve(t *testing.T) {
	m1 := Manifest{ID: "m1", Endpoint: "http://m1", Actions: []Action{{ID: "a"}, {ID: "b"}}}
	m2 := Manifest{ID: "x", Endpoint: "http://x"}

	t.Run("matches action id", func(t *testing.T) {
		got, ok := Resolve([]Manifest{m1, m2}, "b")
		require.True(t, ok)
		assert.Equal(t, "m1", got.ID)
	})

	t.Run("falls back to manifest id", func(t *testing.T) {
		got, ok := Resolve([]Manifest{{ID: "m1", Actions: []Action{{ID: "a"}}}, m2}, "x")
		require.True(t, ok)
		assert.Equal(t, "x", got.ID)
	})

	t.Run("unknown intent", func(t *testing.T) {
		got, ok := Resolve([]Manifest{m1, m2}, "unknown")
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("empty intent", func(t *testing.T) {
		_, ok := Resolve([]Manifest{{ID: ""}}, "")
		assert.False(t, ok)
	})

	t.Run("action match beats id match", func(t *testing.T) {
		byID := Manifest{ID: "calendar"}
		byAction := Manifest{ID: "assistant", Actions: []Action{{ID: "calendar"}}}
		got, ok := Resolve([]Manifest{byID, byAction}, "calendar")
		require.True(t, ok)
		assert.Equal(t, "assistant", got.ID)
	})

	t.Run("first colliding action wins", func(t *testing.T) {
		first := Manifest{ID: "first", Actions: []Action{{ID: "book"}}}
		second := Manifest{ID: "second", Actions: []Action{{ID: "book"}}}
		got, _ := Resolve([]Manifest{first, second}, "book")
		assert.Equal(t, "first", got.ID)
	})

	t.Run("no fuzzy matching", func(t *testing.T) {
		_, ok := Resolve([]Manifest{m1}, "B")
		assert.False(t, ok)
		_, ok = Resolve([]Manifest{m1}, "m")
		assert.False(t, ok)
	})
}

func genManifests(t *rapid.T) []Manifest {
	n := rapid.IntRange(0, 6).Draw(t, "numManifests")
	out := make([]Manifest, n)
	for i := range out {
		out[i].ID = rapid.SampledFrom([]string{"a", "b", "c", "d", "e"}).Draw(t, fmt.Sprintf("id%d", i))
		out[i].Endpoint = "http://skill" + out[i].ID
		actions := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d", "e", "f"}), 0, 3).
			Draw(t, fmt.Sprintf("actions%d", i))
		for _, id := range actions {
			out[i].Actions = append(out[i].Actions, Action{ID: id})
		}
	}
	return out
}

// Property: the resolved manifest is the first in input order that exposes the intent as an action,
// otherwise the first whose id equals the intent.
func TestProperty_ResolveFirstMatch(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		manifests := genManifests(rt)
		intent := rapid.SampledFrom([]string{"a", "b", "c", "d", "e", "f", "g"}).Draw(rt, "intent")

		got, ok := Resolve(manifests, intent)

		actionIdx, idIdx := -1, -1
		for i, m := range manifests {
			if actionIdx < 0 && m.HasAction(intent) {
				actionIdx = i
			}
			if idIdx < 0 && m.ID == intent {
				idIdx = i
			}
		}

		switch {
		case actionIdx >= 0:
			require.True(rt, ok)
			assert.Same(rt, &manifests[actionIdx], got)
		case idIdx >= 0:
			require.True(rt, ok)
			assert.Same(rt, &manifests[idIdx], got)
		default:
			assert.False(rt, ok)
			assert.Nil(rt, got)
		}

		again, _ := Resolve(manifests, intent)
		assert.Equal(rt, got, again)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]Manifest{
		{ID: "weather", Endpoint: "http://w", Actions: []Action{{ID: "forecast"}}},
		{ID: "weather", Endpoint: "http://dup"},
		{ID: "todo", Endpoint: "http://t"},
	})

	m, ok := r.Get("weather")
	require.True(t, ok)
	assert.Equal(t, "http://w", m.Endpoint)

	m, ok = r.Resolve("forecast")
	require.True(t, ok)
	assert.Equal(t, "weather", m.ID)

	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Len(t, r.List(), 3)
}

func TestManifest_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Manifest{}).Validate(), ErrManifestID)
	assert.ErrorIs(t, (&Manifest{ID: "x"}).Validate(), ErrManifestEndpoint)
	assert.Error(t, (&Manifest{ID: "x", Endpoint: "not a url"}).Validate())
	assert.NoError(t, (&Manifest{ID: "x", Endpoint: "http://localhost:3980/api/skill/messages"}).Validate())
}
