package session

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	type point struct {
		X int `json:"x"`
	}
	got, err := Normalize(State{
		"int":    3,
		"num":    json.Number("2.5"),
		"list":   []any{int64(1), "a", nil},
		"nested": State{"ok": true},
		"struct": point{X: 4},
		"tags":   []string{"a", "b"},
	})
	require.NoError(t, err)
	require.Equal(t, State{
		"int":    float64(3),
		"num":    2.5,
		"list":   []any{float64(1), "a", nil},
		"nested": map[string]any{"ok": true},
		"struct": map[string]any{"x": float64(4)},
		"tags":   []any{"a", "b"},
	}, got)
}

func TestNormalize_Rejects(t *testing.T) {
	_, err := Normalize(State{"nan": math.NaN()})
	require.Error(t, err)

	_, err = Normalize(State{"ch": make(chan int)})
	require.Error(t, err)
}

func TestClone_Deep(t *testing.T) {
	s := State{"m": map[string]any{"l": []any{"x"}}}
	c := s.Clone()
	c["m"].(map[string]any)["l"].([]any)[0] = "y"
	require.Equal(t, "x", s["m"].(map[string]any)["l"].([]any)[0])
}
