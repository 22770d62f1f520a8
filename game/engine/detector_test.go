package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func gridFrom(t *testing.T, rows ...string) *Grid {
	t.Helper()
	m := parseLayout(t, rows...)
	g := NewGrid(len(m), len(m[0]))
	for y, row := range m {
		for x, tile := range row {
			_ = g.Set(at(x, y), tile)
		}
	}
	return g
}

func TestIsStuck(t *testing.T) {
	tests := []struct {
		name   string
		layout []string
		stuck  bool
	}{
		{"empty board", []string{". . .", ". . .", ". . ."}, true},
		{"single tile", []string{"3 . .", ". . .", ". . ."}, true},
		{"lone wild", []string{"W . .", ". . .", ". . ."}, true},
		{"pair summing to six", []string{"5 1 .", ". . .", ". . ."}, false},
		{"pair summing below six", []string{"2 2 .", ". . .", ". . ."}, false},
		{"all pairs over six", []string{"5 5 4", ". . .", ". . ."}, true},
		{"wild with large plain", []string{"W 5 5", "5 . .", ". . ."}, false},
		{"two wilds only", []string{"W2 W3 .", ". . .", ". . ."}, true},
		{"wilds ignore face values", []string{"W1 W1 W1", ". . .", ". . ."}, true},
		{"one mergeable pair among many", []string{"5 5 5", "4 4 1", ". . ."}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gridFrom(t, tt.layout...)
			assert.Equal(t, tt.stuck, IsStuck(g))
			assert.Equal(t, !tt.stuck, len(LegalMerges(g)) > 0, "legal merges agree with the stuck check")
		})
	}
}

func TestIsClean(t *testing.T) {
	assert.True(t, IsClean(gridFrom(t, ". . .", ". . .", ". . .")))
	assert.False(t, IsClean(gridFrom(t, ". . .", ". W .", ". . .")), "a lone wild is not clean")
	assert.False(t, IsClean(gridFrom(t, "1 . .", ". . .", ". . .")))
}

func TestLegalMergesAreOrderedPairs(t *testing.T) {
	g := gridFrom(t, "1 2 .", ". . .", ". . .")
	moves := LegalMerges(g)
	assert.ElementsMatch(t, [][2]Coord{
		{at(0, 0), at(1, 0)},
		{at(1, 0), at(0, 0)},
	}, moves)
}
