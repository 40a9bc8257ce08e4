// internal/grid/grid_test.go
package grid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDimensions(t *testing.T) {
	g := NewGenerator(rand.NewSource(1))
	board := g.Generate(7, 7)

	assert.Equal(t, 7, board.Rows)
	assert.Equal(t, 7, board.Cols)
	require.Len(t, board.Tiles, 7)
	for _, row := range board.Tiles {
		require.Len(t, row, 7)
		for _, tile := range row {
			assert.Len(t, tile.Letter, 1)
			assert.GreaterOrEqual(t, tile.Multiplier, 1)
			assert.LessOrEqual(t, tile.Multiplier, 3)
		}
	}
}

func TestGenerateDeterministicUnderSeed(t *testing.T) {
	a := NewGenerator(rand.NewSource(42)).Generate(5, 5)
	b := NewGenerator(rand.NewSource(42)).Generate(5, 5)
	assert.Equal(t, a, b)
}

func TestGenerateLetterDistribution(t *testing.T) {
	g := NewGenerator(rand.NewSource(7))
	counts := make(map[string]int)
	board := g.Generate(50, 50)
	for _, row := range board.Tiles {
		for _, tile := range row {
			counts[tile.Letter]++
		}
	}
	// the most common letter should clearly beat the rarest ones
	assert.Greater(t, counts["E"], counts["Q"])
	assert.Greater(t, counts["A"], counts["Z"])
}
