// internal/grid/grid.go
//
// Package grid generates the letter board a match is played on. The
// generator is stateless beyond its random source and is invoked exactly
// once per match start; the result is stored on the match as an opaque
// snapshot.
package grid

import (
	"math/rand"
	"time"
)

// Tile is one cell of the board.
type Tile struct {
	Letter     string `json:"letter"`
	Multiplier int    `json:"multiplier"` // 1, 2 or 3
	Gem        bool   `json:"gem"`
}

// Grid is a rows x cols board of tiles.
type Grid struct {
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Tiles [][]Tile `json:"tiles"`
}

// letterWeights approximates English letter frequency; vowels and common
// consonants dominate so most boards have playable words. Kept as an
// ordered list so a seeded generator is reproducible.
var letterWeights = []struct {
	letter string
	weight int
}{
	{"E", 12}, {"A", 9}, {"I", 9}, {"O", 8}, {"N", 7}, {"R", 7}, {"T", 7},
	{"L", 5}, {"S", 5}, {"U", 4}, {"D", 4}, {"G", 3}, {"B", 2}, {"C", 2},
	{"M", 2}, {"P", 2}, {"F", 2}, {"H", 2}, {"V", 2}, {"W", 2}, {"Y", 2},
	{"K", 1}, {"J", 1}, {"X", 1}, {"Q", 1}, {"Z", 1},
}

const (
	doubleChance = 0.08
	tripleChance = 0.03
	gemChance    = 0.05
)

// Generator produces boards from an injected random source so tests can be
// deterministic.
type Generator struct {
	rnd     *rand.Rand
	letters []string // weighted pick pool
}

func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	var pool []string
	for _, lw := range letterWeights {
		for i := 0; i < lw.weight; i++ {
			pool = append(pool, lw.letter)
		}
	}
	return &Generator{rnd: rand.New(src), letters: pool}
}

// Generate builds a fresh rows x cols board.
func (g *Generator) Generate(rows, cols int) Grid {
	tiles := make([][]Tile, rows)
	for r := 0; r < rows; r++ {
		tiles[r] = make([]Tile, cols)
		for c := 0; c < cols; c++ {
			tiles[r][c] = g.tile()
		}
	}
	return Grid{Rows: rows, Cols: cols, Tiles: tiles}
}

func (g *Generator) tile() Tile {
	t := Tile{
		Letter:     g.letters[g.rnd.Intn(len(g.letters))],
		Multiplier: 1,
	}
	switch roll := g.rnd.Float64(); {
	case roll < tripleChance:
		t.Multiplier = 3
	case roll < tripleChance+doubleChance:
		t.Multiplier = 2
	}
	t.Gem = g.rnd.Float64() < gemChance
	return t
}
