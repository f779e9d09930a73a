// Package grid maps between continuous scene-surface pixel coordinates and
// discrete cell indices. Cell (0,0) is pinned to the logical map origin; the
// padding ring around the map occupies negative indices.
package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Cell identifies one square of the grid. Negative coordinates address the
// padding region surrounding the logical map.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key returns the canonical "x,y" identity form used as map/persistence keys.
func (c Cell) Key() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y)
}

func (c Cell) String() string {
	return c.Key()
}

// ParseKey parses the canonical "x,y" form back into a Cell.
func ParseKey(s string) (Cell, error) {
	i := strings.IndexByte(s, ',')
	if i < 0 {
		return Cell{}, fmt.Errorf("cell key %q: missing comma", s)
	}
	x, err := strconv.Atoi(s[:i])
	if err != nil {
		return Cell{}, fmt.Errorf("cell key %q: %w", s, err)
	}
	y, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Cell{}, fmt.Errorf("cell key %q: %w", s, err)
	}
	return Cell{X: x, Y: y}, nil
}

// Bounds is an inclusive rectangle of cell indices. Empty when MinX > MaxX
// or MinY > MaxY.
type Bounds struct {
	MinX, MinY int
	MaxX, MaxY int
}

func (b Bounds) Empty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

func (b Bounds) Contains(c Cell) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Y >= b.MinY && c.Y <= b.MaxY
}
