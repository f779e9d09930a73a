package grid

import "math"

// Geometry is the scene measurement the mapper derives everything from.
// Sizes are in pixels; PaddingFraction is the per-side padding as a fraction
// of the map dimension.
type Geometry struct {
	MapWidth        float64
	MapHeight       float64
	CellSize        int
	PaddingFraction float64
}

func (g Geometry) valid() bool {
	return g.CellSize > 0 && g.MapWidth > 0 && g.MapHeight > 0 &&
		g.PaddingFraction >= 0 && !math.IsNaN(g.PaddingFraction) && !math.IsInf(g.PaddingFraction, 0)
}

// Mapper converts between pixel and cell coordinates. Zero value is not
// ready: both conversions report ok=false until Recompute succeeds, and
// callers must skip dependent work rather than use stale results.
type Mapper struct {
	ready    bool
	cellSize int

	// Pixel offset of the logical map origin from the canvas origin, one
	// value per axis. Always an exact multiple of cellSize so that the
	// padding ring is a whole number of cells.
	offsetX int
	offsetY int

	padCellsX int
	padCellsY int
	mapCellsW int
	mapCellsH int
}

// Recompute rederives the cached transform from g. Invalid geometry leaves
// the mapper not ready and returns false.
func (m *Mapper) Recompute(g Geometry) bool {
	if !g.valid() {
		*m = Mapper{}
		return false
	}
	cs := float64(g.CellSize)
	// Padding rounds up to whole cells, per axis. This keeps cell (0,0)
	// pixel-exact for any padding fraction.
	padX := int(math.Ceil(g.MapWidth * g.PaddingFraction / cs))
	padY := int(math.Ceil(g.MapHeight * g.PaddingFraction / cs))

	m.ready = true
	m.cellSize = g.CellSize
	m.padCellsX = padX
	m.padCellsY = padY
	m.offsetX = padX * g.CellSize
	m.offsetY = padY * g.CellSize
	m.mapCellsW = int(math.Ceil(g.MapWidth / cs))
	m.mapCellsH = int(math.Ceil(g.MapHeight / cs))
	return true
}

func (m *Mapper) Ready() bool { return m.ready }

func (m *Mapper) CellSize() int { return m.cellSize }

// PaddingCells reports the padding ring thickness in whole cells per axis.
func (m *Mapper) PaddingCells() (x, y int) { return m.padCellsX, m.padCellsY }

// Offset reports the pixel offset of the map origin from the canvas origin.
func (m *Mapper) Offset() (x, y int) { return m.offsetX, m.offsetY }

// ToCell converts a canvas pixel position to the cell containing it.
func (m *Mapper) ToCell(px, py float64) (Cell, bool) {
	if !m.ready {
		return Cell{}, false
	}
	cs := float64(m.cellSize)
	return Cell{
		X: int(math.Floor((px - float64(m.offsetX)) / cs)),
		Y: int(math.Floor((py - float64(m.offsetY)) / cs)),
	}, true
}

// ToCellTopLeftPixel converts a cell index to the canvas pixel position of
// its top-left corner. Exact left-inverse of ToCell for grid-aligned points.
func (m *Mapper) ToCellTopLeftPixel(c Cell) (px, py float64, ok bool) {
	if !m.ready {
		return 0, 0, false
	}
	return float64(c.X*m.cellSize + m.offsetX), float64(c.Y*m.cellSize + m.offsetY), true
}

// Bounds reports the full addressable cell range: the logical map extent
// plus the padding ring, nothing beyond it.
func (m *Mapper) Bounds() (Bounds, bool) {
	if !m.ready {
		return Bounds{}, false
	}
	return Bounds{
		MinX: -m.padCellsX,
		MinY: -m.padCellsY,
		MaxX: m.mapCellsW - 1 + m.padCellsX,
		MaxY: m.mapCellsH - 1 + m.padCellsY,
	}, true
}
