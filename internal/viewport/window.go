// Package viewport computes the rectangular cell range relevant for
// rendering: the screen's world-space footprint plus a buffer margin,
// clamped to the addressable grid (map extent plus padding ring).
package viewport

import (
	"math"

	"heightcraft.app/internal/grid"
)

// DefaultBufferCells is the margin appended beyond the visible edge so that
// scroll reveals already-drawn cells.
const DefaultBufferCells = 2

// Camera is a pan/zoom transform: screen = world*Scale + Offset.
type Camera struct {
	OffsetX float64
	OffsetY float64
	Scale   float64
}

func (c Camera) toWorld(sx, sy float64) (float64, float64) {
	return (sx - c.OffsetX) / c.Scale, (sy - c.OffsetY) / c.Scale
}

// Screen is the output surface size in pixels.
type Screen struct {
	Width  float64
	Height float64
}

// Window is an inclusive cell range. Empty windows (Left > Right or
// Top > Bottom) mean "render nothing" and are not an error.
type Window struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

func (w Window) Empty() bool {
	return w.Left > w.Right || w.Top > w.Bottom
}

// CellCount reports how many cells the window spans.
func (w Window) CellCount() int {
	if w.Empty() {
		return 0
	}
	return (w.Right - w.Left + 1) * (w.Bottom - w.Top + 1)
}

func (w Window) Contains(c grid.Cell) bool {
	return c.X >= w.Left && c.X <= w.Right && c.Y >= w.Top && c.Y <= w.Bottom
}

// Each visits every cell in the window in row-major order.
func (w Window) Each(fn func(c grid.Cell)) {
	for y := w.Top; y <= w.Bottom; y++ {
		for x := w.Left; x <= w.Right; x++ {
			fn(grid.Cell{X: x, Y: y})
		}
	}
}

// Compute projects the four screen corners through the inverse camera
// transform, expands the resulting world-space box by one cell of slack plus
// bufferCells, converts to cell coordinates, and clamps to the mapper's
// addressable bounds. Returns ok=false when the mapper is not ready or the
// camera scale is unusable; callers skip the recompute in that case.
func Compute(m *grid.Mapper, cam Camera, scr Screen, bufferCells int) (Window, bool) {
	if !m.Ready() {
		return Window{}, false
	}
	if cam.Scale <= 0 || math.IsNaN(cam.Scale) || math.IsInf(cam.Scale, 0) {
		return Window{}, false
	}
	if bufferCells < 0 {
		bufferCells = 0
	}

	corners := [4][2]float64{
		{0, 0},
		{scr.Width, 0},
		{0, scr.Height},
		{scr.Width, scr.Height},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range corners {
		wx, wy := cam.toWorld(s[0], s[1])
		minX = math.Min(minX, wx)
		minY = math.Min(minY, wy)
		maxX = math.Max(maxX, wx)
		maxY = math.Max(maxY, wy)
	}

	slack := float64((1 + bufferCells) * m.CellSize())
	minX -= slack
	minY -= slack
	maxX += slack
	maxY += slack

	lo, _ := m.ToCell(minX, minY)
	hi, _ := m.ToCell(maxX, maxY)
	b, _ := m.Bounds()

	w := Window{
		Left:   max(lo.X, b.MinX),
		Top:    max(lo.Y, b.MinY),
		Right:  min(hi.X, b.MaxX),
		Bottom: min(hi.Y, b.MaxY),
	}
	return w, true
}
