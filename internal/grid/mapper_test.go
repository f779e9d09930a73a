package grid

import "testing"

func mustMapper(t *testing.T, g Geometry) *Mapper {
	t.Helper()
	m := &Mapper{}
	if !m.Recompute(g) {
		t.Fatalf("recompute failed for geometry %+v", g)
	}
	return m
}

func TestMapper_PaddingScenario(t *testing.T) {
	// 1000x1000 map, cell size 100, padding fraction 0.25:
	// per-side padding = ceil(1000*0.25/100)*100 = 300px = 3 cells.
	m := mustMapper(t, Geometry{MapWidth: 1000, MapHeight: 1000, CellSize: 100, PaddingFraction: 0.25})

	if ox, oy := m.Offset(); ox != 300 || oy != 300 {
		t.Fatalf("offset: got (%d,%d) want (300,300)", ox, oy)
	}
	if c, ok := m.ToCell(0, 0); !ok || c != (Cell{X: -3, Y: -3}) {
		t.Fatalf("pixel (0,0): got %v ok=%v want (-3,-3)", c, ok)
	}
	if c, ok := m.ToCell(300, 300); !ok || c != (Cell{X: 0, Y: 0}) {
		t.Fatalf("pixel (300,300): got %v ok=%v want (0,0)", c, ok)
	}
}

func TestMapper_Invertibility(t *testing.T) {
	geoms := []Geometry{
		{MapWidth: 1000, MapHeight: 1000, CellSize: 100, PaddingFraction: 0.25},
		{MapWidth: 1920, MapHeight: 1080, CellSize: 50, PaddingFraction: 0.1},
		{MapWidth: 333, MapHeight: 777, CellSize: 7, PaddingFraction: 0.33},
		{MapWidth: 4000, MapHeight: 3000, CellSize: 140, PaddingFraction: 0},
	}
	for _, g := range geoms {
		m := mustMapper(t, g)
		for x := -20; x <= 20; x++ {
			for y := -20; y <= 20; y++ {
				c := Cell{X: x, Y: y}
				px, py, ok := m.ToCellTopLeftPixel(c)
				if !ok {
					t.Fatalf("%+v: top-left pixel not ready", g)
				}
				got, ok := m.ToCell(px, py)
				if !ok || got != c {
					t.Fatalf("%+v: roundtrip of %v gave %v", g, c, got)
				}
			}
		}
	}
}

func TestMapper_PaddingMonotonic(t *testing.T) {
	prev := -1
	for _, frac := range []float64{0, 0.05, 0.1, 0.2, 0.25, 0.3, 0.5, 1.0} {
		m := mustMapper(t, Geometry{MapWidth: 1000, MapHeight: 800, CellSize: 100, PaddingFraction: frac})
		ox, _ := m.Offset()
		if ox < prev {
			t.Fatalf("offset decreased: frac=%v offset=%d prev=%d", frac, ox, prev)
		}
		if ox%m.CellSize() != 0 {
			t.Fatalf("offset %d not a multiple of cell size %d", ox, m.CellSize())
		}
		prev = ox
	}
}

func TestMapper_NotReady(t *testing.T) {
	var m Mapper
	if _, ok := m.ToCell(10, 10); ok {
		t.Fatalf("zero mapper should not convert")
	}
	if _, _, ok := m.ToCellTopLeftPixel(Cell{X: 1, Y: 1}); ok {
		t.Fatalf("zero mapper should not convert")
	}
	if m.Recompute(Geometry{MapWidth: 100, MapHeight: 100, CellSize: 0, PaddingFraction: 0.1}) {
		t.Fatalf("zero cell size must be rejected")
	}
	if m.Ready() {
		t.Fatalf("failed recompute must leave mapper not ready")
	}
}

func TestMapper_Bounds(t *testing.T) {
	m := mustMapper(t, Geometry{MapWidth: 1000, MapHeight: 500, CellSize: 100, PaddingFraction: 0.25})
	b, ok := m.Bounds()
	if !ok {
		t.Fatalf("bounds not ready")
	}
	// 10x5 map cells, 3 pad cells on x, ceil(500*0.25/100)=2 on y.
	want := Bounds{MinX: -3, MinY: -2, MaxX: 12, MaxY: 6}
	if b != want {
		t.Fatalf("bounds: got %+v want %+v", b, want)
	}
	if !b.Contains(Cell{X: -3, Y: -2}) || b.Contains(Cell{X: 13, Y: 0}) {
		t.Fatalf("contains checks failed for %+v", b)
	}
}

func TestParseKey(t *testing.T) {
	c, err := ParseKey("-3,12")
	if err != nil || c != (Cell{X: -3, Y: 12}) {
		t.Fatalf("parse: got %v err %v", c, err)
	}
	if got := (Cell{X: 4, Y: -7}).Key(); got != "4,-7" {
		t.Fatalf("key: got %q", got)
	}
	for _, bad := range []string{"", "12", "a,b", "1,2,3"} {
		if _, err := ParseKey(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
