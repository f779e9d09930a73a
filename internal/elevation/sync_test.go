package elevation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"heightcraft.app/internal/grid"
	"heightcraft.app/internal/heightfield"
	"heightcraft.app/internal/protocol"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (s *memStore) Save(_ context.Context, ns, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs == nil {
		s.blobs = make(map[string][]byte)
	}
	s.blobs[ns+"/"+key] = blob
	return nil
}

func (s *memStore) Load(_ context.Context, ns, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[ns+"/"+key]
	return b, ok, nil
}

type fakeEntities struct {
	mu       sync.Mutex
	ents     map[string]Entity
	setCalls []string
}

func newFakeEntities(ents ...Entity) *fakeEntities {
	f := &fakeEntities{ents: make(map[string]Entity)}
	for _, e := range ents {
		f.ents[e.ID] = e
	}
	return f
}

func (f *fakeEntities) Entity(id string) (Entity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.ents[id]
	return e, ok
}

func (f *fakeEntities) Entities() []Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entity, 0, len(f.ents))
	for _, e := range f.ents {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeEntities) SetElevation(id string, elevation int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.ents[id]
	e.Elevation = elevation
	f.ents[id] = e
	f.setCalls = append(f.setCalls, id)
	return nil
}

func (f *fakeEntities) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.setCalls...)
}

// testRig builds a no-padding 10x10-cell scene with cell size 100.
func testRig(t *testing.T, ents *fakeEntities) (*heightfield.Field, *Synchronizer) {
	t.Helper()
	m := &grid.Mapper{}
	if !m.Recompute(grid.Geometry{MapWidth: 1000, MapHeight: 1000, CellSize: 100, PaddingFraction: 0}) {
		t.Fatalf("recompute failed")
	}
	f := heightfield.New("scene1", &memStore{}, nil)
	s := New(f, m, ents, 10*time.Millisecond, nil)
	t.Cleanup(s.Stop)
	return f, s
}

func TestSync_MaxAggregationOverFootprint(t *testing.T) {
	ctx := context.Background()
	ents := newFakeEntities(Entity{ID: "tok1", X: 0, Y: 0, Width: 2, Height: 2})
	f, s := testRig(t, ents)

	for _, c := range []struct{ x, y, h int }{{0, 0, 3}, {1, 0, 7}, {0, 1, 1}, {1, 1, 7}} {
		if _, err := f.Set(ctx, c.x, c.y, c.h); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	var got []protocol.Event
	s.Subscribe(func(ev protocol.Event) { got = append(got, ev) })

	s.SyncNow("tok1")

	e, _ := ents.Entity("tok1")
	if e.Elevation != 7 {
		t.Fatalf("elevation: got %d want 7 (max, not average)", e.Elevation)
	}
	if len(got) != 1 {
		t.Fatalf("events: got %d want 1", len(got))
	}
	eu := got[0].(protocol.ElevationUpdatedEvent)
	if eu.EntityID != "tok1" || eu.OldElevation != 0 || eu.NewElevation != 7 {
		t.Fatalf("event payload: %+v", eu)
	}
}

func TestSync_IdempotentWhenAlreadyAtTarget(t *testing.T) {
	ctx := context.Background()
	ents := newFakeEntities(Entity{ID: "tok1", X: 150, Y: 150, Width: 1, Height: 1, Elevation: 4})
	f, s := testRig(t, ents)
	if _, err := f.Set(ctx, 1, 1, 4); err != nil {
		t.Fatalf("set: %v", err)
	}

	events := 0
	s.Subscribe(func(protocol.Event) { events++ })
	s.SyncNow("tok1")

	if calls := ents.calls(); len(calls) != 0 {
		t.Fatalf("no write expected, got %v", calls)
	}
	if events != 0 {
		t.Fatalf("no event expected, got %d", events)
	}
}

func TestSync_ExceptionPrecedence(t *testing.T) {
	ctx := context.Background()
	// Grounded by every attribute, but on the exception list.
	ents := newFakeEntities(Entity{ID: "tok1", X: 0, Y: 0, Width: 1, Height: 1})
	f, s := testRig(t, ents)
	if _, err := f.Set(ctx, 0, 0, 9); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := f.AddException(ctx, "tok1"); err != nil {
		t.Fatalf("exception: %v", err)
	}

	s.SyncNow("tok1")
	if e, _ := ents.Entity("tok1"); e.Elevation != 0 {
		t.Fatalf("exception entity must never be updated, got %d", e.Elevation)
	}
}

func TestSync_FlightHeuristic(t *testing.T) {
	cases := []struct {
		name   string
		entity Entity
		exempt bool
	}{
		{"no signals", Entity{ID: "e"}, false},
		{"effect label", Entity{ID: "e", StatusEffects: []string{"Hovering Disc"}}, true},
		{"effect icon path", Entity{ID: "e", StatusEffects: []string{"icons/spells/levitate.png"}}, true},
		{"unrelated effect", Entity{ID: "e", StatusEffects: []string{"Blessed"}}, false},
		{"fly speed", Entity{ID: "e", FlySpeed: 30}, true},
		{"zero fly speed", Entity{ID: "e", FlySpeed: 0}, false},
		{"flying flag", Entity{ID: "e", Flying: true}, true},
	}
	for _, tc := range cases {
		if got := canFly(tc.entity); got != tc.exempt {
			t.Fatalf("%s: canFly=%v want %v", tc.name, got, tc.exempt)
		}
	}
}

func TestSync_FlyingEntitySkipped(t *testing.T) {
	ctx := context.Background()
	ents := newFakeEntities(Entity{ID: "tok1", X: 0, Y: 0, Width: 1, Height: 1, FlySpeed: 60})
	f, s := testRig(t, ents)
	if _, err := f.Set(ctx, 0, 0, 9); err != nil {
		t.Fatalf("set: %v", err)
	}

	s.SyncNow("tok1")
	if e, _ := ents.Entity("tok1"); e.Elevation != 0 {
		t.Fatalf("flying entity must be skipped, got %d", e.Elevation)
	}
}

func TestSync_MissingEntityIsNoop(t *testing.T) {
	ents := newFakeEntities()
	_, s := testRig(t, ents)

	s.OnEntityMoved("ghost")
	s.Flush()
	if calls := ents.calls(); len(calls) != 0 {
		t.Fatalf("missing entity should be a no-op, got %v", calls)
	}
}

func TestSync_DebounceCollapsesMoves(t *testing.T) {
	ctx := context.Background()
	ents := newFakeEntities(Entity{ID: "tok1", X: 0, Y: 0, Width: 1, Height: 1})
	f, s := testRig(t, ents)
	if _, err := f.Set(ctx, 0, 0, 5); err != nil {
		t.Fatalf("set: %v", err)
	}

	for i := 0; i < 5; i++ {
		s.OnEntityMoved("tok1")
	}
	if s.PendingCount() != 1 {
		t.Fatalf("pending: got %d want 1", s.PendingCount())
	}

	deadline := time.Now().Add(time.Second)
	for {
		if len(ents.calls()) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if calls := ents.calls(); len(calls) != 1 {
		t.Fatalf("writes: got %v want exactly one", calls)
	}
	if s.PendingCount() != 0 {
		t.Fatalf("pending not drained: %d", s.PendingCount())
	}
}

func TestSync_DisabledFieldSkipsWrites(t *testing.T) {
	ctx := context.Background()
	ents := newFakeEntities(Entity{ID: "tok1", X: 0, Y: 0, Width: 1, Height: 1})
	f, s := testRig(t, ents)
	if _, err := f.Set(ctx, 0, 0, 9); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.SetEnabled(ctx, false); err != nil {
		t.Fatalf("disable: %v", err)
	}

	s.SyncNow("tok1")
	if e, _ := ents.Entity("tok1"); e.Elevation != 0 {
		t.Fatalf("disabled field must not sync, got %d", e.Elevation)
	}
}

func TestSync_UpdateAll(t *testing.T) {
	ctx := context.Background()
	ents := newFakeEntities(
		Entity{ID: "a", X: 0, Y: 0, Width: 1, Height: 1},
		Entity{ID: "b", X: 100, Y: 0, Width: 1, Height: 1},
		Entity{ID: "c", X: 200, Y: 0, Width: 1, Height: 1, Flying: true},
	)
	f, s := testRig(t, ents)
	if _, err := f.SetArea(ctx, []grid.Cell{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}, 6); err != nil {
		t.Fatalf("setArea: %v", err)
	}

	s.UpdateAll()

	a, _ := ents.Entity("a")
	b, _ := ents.Entity("b")
	c, _ := ents.Entity("c")
	if a.Elevation != 6 || b.Elevation != 6 {
		t.Fatalf("grounded entities not updated: a=%d b=%d", a.Elevation, b.Elevation)
	}
	if c.Elevation != 0 {
		t.Fatalf("flying entity updated by UpdateAll: %d", c.Elevation)
	}
}
