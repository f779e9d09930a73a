// Package elevation reconciles entity elevation with the height field as
// entities move: queued ids are flushed through a debounce window, exempt
// entities (exception list or airborne heuristic) are skipped, and
// multi-cell footprints rest on the tallest covered cell.
package elevation

import (
	"log"
	"sync"
	"time"

	"heightcraft.app/internal/grid"
	"heightcraft.app/internal/heightfield"
	"heightcraft.app/internal/protocol"
)

// DefaultThrottle is the coalescing window for entity moves.
const DefaultThrottle = 100 * time.Millisecond

const flushKey = "flush"

type Synchronizer struct {
	field    *heightfield.Field
	mapper   *grid.Mapper
	entities EntityStore
	logger   *log.Logger
	deb      *Debouncer

	mu       sync.Mutex
	pending  map[string]struct{}
	flushing bool
	subs     []func(protocol.Event)
}

func New(field *heightfield.Field, mapper *grid.Mapper, entities EntityStore, throttle time.Duration, logger *log.Logger) *Synchronizer {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Synchronizer{
		field:    field,
		mapper:   mapper,
		entities: entities,
		logger:   logger,
		deb:      NewDebouncer(throttle),
		pending:  make(map[string]struct{}),
	}
}

func (s *Synchronizer) Subscribe(fn func(protocol.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Synchronizer) emit(ev protocol.Event) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// OnEntityMoved enqueues the entity and schedules a flush after the throttle
// window. Repeated moves of one entity inside the window collapse into a
// single update.
func (s *Synchronizer) OnEntityMoved(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.pending[id] = struct{}{}
	s.mu.Unlock()
	s.deb.Trigger(flushKey, s.Flush)
}

// PendingCount reports how many entities are queued.
func (s *Synchronizer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush drains the pending set and syncs each queued entity. A flush that
// lands while another is running is deferred to a fresh throttle window
// rather than interleaved.
func (s *Synchronizer) Flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		s.deb.Trigger(flushKey, s.Flush)
		return
	}
	s.flushing = true
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	for _, id := range ids {
		s.syncOne(id)
	}

	s.mu.Lock()
	s.flushing = false
	s.mu.Unlock()
}

// UpdateAll syncs every known entity once, using the same exemption and
// aggregation rules as the queued path. Used after a scene switch or a
// large-area edit.
func (s *Synchronizer) UpdateAll() {
	for _, e := range s.entities.Entities() {
		s.syncOne(e.ID)
	}
}

// Stop cancels any scheduled flush.
func (s *Synchronizer) Stop() {
	s.deb.Stop()
}

// syncOne applies the target elevation for one entity. Missing entities are
// a no-op: removal between enqueue and flush is normal, not an error.
func (s *Synchronizer) syncOne(id string) {
	if !s.field.Enabled() {
		return
	}
	e, ok := s.entities.Entity(id)
	if !ok {
		return
	}
	if s.field.IsException(e.ID) || canFly(e) {
		return
	}
	if !s.mapper.Ready() {
		s.logger.Printf("elevation: mapper not ready, skipping %s", id)
		return
	}
	cell, target, ok := s.targetElevation(e)
	if !ok {
		return
	}
	if target == e.Elevation {
		return
	}
	if err := s.entities.SetElevation(e.ID, target); err != nil {
		s.logger.Printf("elevation: set %s to %d: %v", e.ID, target, err)
		return
	}
	s.emit(protocol.ElevationUpdatedEvent{
		EntityID:     e.ID,
		OldElevation: e.Elevation,
		NewElevation: target,
		Cell:         protocol.CellRef{X: cell.X, Y: cell.Y},
	})
}

// targetElevation aggregates the maximum height across every cell the
// footprint covers: a token rests on the tallest platform it touches, it
// does not sink into the lower side of a ledge.
func (s *Synchronizer) targetElevation(e Entity) (grid.Cell, int, bool) {
	origin, ok := s.mapper.ToCell(e.X, e.Y)
	if !ok {
		return grid.Cell{}, 0, false
	}
	w, h := e.Width, e.Height
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	target := s.field.Get(origin.X, origin.Y)
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			if v := s.field.Get(origin.X+dx, origin.Y+dy); v > target {
				target = v
			}
		}
	}
	return origin, target, true
}

// SyncNow bypasses the throttle window for one entity, for callers that
// already know the move is settled (e.g. after an import or undo).
func (s *Synchronizer) SyncNow(id string) {
	s.syncOne(id)
}
