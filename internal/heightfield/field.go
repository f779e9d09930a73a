// Package heightfield stores a sparse integer height per grid cell, with the
// durable store as system of record. Mutations are optimistic: the in-memory
// value changes first, and a failed persist is surfaced to the caller rather
// than rolled back.
package heightfield

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"heightcraft.app/internal/grid"
	"heightcraft.app/internal/protocol"
)

const (
	// MaxCoord bounds addressable cell coordinates on both axes.
	MaxCoord = 10000
	// MinHeight/MaxHeight bound stored heights. Height 0 is the default
	// "water level" and is represented by key absence.
	MinHeight = -1000
	MaxHeight = 1000
)

// Namespace is the blob-store namespace all field snapshots live under.
const Namespace = "heightfield"

// Store is the durable blob store the field persists through.
type Store interface {
	Save(ctx context.Context, namespace, key string, blob []byte) error
	Load(ctx context.Context, namespace, key string) ([]byte, bool, error)
}

// Field is one scene's height data. Safe for concurrent use; event
// subscribers are invoked synchronously under the field lock, so they must
// not call back into the field.
type Field struct {
	sceneID string
	store   Store
	logger  *log.Logger

	mu          sync.Mutex
	cells       map[grid.Cell]int
	exceptions  map[string]struct{}
	enabled     bool
	lastUpdated int64
	subs        []func(protocol.Event)
}

func New(sceneID string, store Store, logger *log.Logger) *Field {
	if logger == nil {
		logger = log.Default()
	}
	return &Field{
		sceneID:    sceneID,
		store:      store,
		logger:     logger,
		cells:      make(map[grid.Cell]int),
		exceptions: make(map[string]struct{}),
		enabled:    true,
	}
}

func (f *Field) SceneID() string { return f.sceneID }

// Subscribe registers an event listener. Subscribers cannot be removed;
// lifecycle is tied to the field, which is discarded on scene switch.
func (f *Field) Subscribe(fn func(protocol.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

func (f *Field) emitLocked(ev protocol.Event) {
	for _, fn := range f.subs {
		fn(ev)
	}
}

// Load replaces in-memory state with the persisted snapshot for this scene.
// A missing blob yields a fresh enabled field. Invalid persisted entries are
// dropped with a warning, matching import semantics.
func (f *Field) Load(ctx context.Context) error {
	blob, found, err := f.store.Load(ctx, Namespace, f.sceneID)
	if err != nil {
		return fmt.Errorf("load field %q: %w", f.sceneID, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells = make(map[grid.Cell]int)
	f.exceptions = make(map[string]struct{})
	f.enabled = true
	f.lastUpdated = 0
	if !found {
		return nil
	}
	snap, err := snapshotFromBlob(blob)
	if err != nil {
		return fmt.Errorf("decode field %q: %w", f.sceneID, err)
	}
	applied, dropped := f.applySnapshotLocked(snap)
	if dropped > 0 {
		f.logger.Printf("field %s: dropped %d invalid persisted entries (kept %d)", f.sceneID, dropped, applied)
	}
	return nil
}

func validCoord(x, y int) bool {
	return x >= -MaxCoord && x <= MaxCoord && y >= -MaxCoord && y <= MaxCoord
}

func validHeight(h int) bool {
	return h >= MinHeight && h <= MaxHeight
}

// Get returns the stored height, or 0 for any unset cell. Never fails.
func (f *Field) Get(x, y int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cells[grid.Cell{X: x, Y: y}]
}

// Set writes one cell. Returns false (no mutation, no event) when the
// coordinate or height is out of range. Setting a cell to its current value
// succeeds without persisting or emitting. A non-nil error means the value
// is applied in memory but the durable write failed; the caller decides
// whether to retry the persist or reload.
func (f *Field) Set(ctx context.Context, x, y, h int) (bool, error) {
	if !validCoord(x, y) || !validHeight(h) {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := grid.Cell{X: x, Y: y}
	old := f.cells[c]
	if old == h {
		return true, nil
	}
	f.storeCellLocked(c, h)
	f.touchLocked()
	err := f.persistLocked(ctx)
	f.emitLocked(protocol.HeightChangedEvent{X: x, Y: y, Height: h, OldHeight: old})
	return true, err
}

// SetArea writes one height to many cells as a single batch: one persist,
// and one areaChanged event listing only the cells whose value actually
// changed. The batch is all-or-nothing on validation: any out-of-range cell
// rejects the whole call.
func (f *Field) SetArea(ctx context.Context, cells []grid.Cell, h int) (bool, error) {
	if !validHeight(h) {
		return false, nil
	}
	for _, c := range cells {
		if !validCoord(c.X, c.Y) {
			return false, nil
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := make([]protocol.CellRef, 0, len(cells))
	seen := make(map[grid.Cell]struct{}, len(cells))
	for _, c := range cells {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if f.cells[c] == h {
			continue
		}
		f.storeCellLocked(c, h)
		changed = append(changed, protocol.CellRef{X: c.X, Y: c.Y})
	}
	if len(changed) == 0 {
		return true, nil
	}
	f.touchLocked()
	err := f.persistLocked(ctx)
	f.emitLocked(protocol.AreaChangedEvent{Cells: changed, Height: h})
	return true, err
}

// storeCellLocked keeps the sparse representation canonical: height 0 means
// key absence.
func (f *Field) storeCellLocked(c grid.Cell, h int) {
	if h == 0 {
		delete(f.cells, c)
		return
	}
	f.cells[c] = h
}

// Export returns a deep-copied snapshot of current state.
func (f *Field) Export() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exportLocked()
}

func (f *Field) exportLocked() Snapshot {
	cells := make(map[string]int, len(f.cells))
	for c, h := range f.cells {
		cells[c.Key()] = h
	}
	ids := make([]string, 0, len(f.exceptions))
	for id := range f.exceptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Snapshot{
		Cells:             cells,
		ExceptionEntities: ids,
		Enabled:           f.enabled,
		SchemaVersion:     SchemaVersion,
		LastUpdated:       f.lastUpdated,
	}
}

// Import replaces field state from a snapshot. Entries with a malformed key,
// an out-of-range coordinate, or an out-of-range height are dropped
// individually; the import itself still succeeds and reports counts in the
// dataImported event. Discard-don't-fail is the observed legacy policy,
// preserved deliberately.
func (f *Field) Import(ctx context.Context, snap Snapshot) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	applied, dropped := f.applySnapshotLocked(snap)
	f.touchLocked()
	err := f.persistLocked(ctx)
	f.emitLocked(protocol.DataImportedEvent{Applied: applied, Dropped: dropped, Version: snap.SchemaVersion})
	return true, err
}

func (f *Field) applySnapshotLocked(snap Snapshot) (applied, dropped int) {
	cells := make(map[grid.Cell]int, len(snap.Cells))
	for key, h := range snap.Cells {
		c, err := grid.ParseKey(key)
		if err != nil || !validCoord(c.X, c.Y) || !validHeight(h) {
			dropped++
			continue
		}
		if h == 0 {
			continue
		}
		cells[c] = h
		applied++
	}
	exceptions := make(map[string]struct{}, len(snap.ExceptionEntities))
	for _, id := range snap.ExceptionEntities {
		if id == "" {
			dropped++
			continue
		}
		exceptions[id] = struct{}{}
	}
	f.cells = cells
	f.exceptions = exceptions
	f.enabled = snap.Enabled
	if snap.LastUpdated > 0 {
		f.lastUpdated = snap.LastUpdated
	}
	return applied, dropped
}

// AddException marks an entity as exempt from elevation sync. Adding an
// already-exempt entity is a no-op (no persist, no event).
func (f *Field) AddException(ctx context.Context, entityID string) (bool, error) {
	if entityID == "" {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exceptions[entityID]; ok {
		return true, nil
	}
	f.exceptions[entityID] = struct{}{}
	f.touchLocked()
	err := f.persistLocked(ctx)
	f.emitLocked(protocol.ExceptionAddedEvent{EntityID: entityID})
	return true, err
}

func (f *Field) RemoveException(ctx context.Context, entityID string) (bool, error) {
	if entityID == "" {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exceptions[entityID]; !ok {
		return true, nil
	}
	delete(f.exceptions, entityID)
	f.touchLocked()
	err := f.persistLocked(ctx)
	f.emitLocked(protocol.ExceptionRemovedEvent{EntityID: entityID})
	return true, err
}

func (f *Field) IsException(entityID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.exceptions[entityID]
	return ok
}

func (f *Field) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// SetEnabled toggles elevation sync for the scene. Editing stays allowed
// while disabled; only the synchronizer consults this flag.
func (f *Field) SetEnabled(ctx context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enabled == enabled {
		return nil
	}
	f.enabled = enabled
	f.touchLocked()
	return f.persistLocked(ctx)
}

// CellCount reports how many non-zero cells are stored.
func (f *Field) CellCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cells)
}

func (f *Field) touchLocked() {
	f.lastUpdated = time.Now().UnixMilli()
}

func (f *Field) persistLocked(ctx context.Context) error {
	blob, err := f.exportLocked().MarshalBlob()
	if err != nil {
		return fmt.Errorf("encode field %q: %w", f.sceneID, err)
	}
	if err := f.store.Save(ctx, Namespace, f.sceneID, blob); err != nil {
		return fmt.Errorf("persist field %q: %w", f.sceneID, err)
	}
	return nil
}
