// Package entities is an in-process implementation of the host entity
// store: the server's authoritative set of tokens with settled positions.
// Embedding hosts replace this with an adapter to their own store.
package entities

import (
	"sort"
	"sync"

	"heightcraft.app/internal/elevation"
)

type Registry struct {
	mu     sync.Mutex
	ents   map[string]elevation.Entity
	onMove func(id string)
}

func NewRegistry() *Registry {
	return &Registry{ents: make(map[string]elevation.Entity)}
}

// SetMoveHandler installs the callback fired after a position change,
// typically the active synchronizer's OnEntityMoved.
func (r *Registry) SetMoveHandler(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMove = fn
}

func (r *Registry) Upsert(e elevation.Entity) {
	if e.ID == "" {
		return
	}
	if e.Width < 1 {
		e.Width = 1
	}
	if e.Height < 1 {
		e.Height = 1
	}
	r.mu.Lock()
	old, existed := r.ents[e.ID]
	r.ents[e.ID] = e
	fn := r.onMove
	r.mu.Unlock()
	// A new entity or a position change counts as a move; attribute-only
	// updates do not.
	if fn != nil && (!existed || old.X != e.X || old.Y != e.Y) {
		fn(e.ID)
	}
}

// Move updates the settled position and reports whether the entity exists.
func (r *Registry) Move(id string, x, y float64) bool {
	r.mu.Lock()
	e, ok := r.ents[id]
	if ok {
		e.X = x
		e.Y = y
		r.ents[id] = e
	}
	fn := r.onMove
	r.mu.Unlock()
	if ok && fn != nil {
		fn(id)
	}
	return ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ents, id)
}

func (r *Registry) Entity(id string) (elevation.Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.ents[id]
	return e, ok
}

func (r *Registry) Entities() []elevation.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]elevation.Entity, 0, len(r.ents))
	for _, e := range r.ents {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) SetElevation(id string, elevation int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.ents[id]
	if !ok {
		// Entity vanished between queue and flush; nothing to do.
		return nil
	}
	e.Elevation = elevation
	r.ents[id] = e
	return nil
}
