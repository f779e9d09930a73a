// Package scene ties one active map context together: the coordinate
// mapper, the height field loaded for that scene, and the elevation
// synchronizer over the host entity store. There is no process-wide current
// scene; whoever needs the context holds a *Scene.
package scene

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"heightcraft.app/internal/elevation"
	"heightcraft.app/internal/grid"
	"heightcraft.app/internal/heightfield"
	"heightcraft.app/internal/persistence/archive"
	"heightcraft.app/internal/protocol"
	"heightcraft.app/internal/viewport"
)

type Options struct {
	Store    heightfield.Store
	Entities elevation.EntityStore
	Logger   *log.Logger

	// DataDir enables pre-switch snapshot backups when non-empty.
	DataDir string

	Throttle    time.Duration
	BufferCells int
}

type Scene struct {
	store    heightfield.Store
	entities elevation.EntityStore
	logger   *log.Logger
	dataDir  string
	throttle time.Duration
	buffer   int

	mu     sync.Mutex
	id     string
	geom   grid.Geometry
	mapper *grid.Mapper
	field  *heightfield.Field
	syncer *elevation.Synchronizer
	subs   []func(protocol.Event)

	winValid bool
	winCam   viewport.Camera
	winScr   viewport.Screen
	window   viewport.Window
}

func New(opts Options) *Scene {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	buffer := opts.BufferCells
	if buffer <= 0 {
		buffer = viewport.DefaultBufferCells
	}
	return &Scene{
		store:    opts.Store,
		entities: opts.Entities,
		logger:   logger,
		dataDir:  opts.DataDir,
		throttle: opts.Throttle,
		buffer:   buffer,
		mapper:   &grid.Mapper{},
	}
}

func (s *Scene) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Scene) Geometry() grid.Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geom
}

// Field returns the active scene's height field, or nil before the first
// SwitchContext.
func (s *Scene) Field() *heightfield.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.field
}

func (s *Scene) Sync() *elevation.Synchronizer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncer
}

func (s *Scene) Mapper() *grid.Mapper {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapper
}

// Subscribe registers an event listener for everything the active (and any
// future) scene emits.
func (s *Scene) Subscribe(fn func(protocol.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Scene) dispatch(ev protocol.Event) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// SwitchContext discards the in-memory field and loads the one persisted
// for sceneID. The outgoing field is archived first (its durable copy stays
// untouched either way), the viewport cache is invalidated, and every known
// entity is re-synced against the new field.
func (s *Scene) SwitchContext(ctx context.Context, sceneID string, geom grid.Geometry) error {
	if sceneID == "" {
		return fmt.Errorf("switch context: empty scene id")
	}

	// The backup export takes the field lock, and field mutations dispatch
	// events under that lock into s.mu, so the export must not run while
	// s.mu is held.
	s.mu.Lock()
	outgoing := s.field
	outgoingID := s.id
	s.mu.Unlock()
	if outgoing != nil && s.dataDir != "" {
		if path, err := archive.WriteBackup(s.dataDir, outgoingID, outgoing.Export()); err != nil {
			s.logger.Printf("scene %s: backup before switch failed: %v", outgoingID, err)
		} else {
			s.logger.Printf("scene %s: archived to %s", outgoingID, path)
		}
	}

	s.mu.Lock()
	if s.syncer != nil {
		s.syncer.Stop()
	}

	mapper := &grid.Mapper{}
	if !mapper.Recompute(geom) {
		s.logger.Printf("scene %s: geometry %+v not usable, mapper stays not ready", sceneID, geom)
	}
	field := heightfield.New(sceneID, s.store, s.logger)
	field.Subscribe(s.dispatch)
	syncer := elevation.New(field, mapper, s.entities, s.throttle, s.logger)
	syncer.Subscribe(s.dispatch)

	s.id = sceneID
	s.geom = geom
	s.mapper = mapper
	s.field = field
	s.syncer = syncer
	s.winValid = false
	s.mu.Unlock()

	if err := field.Load(ctx); err != nil {
		return fmt.Errorf("switch context: %w", err)
	}

	syncer.UpdateAll()
	s.dispatch(protocol.SceneSwitchedEvent{SceneID: sceneID})
	return nil
}

// GeometryChanged is the host's notification that map size, cell size, or
// padding was edited. The mapper is recomputed, the cached window dropped,
// and entities re-synced since their cells may have moved.
func (s *Scene) GeometryChanged(geom grid.Geometry) {
	s.mu.Lock()
	s.geom = geom
	if !s.mapper.Recompute(geom) {
		s.logger.Printf("scene %s: geometry %+v not usable, mapper reset", s.id, geom)
	}
	s.winValid = false
	syncer := s.syncer
	s.mu.Unlock()

	if syncer != nil {
		syncer.UpdateAll()
	}
}

// Window computes (or reuses) the renderable cell range for a camera and
// screen. ok=false means the mapper is not ready and nothing should be
// drawn.
func (s *Scene) Window(cam viewport.Camera, scr viewport.Screen) (viewport.Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.winValid && cam == s.winCam && scr == s.winScr {
		return s.window, true
	}
	w, ok := viewport.Compute(s.mapper, cam, scr, s.buffer)
	if !ok {
		return viewport.Window{}, false
	}
	s.winValid = true
	s.winCam = cam
	s.winScr = scr
	s.window = w
	return w, true
}

// InvalidateWindow drops the cached viewport window.
func (s *Scene) InvalidateWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.winValid = false
}

// Close stops the active synchronizer.
func (s *Scene) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncer != nil {
		s.syncer.Stop()
	}
}
