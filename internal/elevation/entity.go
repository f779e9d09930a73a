package elevation

import "strings"

// Entity is the read-model the synchronizer consumes from the host entity
// store. X,Y are the authoritative settled position of the footprint's
// top-left corner in canvas pixels, never an in-transit animation frame.
type Entity struct {
	ID string

	X float64
	Y float64

	// Footprint in whole cells. Values below 1 are treated as 1.
	Width  int
	Height int

	Elevation int

	// Inputs to the flight heuristic.
	StatusEffects []string
	FlySpeed      float64
	Flying        bool
}

// EntityStore is the host-side collaborator. The core reads positions and
// writes elevation through the single mutation entrypoint; it never owns
// entity lifecycle.
type EntityStore interface {
	Entity(id string) (Entity, bool)
	Entities() []Entity
	SetElevation(id string, elevation int) error
}

// flightVocabulary flags an entity as airborne when any active status-effect
// label, identifier, or icon path contains one of these terms.
var flightVocabulary = []string{"fly", "flying", "hover", "hovering", "levitate", "levitating"}

// canFly is the airborne heuristic: status-effect vocabulary first, then a
// positive fly speed, then the boolean flag, short-circuiting on the first
// match. Undecidable inputs default to "not flying" so terrain sync stays
// predictable.
func canFly(e Entity) bool {
	for _, effect := range e.StatusEffects {
		label := strings.ToLower(effect)
		for _, term := range flightVocabulary {
			if strings.Contains(label, term) {
				return true
			}
		}
	}
	if e.FlySpeed > 0 {
		return true
	}
	return e.Flying
}
