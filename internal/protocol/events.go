package protocol

// Event is a typed change notification. The core's responsibility ends at
// emitting these; fan-out to listeners lives in the transport layer.
type Event interface {
	Kind() string
}

type HeightChangedEvent struct {
	X         int `json:"x"`
	Y         int `json:"y"`
	Height    int `json:"height"`
	OldHeight int `json:"old_height"`
}

func (HeightChangedEvent) Kind() string { return EvHeightChanged }

type CellRef struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// AreaChangedEvent carries only the cells that actually changed value.
type AreaChangedEvent struct {
	Cells  []CellRef `json:"cells"`
	Height int       `json:"height"`
}

func (AreaChangedEvent) Kind() string { return EvAreaChanged }

type ElevationUpdatedEvent struct {
	EntityID     string  `json:"entity_id"`
	OldElevation int     `json:"old_elevation"`
	NewElevation int     `json:"new_elevation"`
	Cell         CellRef `json:"cell"`
}

func (ElevationUpdatedEvent) Kind() string { return EvElevationUpdated }

type ExceptionAddedEvent struct {
	EntityID string `json:"entity_id"`
}

func (ExceptionAddedEvent) Kind() string { return EvExceptionAdded }

type ExceptionRemovedEvent struct {
	EntityID string `json:"entity_id"`
}

func (ExceptionRemovedEvent) Kind() string { return EvExceptionRemoved }

// DataImportedEvent reports how much of an imported snapshot was accepted.
// Invalid entries are dropped, not fatal, so Dropped can be non-zero on a
// successful import.
type DataImportedEvent struct {
	Applied int    `json:"applied"`
	Dropped int    `json:"dropped"`
	Version string `json:"version"`
}

func (DataImportedEvent) Kind() string { return EvDataImported }

type SceneSwitchedEvent struct {
	SceneID string `json:"scene_id"`
}

func (SceneSwitchedEvent) Kind() string { return EvSceneSwitched }
