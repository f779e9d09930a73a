// Package protocol defines the wire messages and typed change events the
// height-field core emits to renderer clients.
package protocol

const Version = "1.0"

// Message types.
const (
	TypeHello    = "HELLO"
	TypeWelcome  = "WELCOME"
	TypeCmd      = "CMD"
	TypeAck      = "ACK"
	TypeEvent    = "EVENT"
	TypeSnapshot = "SNAPSHOT"
	TypeWindow   = "WINDOW"
)

// Command ops (client -> server).
const (
	OpSet             = "set"
	OpSetArea         = "set_area"
	OpAddException    = "add_exception"
	OpRemoveException = "remove_exception"
	OpImport          = "import"
	OpExport          = "export"
	OpSetEnabled      = "set_enabled"

	OpUpsertEntity = "upsert_entity"
	OpMoveEntity   = "move_entity"
	OpRemoveEntity = "remove_entity"
	OpViewport     = "viewport"
)

// Event kinds (server -> client).
const (
	EvHeightChanged    = "height_changed"
	EvAreaChanged      = "area_changed"
	EvElevationUpdated = "elevation_updated"
	EvExceptionAdded   = "exception_added"
	EvExceptionRemoved = "exception_removed"
	EvDataImported     = "data_imported"
	EvSceneSwitched    = "scene_switched"
)
