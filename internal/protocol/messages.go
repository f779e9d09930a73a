package protocol

import "encoding/json"

// BaseMsg is the minimal envelope used to route an incoming message.
type BaseMsg struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMsg, error) {
	var m BaseMsg
	err := json.Unmarshal(b, &m)
	return m, err
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	SceneID         string       `json:"scene_id"`
	Geometry        GeometryInfo `json:"geometry"`
	Enabled         bool         `json:"enabled"`
	// Seq is the cursor of the last event emitted before this session
	// attached; a gap between it and the first streamed event means the
	// client should pull a full snapshot.
	Seq uint64 `json:"seq"`
}

type GeometryInfo struct {
	MapWidth        float64 `json:"map_width"`
	MapHeight       float64 `json:"map_height"`
	CellSize        int     `json:"cell_size"`
	PaddingFraction float64 `json:"padding_fraction"`
}

// CMD (client -> server). Op selects which fields are meaningful.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CmdID           string `json:"cmd_id"`
	Op              string `json:"op"`

	X      int `json:"x,omitempty"`
	Y      int `json:"y,omitempty"`
	Height int `json:"height,omitempty"`

	Cells []CellRef `json:"cells,omitempty"`

	EntityID string `json:"entity_id,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`

	Snapshot json.RawMessage `json:"snapshot,omitempty"`

	Entity *EntityInfo `json:"entity,omitempty"`

	Camera *CameraInfo `json:"camera,omitempty"`
	Screen *ScreenInfo `json:"screen,omitempty"`
}

// EntityInfo mirrors the host entity attributes the core consumes.
type EntityInfo struct {
	ID            string   `json:"id"`
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	Width         int      `json:"width,omitempty"`
	Height        int      `json:"height,omitempty"`
	Elevation     int      `json:"elevation,omitempty"`
	StatusEffects []string `json:"status_effects,omitempty"`
	FlySpeed      float64  `json:"fly_speed,omitempty"`
	Flying        bool     `json:"flying,omitempty"`
}

type CameraInfo struct {
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	Scale   float64 `json:"scale"`
}

type ScreenInfo struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// EVENT (server -> client). Data holds the typed event payload on the way
// out and decodes as a generic map on the way in.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Kind            string `json:"kind"`
	Data            any    `json:"data"`
}

// SNAPSHOT (server -> client), reply to an export command.
type SnapshotMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SceneID         string          `json:"scene_id"`
	Snapshot        json.RawMessage `json:"snapshot"`
}

// WINDOW (server -> client), reply to a viewport command: the renderable
// cell range plus the non-zero heights inside it.
type WindowMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Left            int    `json:"left"`
	Top             int    `json:"top"`
	Right           int    `json:"right"`
	Bottom          int    `json:"bottom"`
	Empty           bool   `json:"empty"`

	Heights map[string]int `json:"heights,omitempty"`
}
