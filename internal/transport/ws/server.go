// Package ws streams height-field change events to renderer clients and
// accepts edit commands over a websocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"heightcraft.app/internal/elevation"
	"heightcraft.app/internal/entities"
	"heightcraft.app/internal/grid"
	"heightcraft.app/internal/heightfield"
	"heightcraft.app/internal/protocol"
	"heightcraft.app/internal/scene"
	"heightcraft.app/internal/viewport"
)

const outQueueSize = 64

type Server struct {
	scene    *scene.Scene
	registry *entities.Registry
	logger   *log.Logger

	snapshotSchema *jsonschema.Schema
	upgrader       websocket.Upgrader

	mu       sync.Mutex
	seq      uint64
	nextSess uint64
	clients  map[*client]struct{}
}

type client struct {
	out chan []byte
}

// NewServer wires the transport to a scene. schemaDir must contain
// snapshot.schema.json; imports are validated against it before they reach
// the field.
func NewServer(sc *scene.Scene, registry *entities.Registry, schemaDir string, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	schema, err := jsonschema.Compile(filepath.Join(schemaDir, "snapshot.schema.json"))
	if err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}
	s := &Server{
		scene:          sc,
		registry:       registry,
		logger:         logger,
		snapshotSchema: schema,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: make(map[*client]struct{}),
	}
	sc.Subscribe(s.broadcastEvent)
	return s, nil
}

// Seq reports the cursor of the last event broadcast.
func (s *Server) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// broadcastEvent assigns the next cursor and fans the event out. Slow
// clients get dropped frames, not a blocked core; the cursor gap tells them
// to resync.
func (s *Server) broadcastEvent(ev protocol.Event) {
	s.mu.Lock()
	s.seq++
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Seq:             s.seq,
		Kind:            ev.Kind(),
		Data:            ev,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		s.mu.Unlock()
		s.logger.Printf("ws: marshal event %s: %v", ev.Kind(), err)
		return
	}
	for c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.logger.Printf("ws: client queue full, dropping %s", ev.Kind())
		}
	}
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		defer s.detach(c)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-c.out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCmd {
				continue
			}
			var cmd protocol.CmdMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			if cmd.ProtocolVersion != protocol.Version {
				s.send(c, s.ack(cmd.CmdID, false, protocol.ErrProtoBadRequest, "bad protocol_version"))
				continue
			}
			// A broken command must not take down the reader; every op
			// answers with an ack or a typed reply.
			s.handleCmd(r.Context(), c, cmd)
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	enabled := false
	if f := s.scene.Field(); f != nil {
		enabled = f.Enabled()
	}
	g := s.scene.Geometry()

	s.mu.Lock()
	s.nextSess++
	sessID := "S" + strconv.FormatUint(s.nextSess, 10)
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessID,
		SceneID:         s.scene.ID(),
		Geometry: protocol.GeometryInfo{
			MapWidth:        g.MapWidth,
			MapHeight:       g.MapHeight,
			CellSize:        g.CellSize,
			PaddingFraction: g.PaddingFraction,
		},
		Enabled: enabled,
		Seq:     s.seq,
	}
	s.mu.Unlock()

	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}

	c := &client{out: make(chan []byte, outQueueSize)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	return c
}

func (s *Server) detach(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) send(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("ws: marshal reply: %v", err)
		return
	}
	select {
	case c.out <- b:
	default:
		s.logger.Printf("ws: client queue full, dropping reply")
	}
}

func (s *Server) ack(cmdID string, accepted bool, code, message string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          cmdID,
		Accepted:        accepted,
		Code:            code,
		Message:         message,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) handleCmd(ctx context.Context, c *client, cmd protocol.CmdMsg) {
	f := s.scene.Field()
	if f == nil {
		s.send(c, s.ack(cmd.CmdID, false, protocol.ErrNotReady, "no active scene"))
		return
	}

	switch cmd.Op {
	case protocol.OpSet:
		ok, err := f.Set(ctx, cmd.X, cmd.Y, cmd.Height)
		s.ackMutation(c, cmd.CmdID, ok, err, protocol.ErrOutOfRange)

	case protocol.OpSetArea:
		cells := make([]grid.Cell, 0, len(cmd.Cells))
		for _, ref := range cmd.Cells {
			cells = append(cells, grid.Cell{X: ref.X, Y: ref.Y})
		}
		ok, err := f.SetArea(ctx, cells, cmd.Height)
		s.ackMutation(c, cmd.CmdID, ok, err, protocol.ErrOutOfRange)

	case protocol.OpAddException:
		ok, err := f.AddException(ctx, cmd.EntityID)
		s.ackMutation(c, cmd.CmdID, ok, err, protocol.ErrBadRequest)

	case protocol.OpRemoveException:
		ok, err := f.RemoveException(ctx, cmd.EntityID)
		s.ackMutation(c, cmd.CmdID, ok, err, protocol.ErrBadRequest)

	case protocol.OpSetEnabled:
		wasEnabled := f.Enabled()
		err := f.SetEnabled(ctx, cmd.Enabled)
		if cmd.Enabled && !wasEnabled {
			// Entities that moved while sync was off have stale
			// elevations; re-enable reconciles all of them.
			if sy := s.scene.Sync(); sy != nil {
				sy.UpdateAll()
			}
		}
		s.ackMutation(c, cmd.CmdID, true, err, "")

	case protocol.OpImport:
		s.handleImport(ctx, c, cmd, f)

	case protocol.OpExport:
		blob, err := f.Export().MarshalBlob()
		if err != nil {
			s.send(c, s.ack(cmd.CmdID, false, protocol.ErrInternal, err.Error()))
			return
		}
		s.send(c, protocol.SnapshotMsg{
			Type:            protocol.TypeSnapshot,
			ProtocolVersion: protocol.Version,
			SceneID:         f.SceneID(),
			Snapshot:        blob,
		})

	case protocol.OpUpsertEntity:
		if cmd.Entity == nil || cmd.Entity.ID == "" {
			s.send(c, s.ack(cmd.CmdID, false, protocol.ErrBadRequest, "missing entity"))
			return
		}
		s.registry.Upsert(entityFromInfo(*cmd.Entity))
		s.send(c, s.ack(cmd.CmdID, true, "", ""))

	case protocol.OpMoveEntity:
		if cmd.Entity == nil || cmd.Entity.ID == "" {
			s.send(c, s.ack(cmd.CmdID, false, protocol.ErrBadRequest, "missing entity"))
			return
		}
		if !s.registry.Move(cmd.Entity.ID, cmd.Entity.X, cmd.Entity.Y) {
			s.send(c, s.ack(cmd.CmdID, false, protocol.ErrBadRequest, "unknown entity"))
			return
		}
		s.send(c, s.ack(cmd.CmdID, true, "", ""))

	case protocol.OpRemoveEntity:
		s.registry.Remove(cmd.EntityID)
		s.send(c, s.ack(cmd.CmdID, true, "", ""))

	case protocol.OpViewport:
		s.handleViewport(c, cmd, f)

	default:
		s.send(c, s.ack(cmd.CmdID, false, protocol.ErrProtoBadRequest, "unknown op "+cmd.Op))
	}
}

// ackMutation maps field results onto the wire: validation failure rejects
// the command, a persist failure accepts it (the in-memory value changed)
// but reports the error so the client can retry or reload.
func (s *Server) ackMutation(c *client, cmdID string, ok bool, err error, rejectCode string) {
	switch {
	case !ok:
		s.send(c, s.ack(cmdID, false, rejectCode, "rejected"))
	case err != nil:
		s.send(c, s.ack(cmdID, true, protocol.ErrPersist, err.Error()))
	default:
		s.send(c, s.ack(cmdID, true, "", ""))
	}
}

func (s *Server) handleImport(ctx context.Context, c *client, cmd protocol.CmdMsg, f *heightfield.Field) {
	if len(cmd.Snapshot) == 0 {
		s.send(c, s.ack(cmd.CmdID, false, protocol.ErrBadRequest, "missing snapshot"))
		return
	}
	var raw any
	if err := json.Unmarshal(cmd.Snapshot, &raw); err != nil {
		s.send(c, s.ack(cmd.CmdID, false, protocol.ErrProtoBadRequest, "snapshot is not JSON"))
		return
	}
	if err := s.snapshotSchema.Validate(raw); err != nil {
		s.send(c, s.ack(cmd.CmdID, false, protocol.ErrBadRequest, "snapshot rejected by schema"))
		return
	}
	var snap heightfield.Snapshot
	if err := json.Unmarshal(cmd.Snapshot, &snap); err != nil {
		s.send(c, s.ack(cmd.CmdID, false, protocol.ErrProtoBadRequest, "snapshot shape mismatch"))
		return
	}
	ok, err := f.Import(ctx, snap)
	s.ackMutation(c, cmd.CmdID, ok, err, protocol.ErrBadRequest)
}

func (s *Server) handleViewport(c *client, cmd protocol.CmdMsg, f *heightfield.Field) {
	if cmd.Camera == nil || cmd.Screen == nil {
		s.send(c, s.ack(cmd.CmdID, false, protocol.ErrBadRequest, "missing camera or screen"))
		return
	}
	w, ok := s.scene.Window(
		viewport.Camera{OffsetX: cmd.Camera.OffsetX, OffsetY: cmd.Camera.OffsetY, Scale: cmd.Camera.Scale},
		viewport.Screen{Width: cmd.Screen.Width, Height: cmd.Screen.Height},
	)
	if !ok {
		s.send(c, s.ack(cmd.CmdID, false, protocol.ErrNotReady, "mapper not ready"))
		return
	}
	msg := protocol.WindowMsg{
		Type:            protocol.TypeWindow,
		ProtocolVersion: protocol.Version,
		Left:            w.Left,
		Top:             w.Top,
		Right:           w.Right,
		Bottom:          w.Bottom,
		Empty:           w.Empty(),
	}
	if !w.Empty() {
		heights := make(map[string]int)
		w.Each(func(cell grid.Cell) {
			if h := f.Get(cell.X, cell.Y); h != 0 {
				heights[cell.Key()] = h
			}
		})
		msg.Heights = heights
	}
	s.send(c, msg)
}

func entityFromInfo(in protocol.EntityInfo) elevation.Entity {
	return elevation.Entity{
		ID:            in.ID,
		X:             in.X,
		Y:             in.Y,
		Width:         in.Width,
		Height:        in.Height,
		Elevation:     in.Elevation,
		StatusEffects: in.StatusEffects,
		FlySpeed:      in.FlySpeed,
		Flying:        in.Flying,
	}
}
