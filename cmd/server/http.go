package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"heightcraft.app/internal/grid"
	"heightcraft.app/internal/heightfield"
	"heightcraft.app/internal/persistence/archive"
	"heightcraft.app/internal/scene"
)

const maxImportBytes = 8 << 20

// httpAPI mirrors the websocket export/import commands for plain HTTP
// clients, plus scene switching.
type httpAPI struct {
	scene          *scene.Scene
	geom           grid.Geometry
	snapshotSchema *jsonschema.Schema
	logger         *log.Logger
}

func newHTTPAPI(sc *scene.Scene, geom grid.Geometry, schemaDir string, logger *log.Logger) (*httpAPI, error) {
	schema, err := jsonschema.Compile(filepath.Join(schemaDir, "snapshot.schema.json"))
	if err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}
	return &httpAPI{scene: sc, geom: geom, snapshotSchema: schema, logger: logger}, nil
}

// handleExport streams the active field as a zstd-compressed JSON snapshot.
func (a *httpAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	f := a.scene.Field()
	if f == nil {
		http.Error(w, "no active scene", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", f.SceneID()+".json.zst"))
	if err := archive.Encode(w, f.Export()); err != nil {
		a.logger.Printf("export %s: %v", f.SceneID(), err)
	}
}

func (a *httpAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	f := a.scene.Field()
	if f == nil {
		http.Error(w, "no active scene", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		http.Error(w, "snapshot is not JSON", http.StatusBadRequest)
		return
	}
	if err := a.snapshotSchema.Validate(raw); err != nil {
		http.Error(w, "snapshot rejected by schema", http.StatusUnprocessableEntity)
		return
	}
	var snap heightfield.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		http.Error(w, "snapshot shape mismatch", http.StatusBadRequest)
		return
	}
	ok, err := f.Import(r.Context(), snap)
	if !ok {
		http.Error(w, "import rejected", http.StatusBadRequest)
		return
	}
	if err != nil {
		// Applied in memory; the durable write failed.
		http.Error(w, "imported but not persisted: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleSwitchScene discards the in-memory field and loads another scene's
// persisted state under the configured geometry.
func (a *httpAPI) handleSwitchScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SceneID string `json:"scene_id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil || req.SceneID == "" {
		http.Error(w, "scene_id required", http.StatusBadRequest)
		return
	}
	if err := a.scene.SwitchContext(r.Context(), req.SceneID, a.geom); err != nil {
		a.logger.Printf("switch to %s: %v", req.SceneID, err)
		http.Error(w, "switch failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
