package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"heightcraft.app/internal/config"
	"heightcraft.app/internal/entities"
	"heightcraft.app/internal/grid"
	"heightcraft.app/internal/heightfield"
	"heightcraft.app/internal/persistence/blobdb"
	"heightcraft.app/internal/scene"
	"heightcraft.app/internal/transport/ws"
)

type closableStore interface {
	heightfield.Store
	Close() error
}

func main() {
	var (
		addr         = flag.String("addr", "", "http listen address (overrides settings)")
		settingsPath = flag.String("settings", "", "path to settings.yaml (empty: built-in defaults)")
		dataDir      = flag.String("data", "", "runtime data directory (overrides settings)")
		schemaDir    = flag.String("schemas", "", "json schema directory (overrides settings)")
		sceneID      = flag.String("scene", "", "initial scene id (overrides settings)")
		disableDB    = flag.Bool("disable_db", false, "keep field state in memory only")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*settingsPath)
	if err != nil {
		logger.Fatalf("load settings: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Addr = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
	}
	if strings.TrimSpace(*schemaDir) != "" {
		cfg.SchemaDir = *schemaDir
	}
	if strings.TrimSpace(*sceneID) != "" {
		cfg.Scene.DefaultID = *sceneID
	}
	if *disableDB {
		cfg.DisableDB = true
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	registry := entities.NewRegistry()
	sc := scene.New(scene.Options{
		Store:       store,
		Entities:    registry,
		Logger:      logger,
		DataDir:     cfg.DataDir,
		Throttle:    time.Duration(cfg.Sync.ThrottleMs) * time.Millisecond,
		BufferCells: cfg.Viewport.BufferCells,
	})
	defer sc.Close()
	registry.SetMoveHandler(func(id string) {
		if sy := sc.Sync(); sy != nil {
			sy.OnEntityMoved(id)
		}
	})

	geom := grid.Geometry{
		MapWidth:        cfg.Scene.MapWidth,
		MapHeight:       cfg.Scene.MapHeight,
		CellSize:        cfg.Scene.CellSize,
		PaddingFraction: cfg.Scene.PaddingFraction,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sc.SwitchContext(ctx, cfg.Scene.DefaultID, geom); err != nil {
		logger.Fatalf("load scene %s: %v", cfg.Scene.DefaultID, err)
	}
	logger.Printf("scene %s loaded (%d cells)", sc.ID(), sc.Field().CellCount())

	wsServer, err := ws.NewServer(sc, registry, cfg.SchemaDir, logger)
	if err != nil {
		logger.Fatalf("ws server: %v", err)
	}

	api, err := newHTTPAPI(sc, geom, cfg.SchemaDir, logger)
	if err != nil {
		logger.Fatalf("http api: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsServer.Handler())
	mux.HandleFunc("/v1/export", api.handleExport)
	mux.HandleFunc("/v1/import", api.handleImport)
	mux.HandleFunc("/v1/scene", api.handleSwitchScene)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func openStore(cfg config.Config, logger *log.Logger) (closableStore, error) {
	if cfg.DisableDB {
		logger.Printf("persistence disabled, field state is memory only")
		return blobdb.NewMemory(), nil
	}
	return blobdb.Open(filepath.Join(cfg.DataDir, "heightcraft.db"))
}
