// Package archive reads and writes zstd-compressed JSON snapshot files:
// export downloads and the automatic backup taken before a scene switch.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"heightcraft.app/internal/heightfield"
)

// Encode writes a snapshot to w as zstd-compressed JSON.
func Encode(w io.Writer, snap heightfield.Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// Decode reads a zstd-compressed JSON snapshot from r.
func Decode(r io.Reader) (heightfield.Snapshot, error) {
	var snap heightfield.Snapshot
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()
	if err := json.NewDecoder(bufio.NewReaderSize(dec, 64*1024)).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Write stores a snapshot file at path, creating parent directories.
func Write(path string, snap heightfield.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Encode(f, snap); err != nil {
		return err
	}
	return f.Close()
}

// Read loads a snapshot file written by Write.
func Read(path string) (heightfield.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return heightfield.Snapshot{}, err
	}
	defer f.Close()
	return Decode(f)
}

// WriteBackup drops a timestamped snapshot under
// `<dataDir>/archives/<sceneID>/` and returns its path. Taken before a scene
// switch discards the in-memory field.
func WriteBackup(dataDir, sceneID string, snap heightfield.Snapshot) (string, error) {
	name := time.Now().UTC().Format("20060102-150405.000") + ".json.zst"
	path := filepath.Join(dataDir, "archives", sceneID, name)
	if err := Write(path, snap); err != nil {
		return "", err
	}
	return path, nil
}
