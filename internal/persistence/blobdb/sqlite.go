// Package blobdb is the durable system of record: namespaced JSON blobs in
// an embedded sqlite database. Writes funnel through a single writer
// goroutine; each caller gets the outcome of its own write, so a failed
// persist surfaces to the mutating operation that caused it.
package blobdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("blobdb: store closed")

type Store struct {
	db *sql.DB

	ch   chan saveReq
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type saveReq struct {
	namespace string
	key       string
	blob      []byte
	resp      chan error
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:   db,
		ch:   make(chan saveReq, 64),
		quit: make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL keeps field edits cheap; NORMAL is enough durability for a store
	// that is re-read on every scene switch.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS blobs (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		blob       BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);`)
	return err
}

func (s *Store) loop() {
	for {
		select {
		case r := <-s.ch:
			r.resp <- s.write(r)
		case <-s.quit:
			// Fail any writes that raced the shutdown.
			for {
				select {
				case r := <-s.ch:
					r.resp <- ErrClosed
				default:
					return
				}
			}
		}
	}
}

func (s *Store) write(r saveReq) error {
	_, err := s.db.Exec(
		`INSERT INTO blobs (namespace, key, blob, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET blob=excluded.blob, updated_at=excluded.updated_at;`,
		r.namespace, r.key, r.blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Save writes one blob and reports whether the durable write succeeded.
func (s *Store) Save(ctx context.Context, namespace, key string, blob []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	r := saveReq{
		namespace: namespace,
		key:       key,
		blob:      append([]byte(nil), blob...),
		resp:      make(chan error, 1),
	}
	select {
	case s.ch <- r:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load reads one blob back. found=false (no error) when the key was never
// saved.
func (s *Store) Load(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM blobs WHERE namespace = ? AND key = ?;`,
		namespace, key,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

// Keys lists the saved keys under a namespace, for scene enumeration.
func (s *Store) Keys(ctx context.Context, namespace string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM blobs WHERE namespace = ? ORDER BY key;`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
