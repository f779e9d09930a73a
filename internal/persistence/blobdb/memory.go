package blobdb

import (
	"context"
	"sync"
)

// Memory is a map-backed store used when persistence is disabled and in
// tests. Same contract as the sqlite store, nothing durable.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func memKey(namespace, key string) string {
	return namespace + "\x00" + key
}

func (m *Memory) Save(_ context.Context, namespace, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[memKey(namespace, key)] = append([]byte(nil), blob...)
	return nil
}

func (m *Memory) Load(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[memKey(namespace, key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *Memory) Close() error { return nil }
