package blobstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory ArtifactStore for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	base    string
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		base:    "https://cdn.test",
	}
}

func (m *MemoryStore) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[path] = memoryObject{data: cp, contentType: contentType}
	return m.PublicURL(path), nil
}

func (m *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *MemoryStore) PublicURL(path string) string {
	return m.base + "/" + path
}

// Object returns the stored bytes and content type for assertions.
func (m *MemoryStore) Object(path string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	return obj.data, obj.contentType, ok
}

// Len returns the number of stored artifacts.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var _ ArtifactStore = (*MemoryStore)(nil)
