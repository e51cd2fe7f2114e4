// Package batch runs large resumable generation sweeps over the catalog,
// checkpointing progress so an interrupted run picks up where it stopped.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/fablekit/fable/internal/types"
)

// ErrNoProgress is returned by Load when no checkpoint exists.
var ErrNoProgress = errors.New("no batch progress found")

// ProgressStore persists batch checkpoints.
type ProgressStore interface {
	Load(ctx context.Context) (*types.BatchProgress, error)
	Save(ctx context.Context, p *types.BatchProgress) error
	Clear(ctx context.Context) error
}

// FileProgressStore checkpoints to a local JSON file. A sidecar flock
// guards against two batch processes sharing one checkpoint.
type FileProgressStore struct {
	path string
	lock *flock.Flock

	mu     sync.Mutex
	locked bool
}

// NewFileProgressStore creates a store writing to path.
func NewFileProgressStore(path string) *FileProgressStore {
	return &FileProgressStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Acquire takes the exclusive lock. It fails fast if another process holds
// it rather than queueing a second runner behind the first.
func (s *FileProgressStore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}

	ok, err := s.lock.TryLockContext(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to lock progress file: %w", err)
	}
	if !ok {
		return fmt.Errorf("another batch run holds the progress lock (%s)", s.lock.Path())
	}
	s.locked = true
	return nil
}

// Release drops the lock.
func (s *FileProgressStore) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		return nil
	}
	s.locked = false
	return s.lock.Unlock()
}

func (s *FileProgressStore) Load(_ context.Context) (*types.BatchProgress, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoProgress
		}
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}

	var p types.BatchProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse progress file: %w", err)
	}
	return &p, nil
}

// Save writes the checkpoint atomically via a temp file rename so a crash
// mid-write never corrupts the previous checkpoint.
func (s *FileProgressStore) Save(_ context.Context, p *types.BatchProgress) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write progress file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace progress file: %w", err)
	}
	return nil
}

func (s *FileProgressStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove progress file: %w", err)
	}
	return nil
}

// MemoryProgressStore is an in-memory ProgressStore for tests.
type MemoryProgressStore struct {
	mu    sync.Mutex
	p     *types.BatchProgress
	Saves int
}

func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{}
}

func (m *MemoryProgressStore) Load(_ context.Context) (*types.BatchProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.p == nil {
		return nil, ErrNoProgress
	}
	cp := *m.p
	return &cp, nil
}

func (m *MemoryProgressStore) Save(_ context.Context, p *types.BatchProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.p = &cp
	m.Saves++
	return nil
}

func (m *MemoryProgressStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = nil
	return nil
}

var (
	_ ProgressStore = (*FileProgressStore)(nil)
	_ ProgressStore = (*MemoryProgressStore)(nil)
)
