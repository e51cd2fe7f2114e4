package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fablekit/fable/internal/docstore"
	"github.com/fablekit/fable/internal/types"
)

// ProgressCollection holds the remote mirror of batch checkpoints, keyed
// by batch ID. The local file stays authoritative for resume; the mirror
// lets operators watch long runs remotely.
const ProgressCollection = "batch_progress"

// DocProgressStore mirrors checkpoints into the document store.
type DocProgressStore struct {
	store docstore.Store
}

// NewDocProgressStore creates a mirror over the document store.
func NewDocProgressStore(store docstore.Store) *DocProgressStore {
	return &DocProgressStore{store: store}
}

// Init ensures the backing collection exists.
func (d *DocProgressStore) Init(ctx context.Context) error {
	return d.store.EnsureCollection(ctx, ProgressCollection)
}

// Save upserts the checkpoint under its batch ID.
func (d *DocProgressStore) Save(ctx context.Context, p *types.BatchProgress) error {
	if p.BatchID == "" {
		return fmt.Errorf("batch id is required")
	}

	rev, err := d.store.Get(ctx, ProgressCollection, p.BatchID, nil)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	if _, err := d.store.Put(ctx, ProgressCollection, p.BatchID, rev, p); err != nil {
		return fmt.Errorf("failed to mirror batch progress: %w", err)
	}
	return nil
}

// Get fetches a mirrored checkpoint by batch ID.
func (d *DocProgressStore) Get(ctx context.Context, batchID string) (*types.BatchProgress, error) {
	var p types.BatchProgress
	if _, err := d.store.Get(ctx, ProgressCollection, batchID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveQuietly mirrors and only logs on failure. The mirror is advisory;
// a mirror outage must not abort the batch.
func (d *DocProgressStore) SaveQuietly(ctx context.Context, p *types.BatchProgress) {
	if d == nil {
		return
	}
	if err := d.Save(ctx, p); err != nil {
		slog.Warn("failed to mirror batch progress", "batch_id", p.BatchID, "error", err)
	}
}
