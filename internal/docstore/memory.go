package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests. Revisions follow the
// CouchDB "N-suffix" shape so conflict handling can be exercised.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]memoryDoc
}

type memoryDoc struct {
	rev  string
	data json.RawMessage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]memoryDoc)}
}

func (m *MemoryStore) EnsureCollection(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = make(map[string]memoryDoc)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, collection, id string, out any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return "", ErrNotFound
	}
	if out != nil {
		if err := json.Unmarshal(doc.data, out); err != nil {
			return "", fmt.Errorf("failed to unmarshal document: %w", err)
		}
	}
	return doc.rev, nil
}

func (m *MemoryStore) Put(_ context.Context, collection, id, rev string, doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]memoryDoc)
		m.collections[collection] = coll
	}

	existing, exists := coll[id]
	if exists && existing.rev != rev {
		return "", ErrConflict
	}
	if !exists && rev != "" {
		return "", ErrConflict
	}

	newRev := nextRev(rev)
	coll[id] = memoryDoc{rev: newRev, data: raw}
	return newRev, nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id, rev string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	if doc.rev != rev {
		return ErrConflict
	}
	delete(m.collections[collection], id)
	return nil
}

func (m *MemoryStore) List(_ context.Context, collection string, opts ListOptions) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if opts.Descending {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	if opts.Skip > 0 {
		if opts.Skip >= len(ids) {
			return nil, nil
		}
		ids = ids[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(ids) {
		ids = ids[:opts.Limit]
	}

	docs := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, coll[id].data)
	}
	return docs, nil
}

// Find supports scalar-equality selectors, which is all the catalog needs.
func (m *MemoryStore) Find(ctx context.Context, collection string, q FindQuery) ([]json.RawMessage, error) {
	all, err := m.List(ctx, collection, ListOptions{})
	if err != nil {
		return nil, err
	}

	var matched []json.RawMessage
	for _, raw := range all {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		if selectorMatches(q.Selector, fields) {
			matched = append(matched, raw)
		}
	}

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func selectorMatches(selector map[string]any, fields map[string]any) bool {
	for key, want := range selector {
		got, ok := fields[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func nextRev(rev string) string {
	n := 0
	if rev != "" {
		if i := strings.Index(rev, "-"); i > 0 {
			n, _ = strconv.Atoi(rev[:i])
		}
	}
	return fmt.Sprintf("%d-mem", n+1)
}

var _ Store = (*MemoryStore)(nil)
