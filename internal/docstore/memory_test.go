package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestMemoryPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rev, err := s.Put(ctx, "books", "b1", "", testDoc{Name: "fox", Count: 1})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	var doc testDoc
	gotRev, err := s.Get(ctx, "books", "b1", &doc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotRev != rev || doc.Name != "fox" {
		t.Errorf("got rev=%q doc=%+v", gotRev, doc)
	}

	if err := s.Delete(ctx, "books", "b1", rev); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "books", "b1", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
}

func TestMemoryConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rev1, _ := s.Put(ctx, "books", "b1", "", testDoc{Count: 1})
	if _, err := s.Put(ctx, "books", "b1", rev1, testDoc{Count: 2}); err != nil {
		t.Fatalf("CAS put: %v", err)
	}
	// Stale revision must be rejected.
	if _, err := s.Put(ctx, "books", "b1", rev1, testDoc{Count: 3}); !errors.Is(err, ErrConflict) {
		t.Errorf("stale put = %v, want ErrConflict", err)
	}
	// Create over existing without rev must be rejected.
	if _, err := s.Put(ctx, "books", "b1", "", testDoc{Count: 4}); !errors.Is(err, ErrConflict) {
		t.Errorf("blind create = %v, want ErrConflict", err)
	}
}

func TestMemoryListPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Put(ctx, "books", id, "", testDoc{Name: id})
	}

	docs, err := s.List(ctx, "books", ListOptions{Limit: 2, Skip: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("docs = %d, want 2", len(docs))
	}

	desc, _ := s.List(ctx, "books", ListOptions{Limit: 1, Descending: true})
	var doc testDoc
	if err := unmarshalDoc(desc[0], &doc); err != nil || doc.Name != "d" {
		t.Errorf("descending first = %+v, err %v", doc, err)
	}
}

func TestMemoryFindSelector(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(ctx, "books", "b1", "", map[string]any{"ageRange": "3-5"})
	s.Put(ctx, "books", "b2", "", map[string]any{"ageRange": "6-8"})
	s.Put(ctx, "books", "b3", "", map[string]any{"ageRange": "6-8"})

	docs, err := s.Find(ctx, "books", FindQuery{Selector: map[string]any{"ageRange": "6-8"}})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("docs = %d, want 2", len(docs))
	}
}

func TestUpdateRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(ctx, "books", "b1", "", testDoc{Count: 0})

	calls := 0
	out, err := Update[testDoc](ctx, s, "books", "b1", func(d *testDoc) error {
		calls++
		if calls == 1 {
			// Simulate a concurrent writer between read and write.
			rev, _ := s.Get(ctx, "books", "b1", nil)
			s.Put(ctx, "books", "b1", rev, testDoc{Count: 10})
		}
		d.Count++
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (retry after conflict)", calls)
	}
	if out.Count != 11 {
		t.Errorf("count = %d, want 11 (applied on fresh read)", out.Count)
	}
}

func unmarshalDoc(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}
