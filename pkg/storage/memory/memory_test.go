package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tributary-ai/tributary/pkg/storage"
)

func newTranscript(id string, at time.Time) *storage.Transcript {
	return &storage.Transcript{
		ID:        id,
		Provider:  "mock",
		Model:     "test-model",
		Text:      "hello",
		CreatedAt: at,
	}
}

func TestStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	tr := newTranscript("tr_1", time.Now())
	if err := s.Save(ctx, tr); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, tr); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate Save error = %v, want ErrConflict", err)
	}

	got, err := s.Get(ctx, "tr_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "hello" {
		t.Errorf("text = %q", got.Text)
	}

	if err := s.Delete(ctx, "tr_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "tr_1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "tr_1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("double Delete error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	base := time.Now()
	for i := 0; i < 5; i++ {
		tr := newTranscript(fmt.Sprintf("tr_%d", i), base.Add(time.Duration(i)*time.Second))
		if err := s.Save(ctx, tr); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := s.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "tr_4" || got[2].ID != "tr_2" {
		t.Errorf("order = %s..%s, want tr_4..tr_2", got[0].ID, got[2].ID)
	}
}

func TestStore_LRUEviction(t *testing.T) {
	ctx := context.Background()
	s := New(2)

	now := time.Now()
	for _, id := range []string{"a", "b"} {
		if err := s.Save(ctx, newTranscript(id, now)); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	// Touch "a" so "b" becomes the eviction candidate.
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := s.Save(ctx, newTranscript("c", now)); err != nil {
		t.Fatalf("Save c: %v", err)
	}

	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}
	if _, err := s.Get(ctx, "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("evicted Get error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Errorf("recently used entry evicted: %v", err)
	}
}
