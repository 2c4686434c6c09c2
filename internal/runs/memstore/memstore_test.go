package memstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/mdwatch/mdwatch/internal/runs"
)

func TestStore_PutAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	r := &runs.Run{ID: "r-1", Status: runs.StatusRunning, Trigger: "manual"}
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(ctx, "r-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected run to be found")
	}
	if got.ID != "r-1" {
		t.Errorf("ID = %q, want %q", got.ID, "r-1")
	}
	if got.Trigger != "manual" {
		t.Errorf("Trigger = %q, want %q", got.Trigger, "manual")
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestStore_PutUpdatesInPlace(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	r := &runs.Run{ID: "r-1", Status: runs.StatusRunning}
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}
	r.Status = runs.StatusComplete
	if err := s.Put(ctx, r); err != nil {
		t.Fatalf("Put update: %v", err)
	}

	got, _, _ := s.Get(ctx, "r-1")
	if got.Status != runs.StatusComplete {
		t.Errorf("Status = %q, want %q", got.Status, runs.StatusComplete)
	}
	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(List) = %d, want 1 (update must not duplicate)", len(all))
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Put(ctx, &runs.Run{ID: fmt.Sprintf("r-%d", i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := s.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "r-4" || got[2].ID != "r-2" {
		t.Errorf("order = [%s %s %s], want newest first", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	if err := s.Put(ctx, &runs.Run{ID: "r-1", EntriesSeen: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, _, _ := s.Get(ctx, "r-1")
	got.EntriesSeen = 99

	again, _, _ := s.Get(ctx, "r-1")
	if again.EntriesSeen != 1 {
		t.Errorf("EntriesSeen = %d, want 1 (mutating a Get result must not affect the store)", again.EntriesSeen)
	}
}
