package history

import (
	"context"
	"fmt"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_History_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	ex := Exchange{
		Question: "who rules the northern reach?",
		Answer:   "The northern reach is held by the Karst clans.",
		Sources:  "lore/regions/north.md",
	}
	if err := s.Append(ctx, ex); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 exchange, got %d", len(got))
	}
	if got[0].Question != ex.Question || got[0].Answer != ex.Answer || got[0].Sources != ex.Sources {
		t.Errorf("round-trip mismatch: got %+v", got[0])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}
}

func Test_History_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 6 {
		ex := Exchange{Question: fmt.Sprintf("q%d", i), Answer: "a"}
		if err := s.Append(ctx, ex); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Recent(ctx, 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("want 4 exchanges, got %d", len(got))
	}
}

func Test_History_NewestFirstOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	questions := []string{"first", "second", "third"}
	for _, q := range questions {
		if err := s.Append(ctx, Exchange{Question: q, Answer: "a"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 exchanges, got %d", len(got))
	}
	// Newest first: insertion order reversed.
	for i, want := range []string{"third", "second", "first"} {
		if got[i].Question != want {
			t.Errorf("exchange[%d]: want %q, got %q", i, want, got[i].Question)
		}
	}
}

func Test_History_EmptyStoreReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want 0 exchanges, got %d", len(got))
	}
}
