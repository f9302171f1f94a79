package blocklist

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/yourusername/guardrail/store"
)

func TestBlockList_BlockAndCheck(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	b := New(s, nil)
	ctx := context.Background()

	if b.IsBlocked(ctx, "1.2.3.4") {
		t.Error("actor should not be blocked initially")
	}

	if err := b.Block(ctx, "1.2.3.4", time.Minute); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if !b.IsBlocked(ctx, "1.2.3.4") {
		t.Error("actor should be blocked")
	}
	if b.IsBlocked(ctx, "5.6.7.8") {
		t.Error("other actors should not be blocked")
	}
}

func TestBlockList_IdempotentReblock(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	b := New(s, nil)
	ctx := context.Background()

	// Re-blocking resets the ttl to the new duration; it never stacks.
	if err := b.Block(ctx, "1.2.3.4", time.Hour); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if err := b.Block(ctx, "1.2.3.4", 2*time.Minute); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	ttl, err := s.TTL(ctx, "blocked:1.2.3.4")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl > 2*time.Minute || ttl <= 0 {
		t.Errorf("ttl = %v, want (0, 2m] after re-block", ttl)
	}

	actors, err := b.ListBlocked(ctx)
	if err != nil {
		t.Fatalf("ListBlocked failed: %v", err)
	}
	if len(actors) != 1 {
		t.Errorf("re-blocking created %d entries, want exactly 1", len(actors))
	}
}

func TestBlockList_ExpiryMonotonicity(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	b := New(s, nil)
	ctx := context.Background()

	if err := b.Block(ctx, "1.2.3.4", 50*time.Millisecond); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if !b.IsBlocked(ctx, "1.2.3.4") {
		t.Fatal("actor should be blocked before expiry")
	}

	time.Sleep(80 * time.Millisecond)

	// No explicit Unblock needed once the ttl lapses
	if b.IsBlocked(ctx, "1.2.3.4") {
		t.Error("actor should not be blocked after expiry")
	}
}

func TestBlockList_Unblock(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	b := New(s, nil)
	ctx := context.Background()

	b.Block(ctx, "1.2.3.4", time.Hour)

	removed, err := b.Unblock(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Unblock failed: %v", err)
	}
	if !removed {
		t.Error("Unblock should report a removed entry")
	}
	if b.IsBlocked(ctx, "1.2.3.4") {
		t.Error("actor should not be blocked after Unblock")
	}

	removed, err = b.Unblock(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Unblock failed: %v", err)
	}
	if removed {
		t.Error("second Unblock should report nothing removed")
	}
}

func TestBlockList_ListBlocked(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	b := New(s, nil)
	ctx := context.Background()

	b.Block(ctx, "1.2.3.4", time.Hour)
	b.Block(ctx, "5.6.7.8", time.Hour)
	b.Block(ctx, "9.9.9.9", 20*time.Millisecond)

	time.Sleep(40 * time.Millisecond)

	actors, err := b.ListBlocked(ctx)
	if err != nil {
		t.Fatalf("ListBlocked failed: %v", err)
	}
	sort.Strings(actors)
	want := []string{"1.2.3.4", "5.6.7.8"}
	if len(actors) != len(want) {
		t.Fatalf("ListBlocked = %v, want %v", actors, want)
	}
	for i := range want {
		if actors[i] != want[i] {
			t.Errorf("ListBlocked[%d] = %q, want %q", i, actors[i], want[i])
		}
	}
}

// failingStore simulates an unreachable backend.
type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, &store.StoreError{Backend: "test", Op: "get", Err: errors.New("connection refused")}
}

func TestBlockList_FailsOpenOnStoreError(t *testing.T) {
	mem := store.NewMemoryStore()
	defer mem.Close()
	b := New(&failingStore{MemoryStore: mem}, nil)
	ctx := context.Background()

	if b.IsBlocked(ctx, "1.2.3.4") {
		t.Error("IsBlocked must fail open when the store is unreachable")
	}
}
