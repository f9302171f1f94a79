package store

import (
	"context"
	"testing"
	"time"
)

// TestRedisStore_Contract exercises the full port against a live Redis.
// Note: This requires a Redis instance running on localhost:6379
// Skip with: go test -short
func TestRedisStore_Contract(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test")
	}

	s := NewRedisStore(RedisConfig{
		Addr: "localhost:6379",
		DB:   15, // Use separate DB for tests
	})
	defer s.Close()

	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skip("Redis not available:", err)
	}

	cleanup := func() {
		keys, err := s.Keys(ctx, "redistest:*")
		if err != nil {
			t.Fatalf("listing test keys: %v", err)
		}
		if len(keys) > 0 {
			s.Delete(ctx, keys...)
		}
	}
	cleanup()
	defer cleanup()

	t.Run("SetGetDelete", func(t *testing.T) {
		if err := s.Set(ctx, "redistest:k", "v", 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		val, ok, err := s.Get(ctx, "redistest:k")
		if err != nil || !ok || val != "v" {
			t.Fatalf("Get = (%q, %v, %v), want (v, true, nil)", val, ok, err)
		}

		removed, err := s.Delete(ctx, "redistest:k")
		if err != nil || removed != 1 {
			t.Fatalf("Delete = (%d, %v), want (1, nil)", removed, err)
		}
		_, ok, err = s.Get(ctx, "redistest:k")
		if err != nil || ok {
			t.Error("deleted key should be absent")
		}
	})

	t.Run("TTLSentinels", func(t *testing.T) {
		s.Set(ctx, "redistest:nottl", "v", 0)
		ttl, err := s.TTL(ctx, "redistest:nottl")
		if err != nil || ttl != TTLNone {
			t.Errorf("TTL without expiry = (%v, %v), want TTLNone", ttl, err)
		}

		ttl, err = s.TTL(ctx, "redistest:absent")
		if err != nil || ttl != TTLMissing {
			t.Errorf("TTL of missing key = (%v, %v), want TTLMissing", ttl, err)
		}
	})

	t.Run("SortedSets", func(t *testing.T) {
		key := "redistest:zset"
		for i, member := range []string{"a", "b", "c", "d"} {
			if err := s.SortedSetAdd(ctx, key, float64(i), member); err != nil {
				t.Fatalf("SortedSetAdd: %v", err)
			}
		}

		members, err := s.SortedSetRange(ctx, key, 0, -1)
		if err != nil || len(members) != 4 {
			t.Fatalf("SortedSetRange = (%v, %v), want 4 members", members, err)
		}
		if members[0] != "a" || members[3] != "d" {
			t.Errorf("unexpected order: %v", members)
		}

		byScore, err := s.SortedSetRangeByScore(ctx, key, 1, 2)
		if err != nil || len(byScore) != 2 {
			t.Errorf("SortedSetRangeByScore = (%v, %v), want [b c]", byScore, err)
		}

		// Keep only the newest two.
		if _, err := s.SortedSetTrimByRank(ctx, key, 0, -3); err != nil {
			t.Fatalf("SortedSetTrimByRank: %v", err)
		}
		members, _ = s.SortedSetRange(ctx, key, 0, -1)
		if len(members) != 2 || members[0] != "c" {
			t.Errorf("after trim: %v, want [c d]", members)
		}

		removed, err := s.SortedSetRemoveByScore(ctx, key, 0, 2)
		if err != nil || removed != 1 {
			t.Errorf("SortedSetRemoveByScore = (%d, %v), want (1, nil)", removed, err)
		}
	})

	t.Run("HashCounters", func(t *testing.T) {
		key := "redistest:hash"
		if _, err := s.HashIncrement(ctx, key, "total", 1); err != nil {
			t.Fatalf("HashIncrement: %v", err)
		}
		s.HashIncrement(ctx, key, "total", 2)
		s.HashIncrement(ctx, key, "severity_high", 1)

		fields, err := s.HashGetAll(ctx, key)
		if err != nil {
			t.Fatalf("HashGetAll: %v", err)
		}
		if fields["total"] != "3" || fields["severity_high"] != "1" {
			t.Errorf("unexpected fields: %v", fields)
		}
	})

	t.Run("PipelineAtomic", func(t *testing.T) {
		err := s.Pipeline(ctx, func(p Pipe) error {
			p.SortedSetAdd("redistest:pipe", 1, "x")
			p.SortedSetTrimByRank("redistest:pipe", 0, -101)
			p.Expire("redistest:pipe", time.Minute)
			return nil
		})
		if err != nil {
			t.Fatalf("Pipeline: %v", err)
		}
		members, _ := s.SortedSetRange(ctx, "redistest:pipe", 0, -1)
		if len(members) != 1 {
			t.Errorf("expected pipelined member, got %v", members)
		}
	})
}
