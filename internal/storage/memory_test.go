package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRecordTTL(t *testing.T) {
	s := newMemory()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	rec := Record{Device: "iPhone-12", CreatedAt: now.UnixMilli(), ContentPrefix: "hello"}
	if err := s.PutRecord(ctx, "sms:abc", rec, 300*time.Second); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	got, ok, err := s.GetRecord(ctx, "sms:abc")
	if err != nil || !ok {
		t.Fatalf("GetRecord = (%v, %v, %v), want hit", got, ok, err)
	}
	if got.Device != "iPhone-12" || got.ContentPrefix != "hello" {
		t.Fatalf("GetRecord returned %+v", got)
	}

	// Within the window it stays.
	now = now.Add(299 * time.Second)
	if _, ok, _ := s.GetRecord(ctx, "sms:abc"); !ok {
		t.Fatal("record expired early")
	}

	// At expiry it behaves as absent.
	now = now.Add(2 * time.Second)
	if _, ok, _ := s.GetRecord(ctx, "sms:abc"); ok {
		t.Fatal("record should have expired")
	}
}

func TestMemoryWindowCounter(t *testing.T) {
	s := newMemory()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.IncrWindow(ctx, "rate:device:x", time.Minute)
		if err != nil {
			t.Fatalf("IncrWindow: %v", err)
		}
		if n != i {
			t.Fatalf("IncrWindow = %d, want %d", n, i)
		}
	}

	// Separate keys count independently.
	if n, _ := s.IncrWindow(ctx, "rate:device:y", time.Minute); n != 1 {
		t.Fatalf("second key count = %d, want 1", n)
	}

	// Window rollover resets the count.
	now = now.Add(61 * time.Second)
	if n, _ := s.IncrWindow(ctx, "rate:device:x", time.Minute); n != 1 {
		t.Fatalf("count after rollover = %d, want 1", n)
	}
}

func TestMemoryPruneExpired(t *testing.T) {
	s := newMemory()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.PutRecord(ctx, "sms:a", Record{}, time.Second)
	_ = s.PutRecord(ctx, "sms:b", Record{}, time.Hour)

	now = now.Add(2 * time.Second)
	removed, err := s.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok, _ := s.GetRecord(ctx, "sms:b"); !ok {
		t.Fatal("live record was pruned")
	}
}
