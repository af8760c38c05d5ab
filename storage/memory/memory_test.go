package memory

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ggoodman/shiprocket-mcp-go/storage"
	"github.com/ggoodman/shiprocket-mcp-go/storage/storagetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, err := New(100)
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("New(0) succeeded")
	}
}

func TestLRUEviction(t *testing.T) {
	s, err := New(2)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"))
	_ = s.Set(ctx, "b", []byte("2"))
	_ = s.Set(ctx, "c", []byte("3"))

	if item, _ := s.Get(ctx, "a"); item != nil {
		t.Fatal("oldest entry was not evicted")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestSweeperRemovesExpired(t *testing.T) {
	s, err := NewWithCleanupInterval(10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	if err := s.Set(context.Background(), "k", []byte("v"), storage.WithTTL(time.Millisecond)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired entry never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStoredDataIsCopied(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	buf := []byte("original")
	_ = s.Set(context.Background(), "k", buf)
	buf[0] = 'X'

	item, _ := s.Get(context.Background(), "k")
	if string(item.Data) != "original" {
		t.Fatalf("stored data aliased caller buffer: %q", item.Data)
	}
}
