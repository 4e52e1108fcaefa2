package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/hamed0406/waterwatch/internal/store"
	"github.com/hamed0406/waterwatch/internal/store/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, New())
}

func TestMemoryStore_ClosedRejects(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Get after close: want ErrClosed, got %v", err)
	}
	if err := s.Set(ctx, map[string][]byte{"a": nil}); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Set after close: want ErrClosed, got %v", err)
	}
	if err := s.Remove(ctx, "a"); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Remove after close: want ErrClosed, got %v", err)
	}
}
