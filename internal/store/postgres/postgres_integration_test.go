//go:build integration

package postgres

// go test -tags=integration ./internal/store/postgres -count=1

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/store/storetest"
)

func TestKV_Contract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL empty")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE kv`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	storetest.Run(t, s)
}

func TestKV_SetIsAllOrNothing(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL empty")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if _, err := s.pool.Exec(ctx, `TRUNCATE kv`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	// A NUL byte is invalid in a TEXT key, so the transaction must roll back.
	err = s.Set(ctx, map[string][]byte{"good": []byte("1"), "bad\x00key": []byte("2")})
	if err == nil {
		t.Fatalf("expected error for invalid key")
	}
	got, err := s.Get(ctx, "good")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("partial write leaked: %v", got)
	}
}
