//go:build integration

package redis

// REDIS_ADDR=localhost:6379 go test -tags=integration ./internal/store/redis -count=1

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hamed0406/waterwatch/internal/store/storetest"
)

func TestRedisStore_Contract(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR empty")
	}
	prefix := fmt.Sprintf("waterwatch-test-%d:", time.Now().UnixNano())

	s, err := New(context.Background(), addr, prefix, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	storetest.Run(t, s)
}
