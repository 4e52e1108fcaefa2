// Package redis stores each key as a plain Redis string under a prefix.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/store"
)

type Store struct {
	client *goredis.Client
	prefix string
	log    *zap.Logger
}

var _ store.KV = (*Store)(nil)

// New connects to addr and pings it before returning.
func New(ctx context.Context, addr, prefix string, log *zap.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, prefix, log), nil
}

func NewWithClient(client *goredis.Client, prefix string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, prefix: prefix, log: log}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", mapErr(err))
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // nil: key missing
		}
		out[keys[i]] = []byte(str)
	}
	return out, nil
}

// Set writes all entries in one MULTI/EXEC transaction.
func (s *Store) Set(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Close() error {
	err := s.client.Close()
	if err == goredis.ErrClosed {
		return nil
	}
	return err
}

func mapErr(err error) error {
	if err == goredis.ErrClosed {
		return store.ErrClosed
	}
	return err
}
