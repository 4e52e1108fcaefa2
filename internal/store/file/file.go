// Package file keeps the whole key/value set in one zstd-compressed JSON
// snapshot on disk, rewritten atomically on every change.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/store"
)

const snapshotVersion = 1

type snapshot struct {
	Version int               `json:"version"`
	Entries map[string][]byte `json:"entries"`
}

type Store struct {
	mu      sync.Mutex
	path    string
	data    map[string][]byte
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	log     *zap.Logger
	closed  bool
}

var _ store.KV = (*Store)(nil)

// Open loads path if it exists. A missing file is an empty store.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	s := &Store{
		path:    path,
		data:    make(map[string][]byte),
		encoder: encoder,
		decoder: decoder,
		log:     log,
	}
	if err := s.load(); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	plain, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Entries != nil {
		s.data = snap.Entries
	}
	s.log.Info("file_store_loaded", zap.String("path", s.path), zap.Int("keys", len(s.data)))
	return nil
}

func (s *Store) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	next := s.copyData()
	for k, v := range entries {
		next[k] = append([]byte(nil), v...)
	}
	return s.commit(next)
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	next := s.copyData()
	removed := 0
	for _, k := range keys {
		if _, ok := next[k]; ok {
			delete(next, k)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	return s.commit(next)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()
	return nil
}

func (s *Store) release() {
	_ = s.encoder.Close()
	s.decoder.Close()
}

func (s *Store) copyData() map[string][]byte {
	next := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		next[k] = v
	}
	return next
}

// commit writes next to disk and only then makes it the live data.
func (s *Store) commit(next map[string][]byte) error {
	plain, err := json.Marshal(snapshot{Version: snapshotVersion, Entries: next})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data := s.encoder.EncodeAll(plain, make([]byte, 0, len(plain)/2))

	tmpFile := s.path + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpFile, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	s.data = next
	return nil
}
