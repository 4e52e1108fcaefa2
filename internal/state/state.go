// Package state maps the daemon's persisted records onto store keys.
package state

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/domain"
	"github.com/hamed0406/waterwatch/internal/store"
)

const (
	KeyFingerprint = "lastAlertSignature"
	KeyLatest      = "latestOutageData"
	KeySettings    = "settings"
)

type State struct {
	kv       store.KV
	defaults domain.Settings
	log      *zap.Logger
}

func New(kv store.KV, defaults domain.Settings, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	if defaults.MonitoredLocations == nil {
		defaults.MonitoredLocations = []domain.MonitoredLocation{}
	}
	return &State{kv: kv, defaults: defaults, log: log}
}

func (s *State) Defaults() domain.Settings { return s.defaults }

// Settings returns the stored settings merged over defaults. A missing or
// unreadable record yields the defaults.
func (s *State) Settings(ctx context.Context) (domain.Settings, error) {
	vals, err := s.kv.Get(ctx, KeySettings)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	raw, ok := vals[KeySettings]
	if !ok {
		return domain.StoredSettings{}.Merge(s.defaults), nil
	}
	var stored domain.StoredSettings
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.log.Warn("settings_decode_error", zap.Error(err))
		return domain.StoredSettings{}.Merge(s.defaults), nil
	}
	return stored.Merge(s.defaults), nil
}

// HasSettings reports whether a settings record was ever saved.
func (s *State) HasSettings(ctx context.Context) (bool, error) {
	vals, err := s.kv.Get(ctx, KeySettings)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	_, ok := vals[KeySettings]
	return ok, nil
}

func (s *State) SaveSettings(ctx context.Context, settings domain.Settings) error {
	raw, err := json.Marshal(settings.Stored())
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.kv.Set(ctx, map[string][]byte{KeySettings: raw}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Fingerprint returns the last persisted fingerprint; ok is false when none was stored.
func (s *State) Fingerprint(ctx context.Context) (fp string, ok bool, err error) {
	vals, err := s.kv.Get(ctx, KeyFingerprint)
	if err != nil {
		return "", false, fmt.Errorf("load fingerprint: %w", err)
	}
	raw, found := vals[KeyFingerprint]
	if !found {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &fp); err != nil {
		// treat garbage as absent so the next run re-notifies and overwrites it
		s.log.Warn("fingerprint_decode_error", zap.Error(err))
		return "", false, nil
	}
	return fp, true, nil
}

// Latest returns the last persisted result, or nil when there is none.
func (s *State) Latest(ctx context.Context) (*domain.AggregatedResult, error) {
	vals, err := s.kv.Get(ctx, KeyLatest)
	if err != nil {
		return nil, fmt.Errorf("load latest: %w", err)
	}
	raw, ok := vals[KeyLatest]
	if !ok {
		return nil, nil
	}
	var out domain.AggregatedResult
	if err := json.Unmarshal(raw, &out); err != nil {
		s.log.Warn("latest_decode_error", zap.Error(err))
		return nil, nil
	}
	if out.Interruptions == nil {
		out.Interruptions = []domain.Interruption{}
	}
	return &out, nil
}

// SaveRun writes the fingerprint and the result it describes in one Set.
func (s *State) SaveRun(ctx context.Context, fingerprint string, result domain.AggregatedResult) error {
	if result.Interruptions == nil {
		result.Interruptions = []domain.Interruption{}
	}
	fpRaw, err := json.Marshal(fingerprint)
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}
	resRaw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := s.kv.Set(ctx, map[string][]byte{
		KeyFingerprint: fpRaw,
		KeyLatest:      resRaw,
	}); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Clear drops the stored result and fingerprint; settings stay.
func (s *State) Clear(ctx context.Context) error {
	if err := s.kv.Remove(ctx, KeyLatest, KeyFingerprint); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}
