package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/waterwatch/internal/domain"
	"github.com/hamed0406/waterwatch/internal/metrics"
	"github.com/hamed0406/waterwatch/internal/notify"
	"github.com/hamed0406/waterwatch/internal/outage"
	"github.com/hamed0406/waterwatch/internal/state"
	"github.com/hamed0406/waterwatch/internal/store/memory"
)

const phrase = "No existen interrupciones para esta ubicación"

var (
	fixedNow = time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	sanJuan  = domain.MonitoredLocation{ProvinceID: "2", CantonID: "29", DistrictID: "231", Name: "San Juan"}
	defaults = domain.Settings{
		TimeFormat:           domain.TimeFormat24h,
		CheckIntervalMinutes: 60,
		Notifications:        domain.NotificationPrefs{Browser: true, OS: true},
	}
)

// --- fakes ---

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	resp  *domain.RawResponse
	gate  chan struct{} // when set, each fetch waits on it
	enter chan struct{}
}

func (f *fakeFetcher) FetchOutageInfo(ctx context.Context, loc domain.MonitoredLocation) (*domain.RawResponse, bool) {
	f.mu.Lock()
	f.calls++
	resp := f.resp
	f.mu.Unlock()
	if f.enter != nil {
		f.enter <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return resp, resp != nil
}

type recordingKV struct {
	*memory.Store
	mu       sync.Mutex
	sets     int
	failGet  string
	failSets bool
}

func (r *recordingKV) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	for _, k := range keys {
		if r.failGet != "" && k == r.failGet {
			return nil, errors.New("storage unavailable")
		}
	}
	return r.Store.Get(ctx, keys...)
}

func (r *recordingKV) Set(ctx context.Context, entries map[string][]byte) error {
	r.mu.Lock()
	r.sets++
	r.mu.Unlock()
	if r.failSets {
		return errors.New("quota exceeded")
	}
	return r.Store.Set(ctx, entries)
}

func (r *recordingKV) setCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets
}

type fakeTabs struct{ sent []any }

func (f *fakeTabs) SendToActive(_ context.Context, msg any) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakeOS struct{ n int }

func (f *fakeOS) Send(context.Context, string, string) error {
	f.n++
	return nil
}

type fakeRecorder struct {
	metrics.Recorder
	results []string
}

func (f *fakeRecorder) ObserveRun(_, result string, _ time.Duration) {
	f.results = append(f.results, result)
}

type harness struct {
	kv      *recordingKV
	st      *state.State
	fetcher *fakeFetcher
	tabs    *fakeTabs
	os      *fakeOS
	rec     *fakeRecorder
	p       *Pipeline
}

func newHarness(t *testing.T, settings *domain.Settings, resp *domain.RawResponse, serialize bool) *harness {
	t.Helper()
	h := &harness{
		kv:      &recordingKV{Store: memory.New()},
		fetcher: &fakeFetcher{resp: resp},
		tabs:    &fakeTabs{},
		os:      &fakeOS{},
		rec:     &fakeRecorder{Recorder: metrics.Noop()},
	}
	h.st = state.New(h.kv, defaults, nil)
	if settings != nil {
		require.NoError(t, h.st.SaveSettings(context.Background(), *settings))
		h.kv.sets = 0
	}
	agg := outage.NewAggregator(h.fetcher, phrase, time.UTC, nil, nil)
	disp := notify.NewDispatcher(h.tabs, h.os, nil, nil)
	h.p = New(h.st, agg, disp, Options{
		NoInterruptionsPhrase: phrase,
		SerializeRuns:         serialize,
		Now:                   func() time.Time { return fixedNow },
	}, h.rec, nil)
	return h
}

func withLocations(format domain.TimeFormat) *domain.Settings {
	s := defaults
	s.TimeFormat = format
	s.MonitoredLocations = []domain.MonitoredLocation{sanJuan}
	return &s
}

var twoOutages = &domain.RawResponse{
	Alert: &domain.RawAlert{Title: "Aviso AyA", Message: "Interrupciones programadas"},
	Entities: []domain.Interruption{
		{ID: 7, StartTime: "20/01/2026 13:00", EndTime: "20/01/2026 18:00"},
		{ID: 8, StartTime: "22/01/2026 08:00", EndTime: "22/01/2026 12:00"},
		{ID: 6, StartTime: "18/01/2026 08:00", EndTime: "18/01/2026 12:00"}, // already over
	},
}

// --- tests ---

func TestRun_NoRepeatOnUnchanged(t *testing.T) {
	h := newHarness(t, withLocations(domain.TimeFormat24h), twoOutages, false)
	ctx := context.Background()

	first, err := h.p.Run(ctx, TriggerAlarm)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, 2, first.Interruptions)
	assert.Equal(t, PhaseIdle, first.Phase)

	second, err := h.p.Run(ctx, TriggerAlarm)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	assert.Equal(t, 1, h.os.n, "system notification only on the first run")
	assert.Len(t, h.tabs.sent, 2, "page message on every run")
	assert.Equal(t, 2, h.kv.setCount(), "each run persists once")

	msg := h.tabs.sent[1].(notify.OutageAlert)
	assert.Equal(t, "Aviso AyA", msg.Payload.Title)
	assert.Equal(t, "Se han programado 2 cortes de agua en tu zona. Próximo: 20/01/2026 13:00 - 20/01/2026 18:00.", msg.Payload.Text)
	assert.Equal(t, []string{"ok", "ok"}, h.rec.results)
}

func TestRun_PersistsLatestEveryRun(t *testing.T) {
	h := newHarness(t, withLocations(domain.TimeFormat24h), twoOutages, false)
	ctx := context.Background()

	_, err := h.p.Run(ctx, TriggerStartup)
	require.NoError(t, err)

	latest, err := h.st.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, fixedNow.UnixMilli(), latest.LastUpdated)
	require.Len(t, latest.Interruptions, 2)
	assert.Equal(t, "San Juan", latest.Interruptions[0].LocationName)
	require.NotNil(t, latest.Alert)
	assert.Equal(t, "Aviso AyA", latest.Alert.Title)

	fp, ok, err := h.st.Fingerprint(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, outage.ComputeFingerprint(twoOutages.Entities[:2]), fp)
}

func TestRun_TimeFormatSwitchIsNotAChange(t *testing.T) {
	h := newHarness(t, withLocations(domain.TimeFormat24h), twoOutages, false)
	ctx := context.Background()

	_, err := h.p.Run(ctx, TriggerAlarm)
	require.NoError(t, err)

	require.NoError(t, h.st.SaveSettings(ctx, *withLocations(domain.TimeFormat12h)))
	out, err := h.p.Run(ctx, TriggerSettingsChanged)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, 1, h.os.n)

	latest, err := h.st.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20/01/2026 1:00 pm", latest.Interruptions[0].StartTime)
	assert.Equal(t, "20/01/2026 6:00 pm", latest.Interruptions[0].EndTime)
}

func TestRun_EmptyLocationsIsNoop(t *testing.T) {
	h := newHarness(t, nil, twoOutages, false)

	out, err := h.p.Run(context.Background(), TriggerInstall)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, 0, h.fetcher.calls, "no network calls")
	assert.Equal(t, 0, h.kv.setCount(), "no storage writes")
	assert.Empty(t, h.tabs.sent)
	assert.Equal(t, []string{"skipped"}, h.rec.results)
}

func TestRun_EmptyResultPersistsClearSentinel(t *testing.T) {
	clearResp := &domain.RawResponse{
		Alert:    &domain.RawAlert{Message: phrase},
		Entities: []domain.Interruption{{ID: 1, EndTime: "25/01/2026 10:00"}},
	}
	h := newHarness(t, withLocations(domain.TimeFormat24h), clearResp, false)
	ctx := context.Background()

	out, err := h.p.Run(ctx, TriggerAlarm)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Interruptions)
	assert.Equal(t, "[]", out.Fingerprint)
	assert.Empty(t, h.tabs.sent, "nothing to show")
	assert.Equal(t, 0, h.os.n)

	latest, err := h.st.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.NotNil(t, latest.Alert)
	assert.Equal(t, phrase, latest.Alert.Message)
	assert.Empty(t, latest.Interruptions)
	assert.Equal(t, fixedNow.UnixMilli(), latest.LastUpdated)

	// a second empty run overwrites again
	_, err = h.p.Run(ctx, TriggerAlarm)
	require.NoError(t, err)
	assert.Equal(t, 2, h.kv.setCount())
}

func TestRun_FetchFailureLooksEmpty(t *testing.T) {
	h := newHarness(t, withLocations(domain.TimeFormat24h), nil, false)
	out, err := h.p.Run(context.Background(), TriggerCheck)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Interruptions)
	assert.Equal(t, 1, h.fetcher.calls)
}

func TestRun_StorageReadErrorStopsBeforeNotify(t *testing.T) {
	h := newHarness(t, withLocations(domain.TimeFormat24h), twoOutages, false)
	h.kv.failGet = state.KeyFingerprint

	out, err := h.p.Run(context.Background(), TriggerAlarm)
	require.Error(t, err)
	assert.Equal(t, PhaseEvaluating, out.Phase)
	assert.Empty(t, h.tabs.sent)
	assert.Equal(t, 0, h.os.n)
	assert.Equal(t, 0, h.kv.setCount())
	assert.Equal(t, []string{"error"}, h.rec.results)
}

func TestRun_SettingsReadErrorStopsEverything(t *testing.T) {
	h := newHarness(t, withLocations(domain.TimeFormat24h), twoOutages, false)
	h.kv.failGet = state.KeySettings

	_, err := h.p.Run(context.Background(), TriggerAlarm)
	require.Error(t, err)
	assert.Equal(t, 0, h.fetcher.calls)
}

func TestRun_StorageWriteErrorReturned(t *testing.T) {
	h := newHarness(t, withLocations(domain.TimeFormat24h), twoOutages, false)
	h.kv.failSets = true

	out, err := h.p.Run(context.Background(), TriggerAlarm)
	require.Error(t, err)
	assert.Equal(t, PhasePersisting, out.Phase)

	// nothing stuck: the next run sees no stored fingerprint and notifies again
	h.kv.failSets = false
	out, err = h.p.Run(context.Background(), TriggerAlarm)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, 2, h.os.n)
}

func TestRun_SerializedRejectsOverlap(t *testing.T) {
	h := newHarness(t, withLocations(domain.TimeFormat24h), twoOutages, true)
	h.fetcher.gate = make(chan struct{})
	h.fetcher.enter = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.p.Run(context.Background(), TriggerAlarm)
		done <- err
	}()
	<-h.fetcher.enter

	_, err := h.p.Run(context.Background(), TriggerCheck)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(h.fetcher.gate)
	require.NoError(t, <-done)

	h.fetcher.enter = nil
	_, err = h.p.Run(context.Background(), TriggerCheck)
	assert.NoError(t, err, "guard released after the run")
}
