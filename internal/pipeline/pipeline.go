// Package pipeline runs one outage check end to end: load settings, aggregate
// every location, detect change, notify, persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/dates"
	"github.com/hamed0406/waterwatch/internal/domain"
	"github.com/hamed0406/waterwatch/internal/metrics"
	"github.com/hamed0406/waterwatch/internal/notify"
	"github.com/hamed0406/waterwatch/internal/outage"
)

// ErrRunInProgress is returned when runs are serialized and one is already going.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

type Trigger string

const (
	TriggerInstall         Trigger = "install"
	TriggerStartup         Trigger = "startup"
	TriggerAlarm           Trigger = "alarm"
	TriggerCheck           Trigger = "check"
	TriggerSettingsChanged Trigger = "settings_changed"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseFetching   Phase = "fetching"
	PhaseEvaluating Phase = "evaluating"
	PhaseNotifying  Phase = "notifying"
	PhasePersisting Phase = "persisting"
)

type StateStore interface {
	Settings(ctx context.Context) (domain.Settings, error)
	Fingerprint(ctx context.Context) (string, bool, error)
	SaveRun(ctx context.Context, fingerprint string, result domain.AggregatedResult) error
}

type Aggregator interface {
	Aggregate(ctx context.Context, locations []domain.MonitoredLocation, now time.Time) outage.Aggregate
}

type Dispatcher interface {
	Dispatch(ctx context.Context, text notify.Text, interruptions []domain.Interruption, settings domain.Settings, changed bool) notify.Report
}

// Outcome summarizes one run. Phase is the last phase the run entered.
type Outcome struct {
	Trigger       Trigger       `json:"trigger"`
	Phase         Phase         `json:"phase"`
	Skipped       bool          `json:"skipped"`
	Locations     int           `json:"locations"`
	Interruptions int           `json:"interruptions"`
	Changed       bool          `json:"changed"`
	Fingerprint   string        `json:"fingerprint,omitempty"`
	Browser       bool          `json:"browserNotified"`
	OS            bool          `json:"osNotified"`
	Duration      time.Duration `json:"durationNs"`
}

type Options struct {
	// NoInterruptionsPhrase becomes the alert message of an empty result.
	NoInterruptionsPhrase string
	SerializeRuns         bool
	Now                   func() time.Time
}

type Pipeline struct {
	state      StateStore
	aggregator Aggregator
	dispatcher Dispatcher
	opts       Options
	running    atomic.Bool
	metrics    metrics.Recorder
	log        *zap.Logger
}

func New(st StateStore, agg Aggregator, disp Dispatcher, opts Options, m metrics.Recorder, log *zap.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{state: st, aggregator: agg, dispatcher: disp, opts: opts, metrics: m, log: log}
}

// Run performs one check. Storage errors end the run before anything is
// written and are returned; everything else is absorbed and logged.
func (p *Pipeline) Run(ctx context.Context, trigger Trigger) (Outcome, error) {
	if p.opts.SerializeRuns {
		if !p.running.CompareAndSwap(false, true) {
			p.log.Info("check_skipped_in_progress", zap.String("trigger", string(trigger)))
			return Outcome{Trigger: trigger, Phase: PhaseIdle, Skipped: true}, ErrRunInProgress
		}
		defer p.running.Store(false)
	}

	start := time.Now()
	out, err := p.run(ctx, trigger)
	out.Duration = time.Since(start)

	result := "ok"
	switch {
	case err != nil:
		result = "error"
		p.log.Warn("check_failed",
			zap.String("trigger", string(trigger)),
			zap.String("phase", string(out.Phase)),
			zap.Error(err),
		)
	case out.Skipped:
		result = "skipped"
		p.log.Debug("check_skipped_no_locations", zap.String("trigger", string(trigger)))
	default:
		p.metrics.SetInterruptions(out.Interruptions)
		p.log.Info("check_done",
			zap.String("trigger", string(trigger)),
			zap.Int("locations", out.Locations),
			zap.Int("interruptions", out.Interruptions),
			zap.Bool("changed", out.Changed),
			zap.Bool("browser", out.Browser),
			zap.Bool("os", out.OS),
			zap.Duration("took", out.Duration),
		)
	}
	p.metrics.ObserveRun(string(trigger), result, out.Duration)
	return out, err
}

func (p *Pipeline) run(ctx context.Context, trigger Trigger) (Outcome, error) {
	out := Outcome{Trigger: trigger, Phase: PhaseIdle}

	settings, err := p.state.Settings(ctx)
	if err != nil {
		return out, err
	}
	out.Locations = len(settings.MonitoredLocations)
	if out.Locations == 0 {
		out.Skipped = true
		return out, nil
	}

	out.Phase = PhaseFetching
	now := p.opts.Now()
	agg := p.aggregator.Aggregate(ctx, settings.MonitoredLocations, now)

	out.Phase = PhaseEvaluating
	formatted := make([]domain.Interruption, len(agg.Interruptions))
	for i, it := range agg.Interruptions {
		formatted[i] = dates.FormatForDisplay(it, settings.TimeFormat)
	}
	out.Interruptions = len(formatted)

	if len(formatted) == 0 {
		out.Phase = PhasePersisting
		out.Fingerprint = outage.ComputeFingerprint(nil)
		err := p.state.SaveRun(ctx, out.Fingerprint, domain.AggregatedResult{
			Alert:         &domain.RawAlert{Message: p.opts.NoInterruptionsPhrase},
			Interruptions: []domain.Interruption{},
			LastUpdated:   now.UnixMilli(),
		})
		if err != nil {
			return out, fmt.Errorf("persist empty result: %w", err)
		}
		out.Phase = PhaseIdle
		return out, nil
	}

	// canonical times, so a timeFormat switch is not a change
	out.Fingerprint = outage.ComputeFingerprint(agg.Interruptions)
	stored, ok, err := p.state.Fingerprint(ctx)
	if err != nil {
		return out, err
	}
	out.Changed = outage.HasChanged(out.Fingerprint, stored, ok)

	out.Phase = PhaseNotifying
	text := notify.BuildText(agg.RepresentativeAlert, formatted)
	rep := p.dispatcher.Dispatch(ctx, text, formatted, settings, out.Changed)
	out.Browser, out.OS = rep.Browser, rep.OS

	out.Phase = PhasePersisting
	err = p.state.SaveRun(ctx, out.Fingerprint, domain.AggregatedResult{
		Alert:         agg.RepresentativeAlert,
		Interruptions: formatted,
		LastUpdated:   now.UnixMilli(),
	})
	if err != nil {
		return out, fmt.Errorf("persist result: %w", err)
	}
	out.Phase = PhaseIdle
	return out, nil
}
