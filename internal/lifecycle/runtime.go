// Package lifecycle maps daemon events (first start, restart, alarm ticks,
// on-demand checks, settings updates) onto pipeline runs.
package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/domain"
	"github.com/hamed0406/waterwatch/internal/pipeline"
	"github.com/hamed0406/waterwatch/internal/scheduler"
)

const DevPollTimer = "devPoll"

type Runner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (pipeline.Outcome, error)
}

type SettingsReader interface {
	Settings(ctx context.Context) (domain.Settings, error)
	HasSettings(ctx context.Context) (bool, error)
}

type Timers interface {
	Register(name string, period time.Duration, fn scheduler.Func) error
	Cancel(name string) bool
}

type Options struct {
	AlarmName            string
	DefaultPeriodMinutes int
	DevPollInterval      time.Duration // 0 disables
}

type Runtime struct {
	runner   Runner
	settings SettingsReader
	timers   Timers
	opts     Options
	log      *zap.Logger
}

func New(r Runner, s SettingsReader, t Timers, opts Options, log *zap.Logger) *Runtime {
	if opts.AlarmName == "" {
		opts.AlarmName = "checkAyaOutages"
	}
	if opts.DefaultPeriodMinutes <= 0 {
		opts.DefaultPeriodMinutes = 60
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{runner: r, settings: s, timers: t, opts: opts, log: log}
}

// Start fires install on a fresh store and startup otherwise. Both
// reschedule the alarm and then run one check.
func (rt *Runtime) Start(ctx context.Context) error {
	trigger := pipeline.TriggerStartup
	has, err := rt.settings.HasSettings(ctx)
	if err != nil {
		rt.log.Warn("settings_probe_failed", zap.Error(err))
	} else if !has {
		trigger = pipeline.TriggerInstall
	}
	rt.log.Info("lifecycle_start", zap.String("trigger", string(trigger)))

	if err := rt.Reschedule(ctx); err != nil {
		return err
	}
	if rt.opts.DevPollInterval > 0 {
		if err := rt.timers.Register(DevPollTimer, rt.opts.DevPollInterval, rt.onDevPoll); err != nil {
			return err
		}
	}
	rt.check(ctx, trigger)
	return nil
}

// Reschedule (re)registers the alarm with the current check interval.
func (rt *Runtime) Reschedule(ctx context.Context) error {
	minutes := rt.opts.DefaultPeriodMinutes
	s, err := rt.settings.Settings(ctx)
	if err != nil {
		rt.log.Warn("settings_load_failed", zap.Error(err))
	} else if s.CheckIntervalMinutes > 0 {
		minutes = s.CheckIntervalMinutes
	}
	return rt.timers.Register(rt.opts.AlarmName, time.Duration(minutes)*time.Minute, rt.OnAlarm)
}

// OnAlarm is the alarm timer callback.
func (rt *Runtime) OnAlarm(ctx context.Context) {
	rt.check(ctx, pipeline.TriggerAlarm)
}

func (rt *Runtime) onDevPoll(ctx context.Context) {
	rt.check(ctx, pipeline.TriggerAlarm)
}

// RequestCheck runs an on-demand check and hands back the outcome.
func (rt *Runtime) RequestCheck(ctx context.Context) (pipeline.Outcome, error) {
	return rt.runner.Run(ctx, pipeline.TriggerCheck)
}

// SettingsChanged reschedules the alarm, then checks with the new settings.
func (rt *Runtime) SettingsChanged(ctx context.Context) (pipeline.Outcome, error) {
	if err := rt.Reschedule(ctx); err != nil {
		rt.log.Warn("reschedule_failed", zap.Error(err))
	}
	return rt.runner.Run(ctx, pipeline.TriggerSettingsChanged)
}

// Stop cancels every timer this runtime registered.
func (rt *Runtime) Stop() {
	rt.timers.Cancel(rt.opts.AlarmName)
	rt.timers.Cancel(DevPollTimer)
}

// check runs fire-and-forget triggers; the pipeline already logs failures.
func (rt *Runtime) check(ctx context.Context, trigger pipeline.Trigger) {
	_, _ = rt.runner.Run(ctx, trigger)
}
