package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hamed0406/waterwatch/internal/domain"
	"github.com/hamed0406/waterwatch/internal/metrics"
	"github.com/hamed0406/waterwatch/internal/tabs"
)

const MessageTypeOutageAlert = "WATER_OUTAGE_ALERT"

// TabSender pushes a message to the page the user is looking at.
type TabSender interface {
	SendToActive(ctx context.Context, msg any) error
}

type OutageAlert struct {
	Type    string             `json:"type"`
	Payload OutageAlertPayload `json:"payload"`
}

type OutageAlertPayload struct {
	Title         string                `json:"title"`
	Text          string                `json:"text"`
	Interruptions []domain.Interruption `json:"interruptions"`
}

// Report says which channels were actually reached.
type Report struct {
	Browser bool
	OS      bool
}

type Dispatcher struct {
	tabs    TabSender
	system  Notifier
	metrics metrics.Recorder
	log     *zap.Logger
}

func NewDispatcher(t TabSender, system Notifier, m metrics.Recorder, log *zap.Logger) *Dispatcher {
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{tabs: t, system: system, metrics: m, log: log}
}

// Dispatch sends the page message whenever browser notifications are on, and
// the system notification only when os notifications are on and changed is set.
// Delivery failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, text Text, interruptions []domain.Interruption, settings domain.Settings, changed bool) Report {
	var rep Report

	if settings.Notifications.Browser && d.tabs != nil {
		msg := OutageAlert{
			Type: MessageTypeOutageAlert,
			Payload: OutageAlertPayload{
				Title:         text.Title,
				Text:          text.Message,
				Interruptions: interruptions,
			},
		}
		switch err := d.tabs.SendToActive(ctx, msg); {
		case err == nil:
			rep.Browser = true
			d.metrics.IncNotifications("browser")
		case errors.Is(err, tabs.ErrNoListener):
			d.log.Debug("tab_message_undelivered", zap.Error(err))
		default:
			d.log.Warn("tab_message_failed", zap.Error(err))
		}
	}

	if settings.Notifications.OS && changed && d.system != nil {
		if err := d.system.Send(ctx, text.Title, text.Message); err != nil {
			d.log.Warn("system_notification_failed", zap.Error(err))
		} else {
			d.metrics.IncNotifications("os")
			rep.OS = true
		}
	}
	return rep
}

// Test sends the fixed test notification through the system channel.
func (d *Dispatcher) Test(ctx context.Context) error {
	if d.system == nil {
		return errors.New("no system notifier configured")
	}
	return d.system.Send(ctx, TestTitle, TestMessage)
}
