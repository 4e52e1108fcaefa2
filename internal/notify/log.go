package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log records the notification as a structured log line. It is the
// system-notification sink that is always present.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (l *Log) Send(_ context.Context, title, text string) error {
	l.log.Info("system_notification", zap.String("title", title), zap.String("text", text))
	return nil
}
