package notify

import (
	"context"

	"go.uber.org/multierr"
)

// Notifier delivers one system notification.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi sends to every non-nil notifier and returns all failures combined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}
