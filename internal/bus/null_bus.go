package bus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Ashfaaq98/reconpipe/internal/event"
)

// NullBus is a no-op Bus for running the pipeline without Redis.
type NullBus struct {
	logger *logrus.Entry
}

// NewNullBus creates a new null bus instance.
func NewNullBus(logger *logrus.Entry) *NullBus {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &NullBus{logger: logger.WithField("component", "nullbus")}
}

// PublishFinding logs the event but doesn't publish it anywhere.
func (nb *NullBus) PublishFinding(ctx context.Context, ev *event.Event) error {
	nb.logger.WithField("event", string(ev.Type)).Debug("would publish finding (redis disabled)")
	return nil
}

// PublishTarget logs the event but doesn't publish it anywhere.
func (nb *NullBus) PublishTarget(ctx context.Context, ev *event.Event) error {
	nb.logger.WithField("event", string(ev.Type)).Debug("would publish target (redis disabled)")
	return nil
}

// ReadTargets blocks until ctx is cancelled, like the real consumer would.
func (nb *NullBus) ReadTargets(ctx context.Context, group, consumer string, handler func(ctx context.Context, ev *event.Event) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// HealthCheck always succeeds.
func (nb *NullBus) HealthCheck(ctx context.Context) error { return nil }

// Close is a no-op.
func (nb *NullBus) Close() error { return nil }
