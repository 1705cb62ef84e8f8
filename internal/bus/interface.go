package bus

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Ashfaaq98/reconpipe/internal/event"
)

// Bus is the notification fabric between the pipeline and the outside
// world. Findings emitted by modules fan out on one stream; seed targets
// injected from other processes arrive on another.
type Bus interface {
	// PublishFinding publishes a pipeline event to the findings stream.
	PublishFinding(ctx context.Context, ev *event.Event) error

	// PublishTarget publishes a seed target event to the targets stream.
	PublishTarget(ctx context.Context, ev *event.Event) error

	// ReadTargets consumes the targets stream, invoking handler per event.
	// It blocks until ctx is cancelled.
	ReadTargets(ctx context.Context, group, consumer string, handler func(ctx context.Context, ev *event.Event) error) error

	// HealthCheck verifies the fabric is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// New returns a Redis-backed bus when redisURL is usable, and a no-op bus
// otherwise so the pipeline stays functional without Redis.
func New(redisURL string, logger *logrus.Entry) Bus {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	if redisURL == "" {
		return NewNullBus(logger)
	}
	b, err := NewRedisBus(redisURL, logger)
	if err != nil {
		logger.WithError(err).Warn("redis unavailable, falling back to null bus")
		return NewNullBus(logger)
	}
	return b
}
