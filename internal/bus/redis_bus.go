package bus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Ashfaaq98/reconpipe/internal/event"
)

const (
	findingsStream = "findings"
	targetsStream  = "targets"
)

// RedisBus provides Redis Streams-based messaging for the pipeline.
type RedisBus struct {
	client *redis.Client
	logger *logrus.Entry
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(redisURL string, logger *logrus.Entry) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &RedisBus{client: client, logger: logger.WithField("component", "bus")}, nil
}

// Close closes the Redis connection.
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// HealthCheck pings Redis.
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// PublishFinding publishes a pipeline event to the findings stream.
func (rb *RedisBus) PublishFinding(ctx context.Context, ev *event.Event) error {
	return rb.publish(ctx, findingsStream, ev)
}

// PublishTarget publishes a seed target event to the targets stream.
func (rb *RedisBus) PublishTarget(ctx context.Context, ev *event.Event) error {
	return rb.publish(ctx, targetsStream, ev)
}

func (rb *RedisBus) publish(ctx context.Context, stream string, ev *event.Event) error {
	fields := map[string]interface{}{
		"id":        ev.ID,
		"type":      string(ev.Type),
		"data":      ev.Data,
		"module":    ev.Module,
		"parent_id": ev.ParentID,
		"timestamp": ev.Timestamp.Unix(),
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	rb.logger.WithFields(logrus.Fields{
		"stream": stream,
		"event":  string(ev.Type),
	}).Debug("published event")
	return nil
}

// ReadTargets consumes the targets stream with a consumer group, invoking
// handler per decoded event. Handler errors are logged; the message is
// still acknowledged so a poison target cannot wedge the group.
func (rb *RedisBus) ReadTargets(ctx context.Context, group, consumer string, handler func(ctx context.Context, ev *event.Event) error) error {
	if err := rb.createConsumerGroup(ctx, targetsStream, group); err != nil {
		return err
	}

	rb.logger.WithFields(logrus.Fields{
		"group":    group,
		"consumer": consumer,
	}).Info("consuming targets stream")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			result := rb.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: consumer,
				Streams:  []string{targetsStream, ">"},
				Count:    10,
				Block:    1 * time.Second,
			})
			if err := result.Err(); err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				rb.logger.WithError(err).Error("reading targets stream failed")
				time.Sleep(5 * time.Second)
				continue
			}

			for _, stream := range result.Val() {
				for _, message := range stream.Messages {
					ev := decodeEvent(message.Values)
					if err := handler(ctx, ev); err != nil {
						rb.logger.WithError(err).WithField("message", message.ID).Error("target handler failed")
					}
					if err := rb.client.XAck(ctx, targetsStream, group, message.ID).Err(); err != nil {
						rb.logger.WithError(err).WithField("message", message.ID).Error("ack failed")
					}
				}
			}
		}
	}
}

func (rb *RedisBus) createConsumerGroup(ctx context.Context, stream, group string) error {
	result := rb.client.XGroupCreateMkStream(ctx, stream, group, "0")
	if err := result.Err(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s for %s: %w", group, stream, err)
	}
	return nil
}

func decodeEvent(values map[string]interface{}) *event.Event {
	ev := &event.Event{
		ID:       stringField(values, "id"),
		Type:     event.Type(stringField(values, "type")),
		Data:     stringField(values, "data"),
		Module:   stringField(values, "module"),
		ParentID: stringField(values, "parent_id"),
	}
	if ts := stringField(values, "timestamp"); ts != "" {
		if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
			ev.Timestamp = time.Unix(n, 0).UTC()
		}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

func stringField(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
