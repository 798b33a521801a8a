package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

// PubSubSink publishes each event as a JSON progress.Record to a Pub/Sub
// topic for consumers outside the process. Delivery is at-least-once.
type PubSubSink struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubSink wraps topic. The sink stops the topic on Close.
func NewPubSubSink(topic *pubsub.Topic, logger *zap.Logger) (*PubSubSink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{topic: topic, logger: logger}, nil
}

// Consume publishes the batch and waits for every result. All publish errors
// are joined.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	results := make([]*pubsub.PublishResult, 0, len(batch))
	for _, evt := range batch {
		data, err := json.Marshal(evt.Record())
		if err != nil {
			return fmt.Errorf("marshal progress record: %w", err)
		}
		msg := &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"kind":      string(evt.Kind),
				"source_id": evt.SourceID,
			},
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Attributes))
		results = append(results, s.topic.Publish(ctx, msg))
	}
	var errs []error
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish progress events: %w", errors.Join(errs...))
	}
	s.logger.Debug("published progress events", zap.Int("count", len(results)))
	return nil
}

// Close flushes outstanding messages and stops the topic's publish goroutines.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}
