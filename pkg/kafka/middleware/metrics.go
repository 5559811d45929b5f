package kafka_middleware

import (
	"context"
	"fleetrent/pkg/kafka"
	"fleetrent/pkg/metrics"
	"time"
)

// MetricsProducerMiddleware records publish outcomes and latency.
func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)

		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
		}
		metrics.EventsPublished.WithLabelValues(msg.GetEventType(), outcome).Inc()
		metrics.EventPublishDuration.Observe(time.Since(start).Seconds())
		return err
	}
}
