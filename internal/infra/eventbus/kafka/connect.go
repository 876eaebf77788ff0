package kafka

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/clipwave/mediarelay/internal/domain/events"
	"github.com/clipwave/mediarelay/pkg/common/logger"
)

// ConnectWithRetry attempts to establish a publisher connection to Kafka
// with exponential backoff. It will retry failed connection attempts for up
// to 5 minutes, starting with 5 second intervals. This helps handle
// temporary network issues or Kafka cluster unavailability during startup.
func ConnectWithRetry(cfg *Config, log *logger.Logger, metrics PublisherMetrics, tracer trace.Tracer) (events.Publisher, error) {
	var publisher events.Publisher

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		var err error
		publisher, err = NewPublisherFromConfig(cfg, log, metrics, tracer)
		if err != nil {
			return err
		}
		return nil
	}

	err := backoff.Retry(operation, expBackoff)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return publisher, nil
}
