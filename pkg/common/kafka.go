package common

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ahrav/codejobs/pkg/common/logger"
)

// ConnectKafkaWithRetry calls connect with exponential backoff until it
// succeeds. It will retry failed connection attempts for up to 5 minutes,
// starting with 5 second intervals.
func ConnectKafkaWithRetry[T any](log *logger.Logger, connect func() (T, error)) (T, error) {
	var conn T

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		var err error
		conn, err = connect()
		if err != nil {
			log.Warn(context.Background(), "Failed to connect to Kafka, will retry", "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return conn, nil
}
