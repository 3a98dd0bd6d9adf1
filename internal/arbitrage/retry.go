package arbitrage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptosentinel/internal/domain"
)

const (
	retryBaseDelay   = 2 * time.Second
	retryMaxAttempts = 3
)

// withRetry implements spec.md §4.5's retry policy: network-class errors
// are retried with exponential backoff (base 2s, max 3 attempts);
// insufficient_funds and rejected are never retried. The backoff shape
// mirrors the reconnect loop in the exchange client the teacher pack uses
// (doubling delay per attempt, capped by attempt count rather than a
// ceiling duration since 3 attempts at base 2s never approaches one).
func withRetry(ctx context.Context, log zerolog.Logger, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var derr *domain.DomainError
		if !errors.As(err, &derr) || !derr.Kind.Retryable() {
			return err
		}
		if attempt == retryMaxAttempts {
			break
		}

		delay := retryBaseDelay * time.Duration(1<<(attempt-1))
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("delay", delay).Msg("retrying after transient failure")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
