package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/netutil"
)

// RetryOptions controls Retrying.
type RetryOptions struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single message.
	MaxDuration time.Duration
}

// Retrying wraps a Sender and retries transient failures with linear backoff.
type Retrying struct {
	next Sender
	opts RetryOptions
}

// NewRetrying applies defaults to zeroed options.
func NewRetrying(next Sender, opts RetryOptions) *Retrying {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	return &Retrying{next: next, opts: opts}
}

// SendText implements Sender. ErrNoRoute is passed through without retries.
func (r *Retrying) SendText(ctx context.Context, to, text string) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, r.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := r.opts.MaxRetries + 1
	var lastErr error

attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}

		err := r.next.SendText(deadlineCtx, to, text)
		if err == nil {
			logger.Debug(ctx, "messaging", "send.success",
				slog.String("recipient", to),
				slog.Int("attempts", attempt),
				slog.Duration("duration", logger.Took(start)),
			)
			return nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := r.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
			break attemptLoop
		case <-timer.C:
			logger.Debug(ctx, "messaging", "send.retry.backoff",
				slog.String("recipient", to),
				slog.Int("attempts", attempt),
				slog.Int64("backoff_ms", delay.Milliseconds()),
			)
		}
	}

	if errors.Is(lastErr, ErrNoRoute) {
		return lastErr
	}
	logger.Error(ctx, "messaging", "send.fail",
		slog.String("status", "fail"),
		slog.String("recipient", to),
		slog.String("err", netutil.Redact(lastErr)),
		slog.String("cause", netutil.Classify(lastErr)),
		slog.Duration("duration", logger.Took(start)),
	)
	return lastErr
}
