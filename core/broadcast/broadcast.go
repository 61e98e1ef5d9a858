// Package broadcast sends one text to every registered phone number.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/membo/vtubot/core/logger"
	"github.com/membo/vtubot/core/messaging"
)

const defaultConcurrency = 4

// Recipients lists the phone numbers a broadcast goes to.
type Recipients interface {
	ListPhones(ctx context.Context) ([]string, error)
}

// Summary counts the outcome of one broadcast.
type Summary struct {
	Total     int
	Delivered int
	Failed    int
}

// Broadcaster fans a message out with bounded concurrency. A failed recipient
// is counted and does not stop the others.
type Broadcaster struct {
	recipients  Recipients
	sender      messaging.Sender
	concurrency int
}

// New builds a Broadcaster. concurrency <= 0 selects the default.
func New(recipients Recipients, sender messaging.Sender, concurrency int) *Broadcaster {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Broadcaster{recipients: recipients, sender: sender, concurrency: concurrency}
}

// Send delivers text to every recipient. The error is non-nil only when the
// recipient list cannot be loaded or ctx ends before the fan-out finishes.
func (b *Broadcaster) Send(ctx context.Context, text string) (Summary, error) {
	start := time.Now()
	phones, err := b.recipients.ListPhones(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("broadcast: list recipients: %w", err)
	}

	var delivered, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	total := 0
	for _, phone := range phones {
		if phone == "" {
			continue
		}
		total++
		g.Go(func() error {
			if err := b.sender.SendText(gctx, phone, text); err != nil {
				failed.Add(1)
				logger.Bcast.WarnContext(gctx, "broadcast recipient failed",
					slog.String("event", "broadcast.recipient"),
					slog.String("status", "fail"),
					slog.String("recipient", phone),
					slog.String("err", err.Error()),
				)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Total: total, Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	logger.Bcast.InfoContext(ctx, "broadcast finished",
		slog.String("event", "broadcast.done"),
		slog.String("status", logger.Status(ctx.Err())),
		slog.Int("total", sum.Total),
		slog.Int("delivered", sum.Delivered),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", logger.Took(start)),
	)
	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("broadcast: %w", err)
	}
	return sum, nil
}
