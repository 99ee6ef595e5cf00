package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// SignalHandler consumes one fresh signal. Returned errors are logged by the
// orchestrator; they never stop the loop.
type SignalHandler func(ctx context.Context, sig domain.SentimentSignal) error

// Orchestrator runs all source pollers and the single consumer goroutine
// under one errgroup. Exactly one consumer reads the channel, so signals
// reach the handler strictly one at a time.
type Orchestrator struct {
	sources  []Source
	handler  SignalHandler
	interval time.Duration
	dedup    *Dedup
	signals  chan domain.SentimentSignal
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator polling the given sources every
// interval, deduplicating with ttl, and buffering up to buffer signals.
func NewOrchestrator(sources []Source, handler SignalHandler, interval, ttl time.Duration, buffer int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sources:  sources,
		handler:  handler,
		interval: interval,
		dedup:    NewDedup(ttl),
		signals:  make(chan domain.SentimentSignal, buffer),
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// Submit injects a signal from outside the polling loop, for example a manual
// trigger. It shares the consumer path with polled signals.
func (o *Orchestrator) Submit(ctx context.Context, sig domain.SentimentSignal) error {
	select {
	case o.signals <- sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts one poller per source plus the consumer and a dedup cleanup
// ticker. Each goroutine respects ctx cancellation. If any goroutine returns
// a non-context error, the errgroup cancels the shared context and Run
// returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "monitor starting",
		slog.Int("sources", len(o.sources)),
		slog.Duration("poll_interval", o.interval),
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, src := range o.sources {
		src := src
		poller := NewPoller(src, o.dedup, o.signals, o.logger)
		g.Go(func() error {
			err := poller.RunLoop(ctx, o.interval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("poller %s: %w", src.Name(), err)
		})
	}

	g.Go(func() error {
		o.consume(ctx)
		return nil
	})

	g.Go(func() error {
		interval := o.dedup.ttl
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				o.dedup.Cleanup()
			}
		}
	})

	err := g.Wait()
	if err != nil {
		o.logger.ErrorContext(ctx, "monitor stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.InfoContext(ctx, "monitor stopped cleanly")
	return nil
}

func (o *Orchestrator) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-o.signals:
			if err := o.handler(ctx, sig); err != nil {
				// A busy coordinator is expected when signals arrive faster
				// than trades settle; anything else is a real failure.
				level := slog.LevelError
				if errors.Is(err, domain.ErrAlreadyTrading) || errors.Is(err, domain.ErrNoTradeSignal) {
					level = slog.LevelWarn
				}
				o.logger.Log(ctx, level, "signal handling failed",
					slog.Int("score", sig.Score),
					slog.String("ref", sig.SourceRef),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
