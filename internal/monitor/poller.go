// Package monitor polls external sentiment sources on a fixed interval,
// deduplicates their output, and feeds fresh signals to the trading side over
// a single channel.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

// Source produces sentiment signals from an external feed. Poll returns the
// signals visible right now; the caller handles scheduling and dedup, so a
// Source can simply re-report the same items on every call.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]domain.SentimentSignal, error)
}

// Poller drives a single Source on a ticker and forwards fresh signals.
type Poller struct {
	source Source
	dedup  *Dedup
	out    chan<- domain.SentimentSignal
	logger *slog.Logger
}

// NewPoller creates a Poller forwarding fresh signals from source to out.
func NewPoller(source Source, dedup *Dedup, out chan<- domain.SentimentSignal, logger *slog.Logger) *Poller {
	return &Poller{
		source: source,
		dedup:  dedup,
		out:    out,
		logger: logger.With(slog.String("source", source.Name())),
	}
}

// RunLoop polls once immediately and then on every tick until ctx is
// cancelled. A failed poll is logged and the loop keeps going: transient feed
// outages must not take the bot down.
func (p *Poller) RunLoop(ctx context.Context, interval time.Duration) error {
	p.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	signals, err := p.source.Poll(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "poll failed", slog.String("error", err.Error()))
		return
	}

	for _, sig := range signals {
		if p.dedup.IsDuplicate(Fingerprint(sig.SourceName, sig.SourceRef)) {
			continue
		}
		p.logger.InfoContext(ctx, "fresh signal",
			slog.Int("score", sig.Score),
			slog.String("ref", sig.SourceRef),
		)
		select {
		case p.out <- sig:
		case <-ctx.Done():
			return
		}
	}
}
