package exchange

import (
	"context"
	"log/slog"
	"time"
)

// Poller keeps a recent snapshot on record for every pair. Pairs whose latest
// snapshot is younger than maxAge are left alone, so pushed rates win over the
// polled source.
type Poller struct {
	service  *Service
	source   RateSource
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewPoller polls source every interval.
func NewPoller(service *Service, source RateSource, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{service: service, source: source, interval: interval, maxAge: 2 * interval, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	for _, pair := range Pairs() {
		if latest, err := p.service.Latest(ctx, pair); err == nil && time.Since(latest.Timestamp) < p.maxAge {
			continue
		}
		snap, err := p.source.Fetch(ctx, pair)
		if err != nil {
			p.logger.Warn("rate fetch failed", slog.String("pair", pair.String()), slog.Any("error", err))
			continue
		}
		if _, err := p.service.Record(ctx, snap); err != nil {
			p.logger.Error("rate record failed", slog.String("pair", pair.String()), slog.Any("error", err))
		}
	}
}
