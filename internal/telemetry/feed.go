package telemetry

import (
	"context"
	"fmt"

	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
)

// DefaultWindow is how many of the newest records the dashboard charts.
const DefaultWindow = 24

// Feed streams the latest telemetry window, oldest first.
type Feed struct {
	store  store.Store
	window int
	log    *logger.Logger
}

func NewFeed(s store.Store, log *logger.Logger) *Feed {
	return &Feed{store: s, window: DefaultWindow, log: log.WithComponent("telemetry_feed")}
}

// Latest returns the newest window of samples in chronological order.
func (f *Feed) Latest(ctx context.Context) ([]Sample, error) {
	return f.latest(ctx, f.window)
}

func (f *Feed) latest(ctx context.Context, n int) ([]Sample, error) {
	records, err := f.store.LatestTelemetry(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest telemetry: %w", err)
	}
	samples := make([]Sample, len(records))
	// Records come newest first.
	for i, rec := range records {
		samples[len(records)-1-i] = Normalize(rec)
	}
	return samples, nil
}

// Subscribe calls fn with the full window now and after every telemetry
// write, until ctx ends or the returned function is called.
func (f *Feed) Subscribe(ctx context.Context, fn func([]Sample)) (unsubscribe func()) {
	return store.Watch(ctx, f.store.Changes(), store.TopicTelemetry, func(ctx context.Context) {
		samples, err := f.Latest(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.log.Error().Err(err).Msg("Telemetry feed refresh failed")
			}
			return
		}
		fn(samples)
	})
}
