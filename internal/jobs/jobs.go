// Package jobs schedules background playlist maintenance.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/pipeline"
	"github.com/reelplay/reelplay-agent/internal/thumbnail"
)

const (
	DefaultThumbnailEvery = 30 * time.Second
	DefaultDurationEvery  = time.Minute

	runTimeout = 2 * time.Minute
)

type Store interface {
	Snapshot() []catalog.Asset
	SetOriginalDuration(id string, seconds float64) bool
}

type Config struct {
	Store          Store
	Thumbnails     *thumbnail.Generator
	Prober         pipeline.Prober
	ThumbnailEvery time.Duration
	DurationEvery  time.Duration
	Logger         *slog.Logger
}

// Setup registers the maintenance jobs. The scheduler is returned stopped.
func Setup(cfg Config) (*gocron.Scheduler, error) {
	logger := logging.WithComponent(logging.OrDiscard(cfg.Logger), "jobs")
	if cfg.ThumbnailEvery <= 0 {
		cfg.ThumbnailEvery = DefaultThumbnailEvery
	}
	if cfg.DurationEvery <= 0 {
		cfg.DurationEvery = DefaultDurationEvery
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if cfg.Thumbnails != nil {
		if _, err := s.Every(cfg.ThumbnailEvery).Do(runThumbnails, cfg.Store, cfg.Thumbnails, logger); err != nil {
			return nil, err
		}
	}
	if cfg.Prober != nil {
		if _, err := s.Every(cfg.DurationEvery).Do(runDurations, cfg.Store, cfg.Prober, logger); err != nil {
			return nil, err
		}
	}

	logger.Info("jobs scheduled", "count", len(s.Jobs()))
	return s, nil
}

func runThumbnails(store Store, gen *thumbnail.Generator, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if n := BackfillThumbnails(ctx, store, gen); n > 0 {
		logger.Info("thumbnails generated", "count", n)
	}
}

func runDurations(store Store, prober pipeline.Prober, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if n := BackfillDurations(ctx, store, prober, logger); n > 0 {
		logger.Info("durations recorded", "count", n)
	}
}

// BackfillThumbnails generates missing video thumbnails.
func BackfillThumbnails(ctx context.Context, store Store, gen *thumbnail.Generator) int {
	return gen.Backfill(ctx, store.Snapshot())
}

// BackfillDurations probes videos whose length is still unknown and records
// the result. It returns how many assets were updated.
func BackfillDurations(ctx context.Context, store Store, prober pipeline.Prober, logger *slog.Logger) int {
	logger = logging.OrDiscard(logger)
	updated := 0
	for _, a := range store.Snapshot() {
		if a.Kind != catalog.KindVideo || a.OriginalDuration > 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		res, err := prober.Probe(ctx, a.SourceURL)
		if err != nil {
			logging.WithAssetID(logger, a.ID).Debug("duration probe failed", "error", err)
			continue
		}
		if store.SetOriginalDuration(a.ID, res.Duration) {
			updated++
		}
	}
	return updated
}
