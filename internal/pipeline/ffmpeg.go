package pipeline

import (
	"context"
	"log/slog"

	"github.com/reelplay/reelplay-agent/internal/logging"
)

// StubFFmpeg stands in when the binaries are not installed. Probes report an
// unknown duration and thumbnails fail with ErrUnavailable.
type StubFFmpeg struct {
	logger *slog.Logger
}

func NewStubFFmpeg(logger *slog.Logger) *StubFFmpeg {
	return &StubFFmpeg{logger: logging.OrDiscard(logger)}
}

func (f *StubFFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	f.logger.Debug("ffmpeg stub: probe requested", "path", path)
	return &ProbeResult{}, nil
}

func (f *StubFFmpeg) GenerateThumbnail(ctx context.Context, inputPath, outputPath string, offset float64) error {
	f.logger.Debug("ffmpeg stub: thumbnail requested",
		"input", inputPath, "output", outputPath, "offset", offset)
	return ErrUnavailable
}
