// Package pipeline wraps the ffmpeg/ffprobe binaries used to probe media
// durations and extract video thumbnails.
package pipeline

import (
	"context"
	"errors"
	"time"
)

var ErrUnavailable = errors.New("ffmpeg tooling unavailable")

// Prober reports the intrinsic properties of a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

type FFmpeg interface {
	Prober
	// GenerateThumbnail writes a single PNG frame taken at offset seconds.
	GenerateThumbnail(ctx context.Context, inputPath, outputPath string, offset float64) error
}

type ProbeResult struct {
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Codec     string  `json:"codec"`
	FrameRate float64 `json:"frame_rate"`
	HasAudio  bool    `json:"has_audio"`
}

// RunResult is the outcome of one ffmpeg/ffprobe invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	Stdout     []byte        `json:"-"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
}

func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }
