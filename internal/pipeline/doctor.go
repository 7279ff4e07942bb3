package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// ToolInfo is the availability of a single executable.
type ToolInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities reports which media tools are installed.
type Capabilities struct {
	FFmpeg   ToolInfo  `json:"ffmpeg"`
	FFprobe  ToolInfo  `json:"ffprobe"`
	ProbedAt time.Time `json:"probed_at"`
}

// Ready reports whether both binaries are usable.
func (c Capabilities) Ready() bool {
	return c.FFmpeg.Available && c.FFprobe.Available
}

// CheckFunc inspects one executable.
type CheckFunc func(ctx context.Context, bin string) ToolInfo

// Doctor caches tool detection results with a TTL.
type Doctor struct {
	ffmpeg  string
	ffprobe string
	check   CheckFunc
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewDoctor(ffmpegPath, ffprobePath string, logger *slog.Logger) *Doctor {
	return &Doctor{
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		check:   CheckTool,
		ttl:     defaultCacheTTL,
		now:     time.Now,
		logger:  logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *Doctor) Get(ctx context.Context) Capabilities {
	d.mu.RLock()
	if d.cached != nil && d.now().Sub(d.cached.ProbedAt) < d.ttl {
		caps := *d.cached
		d.mu.RUnlock()
		return caps
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *Doctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *Doctor) Refresh(ctx context.Context) Capabilities {
	caps := Capabilities{
		FFmpeg:   d.check(ctx, d.ffmpeg),
		FFprobe:  d.check(ctx, d.ffprobe),
		ProbedAt: d.now(),
	}

	d.mu.Lock()
	d.cached = &caps
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("media tool probe complete",
			"ffmpeg", caps.FFmpeg.Available,
			"ffprobe", caps.FFprobe.Available,
		)
	}
	return caps
}

// Invalidate clears the cached capabilities.
func (d *Doctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

// CheckTool looks bin up on PATH and records the first line of `bin -version`.
func CheckTool(ctx context.Context, bin string) ToolInfo {
	path, err := exec.LookPath(bin)
	if err != nil {
		return ToolInfo{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return ToolInfo{Path: path, Error: err.Error()}
	}

	line, _, _ := bufio.NewReader(bytes.NewReader(out)).ReadLine()
	return ToolInfo{Available: true, Path: path, Version: string(line)}
}
