package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/reelplay/reelplay-agent/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	thumbnailWidth = 320
)

// Config holds the subprocess runner's configuration.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// SubprocessFFmpeg is the production FFmpeg backed by the ffmpeg and ffprobe
// executables.
type SubprocessFFmpeg struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

// NewSubprocessFFmpeg resolves both binaries on PATH.
func NewSubprocessFFmpeg(cfg Config) (*SubprocessFFmpeg, error) {
	ffmpeg, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg %q: %w", cfg.FFmpegPath, err)
	}
	ffprobe, err := exec.LookPath(cfg.FFprobePath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffprobe %q: %w", cfg.FFprobePath, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Logger = logging.OrDiscard(cfg.Logger)

	cfg.Logger.Info("ffmpeg runner initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return &SubprocessFFmpeg{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

// Probe runs ffprobe and parses its JSON report.
func (f *SubprocessFFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	result := f.exec(ctx, f.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("ffprobe exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return parseProbeOutput(result.Stdout)
}

// GenerateThumbnail extracts one frame at offset, scaled to a fixed width.
func (f *SubprocessFFmpeg) GenerateThumbnail(ctx context.Context, inputPath, outputPath string, offset float64) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("cannot create thumbnail dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	result := f.exec(ctx, f.ffmpeg,
		"-y",
		"-v", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", inputPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", thumbnailWidth),
		outputPath,
	)
	if !result.IsSuccess() {
		return fmt.Errorf("ffmpeg exited %d: %s", result.ExitCode, truncate(result.StderrTail, 512))
	}
	return nil
}

// exec is the core subprocess execution helper.
func (f *SubprocessFFmpeg) exec(ctx context.Context, bin string, args ...string) RunResult {
	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})

	f.cfg.Logger.Debug("executing media tool", "bin", filepath.Base(bin), "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()
	if exitCode != 0 {
		f.cfg.Logger.Warn("media tool failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		Stdout:     stdout.Bytes(),
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	var res ProbeResult
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		res.Duration = d
	}

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if res.Codec != "" {
				continue
			}
			res.Codec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseFrameRate(s.AvgFrameRate)
			if res.Duration == 0 {
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					res.Duration = d
				}
			}
		case "audio":
			res.HasAudio = true
		}
	}
	return &res, nil
}

// parseFrameRate parses ffprobe's "num/den" notation.
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
