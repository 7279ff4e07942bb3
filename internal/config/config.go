// Package config provides configuration management for the reelplay agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort                 = 8787
	DefaultLogLevel             = "info"
	DefaultDataDir              = ".reelplay"
	DefaultSampleInterval       = 100 * time.Millisecond
	DefaultImageDurationSeconds = 5.0
	DefaultCanvasWidth          = 640
	DefaultCanvasHeight         = 360
	DefaultFFmpegPath           = "ffmpeg"
	DefaultFFprobePath          = "ffprobe"
	DefaultToolTimeout          = 30 * time.Second

	// Environment variable names
	EnvPort           = "REELPLAY_PORT"
	EnvLogLevel       = "REELPLAY_LOG_LEVEL"
	EnvDataDir        = "REELPLAY_DATA_DIR"
	EnvImportDir      = "REELPLAY_IMPORT_DIR"
	EnvPlaylistFile   = "REELPLAY_PLAYLIST_FILE"
	EnvSampleInterval = "REELPLAY_SAMPLE_INTERVAL"
	EnvImageDuration  = "REELPLAY_IMAGE_DURATION"
	EnvCanvasSize     = "REELPLAY_CANVAS_SIZE"
	EnvFFmpegPath     = "REELPLAY_FFMPEG"
	EnvFFprobePath    = "REELPLAY_FFPROBE"
	EnvHeadless       = "REELPLAY_HEADLESS"
	EnvCORSOrigins    = "REELPLAY_CORS_ORIGINS"

	// Database filename
	DBFilename = "reelplay.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	CacheDir() string
	ImportDir() string
	PlaylistFile() string
	SampleInterval() time.Duration
	DefaultImageDuration() float64
	CanvasSize() (int, int)
	FFmpegPath() string
	FFprobePath() string
	ToolTimeout() time.Duration
	Headless() bool
	CORSOrigins() []string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port           int
	logLevel       string
	dataDir        string
	importDir      string
	playlistFile   string
	sampleInterval time.Duration
	imageDuration  float64
	canvasWidth    int
	canvasHeight   int
	ffmpegPath     string
	ffprobePath    string
	headless       bool
	corsOrigins    []string
}

// Load reads an optional .env file, then builds the configuration from the
// environment. Variables already set in the environment win over the file.
func Load(envFiles ...string) (*EnvConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return New()
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		sampleInterval: DefaultSampleInterval,
		imageDuration:  DefaultImageDurationSeconds,
		canvasWidth:    DefaultCanvasWidth,
		canvasHeight:   DefaultCanvasHeight,
		ffmpegPath:     DefaultFFmpegPath,
		ffprobePath:    DefaultFFprobePath,
		corsOrigins:    []string{"*"},
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.importDir = os.Getenv(EnvImportDir)
	cfg.playlistFile = os.Getenv(EnvPlaylistFile)

	if si := os.Getenv(EnvSampleInterval); si != "" {
		d, err := time.ParseDuration(si)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvSampleInterval, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvSampleInterval)
		}
		cfg.sampleInterval = d
	}

	if id := os.Getenv(EnvImageDuration); id != "" {
		seconds, err := strconv.ParseFloat(id, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvImageDuration, err)
		}
		if seconds <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvImageDuration)
		}
		cfg.imageDuration = seconds
	}

	if cs := os.Getenv(EnvCanvasSize); cs != "" {
		w, h, err := parseSize(cs)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvCanvasSize, err)
		}
		cfg.canvasWidth, cfg.canvasHeight = w, h
	}

	if fp := os.Getenv(EnvFFmpegPath); fp != "" {
		cfg.ffmpegPath = fp
	}
	if fp := os.Getenv(EnvFFprobePath); fp != "" {
		cfg.ffprobePath = fp
	}

	if hl := os.Getenv(EnvHeadless); hl != "" {
		headless, err := strconv.ParseBool(hl)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	if co := os.Getenv(EnvCORSOrigins); co != "" {
		var origins []string
		for _, o := range strings.Split(co, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.corsOrigins = origins
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// CacheDir returns the thumbnail cache directory path
func (c *EnvConfig) CacheDir() string {
	return filepath.Join(c.dataDir, "cache")
}

// ImportDir returns the watched import directory, empty when disabled
func (c *EnvConfig) ImportDir() string {
	return c.importDir
}

// PlaylistFile returns the YAML playlist loaded at startup, empty when unset
func (c *EnvConfig) PlaylistFile() string {
	return c.playlistFile
}

func (c *EnvConfig) SampleInterval() time.Duration {
	return c.sampleInterval
}

func (c *EnvConfig) DefaultImageDuration() float64 {
	return c.imageDuration
}

func (c *EnvConfig) CanvasSize() (int, int) {
	return c.canvasWidth, c.canvasHeight
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) ToolTimeout() time.Duration {
	return DefaultToolTimeout
}

// Headless disables the system tray
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) CORSOrigins() []string {
	return c.corsOrigins
}

func parseSize(s string) (int, int, error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected WIDTHxHEIGHT, got %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("dimensions must be positive")
	}
	return w, h, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
