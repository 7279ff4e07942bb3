// Package thumbnail produces the preview image for each playlist asset and
// lays out the thumbnail strip.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/pipeline"
)

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Thumbnail describes the preview of one asset. For images Path is the
// asset's own source.
type Thumbnail struct {
	State State  `json:"state"`
	Path  string `json:"-"`
	Error string `json:"error,omitempty"`
}

// Generator extracts the first frame of each video into
// <cacheDir>/<fingerprint>.png. Results are remembered per source.
type Generator struct {
	ffmpeg   pipeline.FFmpeg
	cacheDir string
	logger   *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	states map[string]Thumbnail
}

func NewGenerator(ffmpeg pipeline.FFmpeg, cacheDir string, logger *slog.Logger) *Generator {
	return &Generator{
		ffmpeg:   ffmpeg,
		cacheDir: cacheDir,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "thumbnail"),
		states:   make(map[string]Thumbnail),
	}
}

// CachePath is where the thumbnail of a video asset is written.
func (g *Generator) CachePath(a catalog.Asset) string {
	return filepath.Join(g.cacheDir, a.Fingerprint()+".png")
}

// Lookup reports the current thumbnail without generating anything. A video
// that has not been generated yet is reported as loading.
func (g *Generator) Lookup(a catalog.Asset) Thumbnail {
	if a.Kind == catalog.KindImage {
		return Thumbnail{State: StateReady, Path: a.SourceURL}
	}

	key := a.Fingerprint()
	g.mu.Lock()
	th, ok := g.states[key]
	g.mu.Unlock()
	if ok {
		return th
	}

	path := g.CachePath(a)
	if fileExists(path) {
		th = Thumbnail{State: StateReady, Path: path}
		g.setState(key, th)
		return th
	}
	return Thumbnail{State: StateLoading}
}

// Ensure returns a ready thumbnail, generating it if needed. Concurrent calls
// for the same source share one ffmpeg run. A failed generation is remembered
// and not retried until Forget.
func (g *Generator) Ensure(ctx context.Context, a catalog.Asset) (Thumbnail, error) {
	th := g.Lookup(a)
	switch th.State {
	case StateReady:
		return th, nil
	case StateError:
		return th, errors.New(th.Error)
	}

	key := a.Fingerprint()
	v, err, _ := g.group.Do(key, func() (any, error) {
		return g.generate(ctx, key, a)
	})
	if err != nil {
		return g.Lookup(a), err
	}
	return v.(Thumbnail), nil
}

func (g *Generator) generate(ctx context.Context, key string, a catalog.Asset) (Thumbnail, error) {
	logger := logging.WithAssetID(g.logger, a.ID)
	g.setState(key, Thumbnail{State: StateLoading})

	if err := os.MkdirAll(g.cacheDir, 0755); err != nil {
		return g.fail(logger, key, fmt.Errorf("create cache dir: %w", err))
	}

	path := g.CachePath(a)
	if err := g.ffmpeg.GenerateThumbnail(ctx, a.SourceURL, path, 0); err != nil {
		os.Remove(path)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			g.forgetKey(key)
			return Thumbnail{}, err
		}
		return g.fail(logger, key, fmt.Errorf("generate thumbnail: %w", err))
	}

	th := Thumbnail{State: StateReady, Path: path}
	g.setState(key, th)
	logger.Info("thumbnail generated", "path", logging.SanitizePath(path))
	return th, nil
}

func (g *Generator) fail(logger *slog.Logger, key string, err error) (Thumbnail, error) {
	g.setState(key, Thumbnail{State: StateError, Error: err.Error()})
	logger.Warn("thumbnail failed", "error", err)
	return Thumbnail{}, err
}

// Backfill generates thumbnails for every video that has none yet and
// returns how many were produced.
func (g *Generator) Backfill(ctx context.Context, assets []catalog.Asset) int {
	produced := 0
	for _, a := range assets {
		if ctx.Err() != nil {
			break
		}
		if a.Kind != catalog.KindVideo || g.Lookup(a).State != StateLoading {
			continue
		}
		if _, err := g.Ensure(ctx, a); err == nil {
			produced++
		}
	}
	return produced
}

// Forget drops the remembered state for a's source so the next Ensure tries
// again.
func (g *Generator) Forget(a catalog.Asset) {
	g.forgetKey(a.Fingerprint())
}

func (g *Generator) forgetKey(key string) {
	g.mu.Lock()
	delete(g.states, key)
	g.mu.Unlock()
}

func (g *Generator) setState(key string, th Thumbnail) {
	g.mu.Lock()
	g.states[key] = th
	g.mu.Unlock()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
