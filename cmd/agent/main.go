package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelplay/reelplay-agent/internal/api"
	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/clock"
	"github.com/reelplay/reelplay-agent/internal/config"
	"github.com/reelplay/reelplay-agent/internal/db"
	"github.com/reelplay/reelplay-agent/internal/events"
	"github.com/reelplay/reelplay-agent/internal/jobs"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/pipeline"
	"github.com/reelplay/reelplay-agent/internal/playback"
	"github.com/reelplay/reelplay-agent/internal/playlist"
	"github.com/reelplay/reelplay-agent/internal/surface"
	"github.com/reelplay/reelplay-agent/internal/thumbnail"
	"github.com/reelplay/reelplay-agent/internal/timeline"
	"github.com/reelplay/reelplay-agent/internal/ui"
	"github.com/reelplay/reelplay-agent/internal/watcher"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir(), 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reelplay agent", "version", Version, "data_dir", cfg.DataDir())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  REELPLAY AGENT v%-25s║\n", Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	doctor := pipeline.NewDoctor(cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	probeCtx, probeCancel := context.WithTimeout(ctx, cfg.ToolTimeout())
	caps := doctor.Refresh(probeCtx)
	probeCancel()

	ffmpeg := newFFmpeg(cfg, caps, logger)

	hub := events.NewHub(logger)
	defer hub.Close()

	store := playlist.NewStore(repo, ffmpeg, cfg.DefaultImageDuration(), logger)
	if err := store.Restore(ctx); err != nil {
		return err
	}
	if store.Len() == 0 && cfg.PlaylistFile() != "" {
		n, err := store.Import(cfg.PlaylistFile())
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			logger.Warn("failed to import playlist file", "path", logging.SanitizePath(cfg.PlaylistFile()), "error", err)
		default:
			logger.Info("playlist file imported", "count", n)
		}
	}
	unsubscribe := store.Subscribe(hub.PublishPlaylist)
	defer unsubscribe()

	width, height := cfg.CanvasSize()
	canvas := surface.NewCanvas(width, height, logger)
	media := surface.NewMediaElement(clock.Real{}, ffmpeg, logger)

	engine := timeline.New(store, hub, timeline.Config{
		SampleInterval: cfg.SampleInterval(),
		Logger:         logger,
	})
	engine.Attach(canvas, media)
	engine.Start()
	defer engine.Stop()

	thumbs := thumbnail.NewGenerator(ffmpeg, filepath.Join(cfg.CacheDir(), "thumbnails"), logger)

	var prober pipeline.Prober
	if caps.Ready() {
		prober = ffmpeg
	}
	scheduler, err := jobs.Setup(jobs.Config{
		Store:      store,
		Thumbnails: thumbs,
		Prober:     prober,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to schedule jobs: %w", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	apiServer := api.NewServer(api.ServerConfig{
		Port:          cfg.Port(),
		Version:       Version,
		Store:         store,
		Player:        engine,
		Frame:         canvas,
		Events:        hub,
		Thumbnails:    thumbs,
		Media:         playback.NewServer(logger),
		Repository:    repo,
		Doctor:        doctor,
		PlaylistFile:  cfg.PlaylistFile(),
		ImageDuration: cfg.DefaultImageDuration(),
		CORSOrigins:   cfg.CORSOrigins(),
		Logger:        logger,
		StartTime:     startTime,
		DeviceID:      deviceID,
	})

	if err := apiServer.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(apiServer.Start)

	if dir := cfg.ImportDir(); dir != "" {
		importer := watcher.NewImporter(store, watcher.NewFSWatcher(watcher.DefaultSettle, logger), logger)
		g.Go(func() error {
			if err := importer.Run(gctx, dir); err != nil {
				logger.Warn("import directory unavailable", "path", logging.SanitizePath(dir), "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		// Event streams stay open until their stream closes.
		hub.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Player:  engine,
			Samples: hub,
			Logger:  logger,
			OnQuit:  stop,
		})
		go tray.Run()
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newFFmpeg returns the subprocess runner when both tools were found, and a
// stub that reports ErrUnavailable otherwise.
func newFFmpeg(cfg *config.EnvConfig, caps pipeline.Capabilities, logger *slog.Logger) pipeline.FFmpeg {
	if caps.Ready() {
		ff, err := pipeline.NewSubprocessFFmpeg(pipeline.Config{
			FFmpegPath:  cfg.FFmpegPath(),
			FFprobePath: cfg.FFprobePath(),
			Timeout:     cfg.ToolTimeout(),
			Logger:      logger,
		})
		if err == nil {
			return ff
		}
		logger.Warn("ffmpeg runner unavailable", "error", err)
	}
	logger.Warn("ffmpeg tooling not found, video durations and thumbnails disabled")
	return pipeline.NewStubFFmpeg(logger)
}

func ensureDeviceID(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
