package watcher

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/logging"
)

// Playlist is the part of the asset store the importer edits.
type Playlist interface {
	Snapshot() []catalog.Asset
	AddFile(ctx context.Context, path string) (catalog.Asset, error)
	RemoveBySource(url string) int
}

// Importer keeps the playlist in step with an import directory.
type Importer struct {
	store   Playlist
	scanner *catalog.Scanner
	watcher Watcher
	logger  *slog.Logger
}

func NewImporter(store Playlist, w Watcher, logger *slog.Logger) *Importer {
	logger = logging.WithComponent(logging.OrDiscard(logger), "importer")
	return &Importer{
		store:   store,
		scanner: catalog.NewScanner(logger),
		watcher: w,
		logger:  logger,
	}
}

// Run adds every media file already in dir, then follows dir until ctx is
// done.
func (i *Importer) Run(ctx context.Context, dir string) error {
	if _, err := i.Sync(ctx, dir); err != nil {
		return err
	}

	i.watcher.OnChange(func(path string, event EventType) {
		i.Handle(ctx, path, event)
	})
	if err := i.watcher.Watch(ctx, dir); err != nil {
		return err
	}

	<-ctx.Done()
	return i.watcher.Stop()
}

// Sync appends files under dir that the playlist does not reference yet and
// reports how many were added.
func (i *Importer) Sync(ctx context.Context, dir string) (int, error) {
	files, err := i.scanner.ScanFolder(ctx, dir)
	if err != nil {
		return 0, err
	}

	known := i.sources()
	added := 0
	for _, f := range files {
		if known[f] {
			continue
		}
		if _, err := i.store.AddFile(ctx, f); err != nil {
			i.logger.Warn("import failed", "path", logging.SanitizePath(f), "error", err)
			continue
		}
		added++
	}
	if added > 0 {
		i.logger.Info("import directory synced", "added", added)
	}
	return added, nil
}

// Handle applies one file event to the playlist.
func (i *Importer) Handle(ctx context.Context, path string, event EventType) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	switch event {
	case EventDelete:
		if n := i.store.RemoveBySource(abs); n > 0 {
			i.logger.Info("removed deleted file", "path", logging.SanitizePath(abs), "count", n)
		}

	case EventCreate, EventModify:
		if _, ok := catalog.KindForFile(abs); !ok {
			return
		}
		if i.sources()[abs] {
			return
		}
		if _, err := i.store.AddFile(ctx, abs); err != nil {
			i.logger.Warn("import failed", "path", logging.SanitizePath(abs), "error", err)
		}
	}
}

func (i *Importer) sources() map[string]bool {
	known := make(map[string]bool)
	for _, a := range i.store.Snapshot() {
		known[a.SourceURL] = true
	}
	return known
}
