// Package playlist holds the ordered asset list and publishes an immutable
// snapshot after every mutation.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/pipeline"
)

var (
	ErrNotFound        = errors.New("asset not found")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnsupportedFile = errors.New("unsupported media file")
)

// Listener receives every published snapshot. The slice must not be modified.
type Listener func(assets []catalog.Asset)

// Store is the single source of truth for the playlist. Mutations are
// serialized and each one is delivered to listeners before the next begins.
type Store struct {
	repo          catalog.Repository
	prober        pipeline.Prober
	imageDuration float64
	logger        *slog.Logger

	// pubMu serializes mutate+publish so listeners observe mutations in order.
	pubMu sync.Mutex

	mu        sync.RWMutex
	assets    []catalog.Asset
	listeners map[int]Listener
	nextID    int
}

// NewStore creates an empty store. repo and prober may be nil.
func NewStore(repo catalog.Repository, prober pipeline.Prober, imageDuration float64, logger *slog.Logger) *Store {
	if imageDuration <= 0 {
		imageDuration = catalog.DefaultImageDuration
	}
	return &Store{
		repo:          repo,
		prober:        prober,
		imageDuration: imageDuration,
		logger:        logging.OrDiscard(logger),
		listeners:     make(map[int]Listener),
	}
}

// Subscribe registers l and immediately delivers the current snapshot to it.
// The returned func removes the listener.
func (s *Store) Subscribe(l Listener) func() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	snap := s.snapshotLocked()
	s.mu.Unlock()

	l(snap)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current list.
func (s *Store) Snapshot() []catalog.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}

func (s *Store) Get(id string) (catalog.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.assets[i], true
	}
	return catalog.Asset{}, false
}

func (s *Store) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id)
}

func (s *Store) Schedule() []catalog.ScheduleEntry {
	return catalog.BuildSchedule(s.Snapshot())
}

func (s *Store) TotalDuration() float64 {
	return catalog.TotalDuration(s.Snapshot())
}

// AddFile classifies path by extension and appends it. Videos are probed for
// their intrinsic length first; a failed probe still adds the video with an
// unknown duration.
func (s *Store) AddFile(ctx context.Context, path string) (catalog.Asset, error) {
	kind, ok := catalog.KindForFile(path)
	if !ok {
		return catalog.Asset{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return catalog.Asset{}, fmt.Errorf("invalid path: %w", err)
	}
	name := catalog.NameFromPath(absPath)

	var asset catalog.Asset
	switch kind {
	case catalog.KindImage:
		asset = catalog.NewImage(absPath, name, s.imageDuration)
	case catalog.KindVideo:
		asset = catalog.NewVideo(absPath, name, s.probeDuration(ctx, absPath))
	}

	s.Add(asset)
	return asset, nil
}

func (s *Store) probeDuration(ctx context.Context, path string) float64 {
	if s.prober == nil {
		return 0
	}
	res, err := s.prober.Probe(ctx, path)
	if err != nil {
		s.logger.Warn("probe failed, duration unknown", "path", logging.SanitizePath(path), "error", err)
		return 0
	}
	return res.Duration
}

// Add appends asset to the end of the playlist.
func (s *Store) Add(asset catalog.Asset) {
	s.mutate(func(assets []catalog.Asset) ([]catalog.Asset, error) {
		return append(assets, asset), nil
	})
	s.logger.Info("asset added", "asset_id", asset.ID, "kind", asset.Kind, "name", asset.Name)
}

func (s *Store) Remove(id string) error {
	return s.mutate(func(assets []catalog.Asset) ([]catalog.Asset, error) {
		i := indexOf(assets, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		return append(assets[:i], assets[i+1:]...), nil
	})
}

// RemoveBySource drops every asset whose source is url and reports how many
// were removed. Nothing is published when none match.
func (s *Store) RemoveBySource(url string) int {
	removed := 0
	s.mutate(func(assets []catalog.Asset) ([]catalog.Asset, error) {
		kept := assets[:0]
		for _, a := range assets {
			if a.SourceURL == url {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		if removed == 0 {
			return nil, ErrNotFound
		}
		return kept, nil
	})
	return removed
}

// Reorder moves the asset at from so that it ends up at to.
func (s *Store) Reorder(from, to int) error {
	return s.mutate(func(assets []catalog.Asset) ([]catalog.Asset, error) {
		if from < 0 || from >= len(assets) || to < 0 || to >= len(assets) {
			return nil, ErrIndexOutOfRange
		}
		moved := assets[from]
		assets = append(assets[:from], assets[from+1:]...)
		assets = append(assets[:to], append([]catalog.Asset{moved}, assets[to:]...)...)
		return assets, nil
	})
}

func (s *Store) EditDuration(id string, seconds float64) (catalog.Asset, error) {
	return s.edit(id, func(a catalog.Asset) (catalog.Asset, error) {
		return a.WithImageDuration(seconds)
	})
}

func (s *Store) Trim(id string, start, end float64) (catalog.Asset, error) {
	return s.edit(id, func(a catalog.Asset) (catalog.Asset, error) {
		return a.WithTrim(start, end)
	})
}

func (s *Store) ResetTrim(id string) (catalog.Asset, error) {
	return s.edit(id, func(a catalog.Asset) (catalog.Asset, error) {
		return a.WithoutTrim()
	})
}

// SetOriginalDuration records the intrinsic length of a video the first time
// it is known. It reports whether the asset changed.
func (s *Store) SetOriginalDuration(id string, seconds float64) bool {
	changed := false
	s.mutate(func(assets []catalog.Asset) ([]catalog.Asset, error) {
		i := indexOf(assets, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		updated, ok := assets[i].WithOriginalDuration(seconds)
		if !ok {
			return nil, errUnchanged
		}
		assets[i] = updated
		changed = true
		return assets, nil
	})
	if changed {
		s.logger.Info("original duration recorded", "asset_id", id, "duration", seconds)
	}
	return changed
}

// Replace swaps the whole playlist. Every asset is validated first.
func (s *Store) Replace(assets []catalog.Asset) error {
	for _, a := range assets {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("asset %s: %w", a.ID, err)
		}
	}
	next := make([]catalog.Asset, len(assets))
	copy(next, assets)
	return s.mutate(func([]catalog.Asset) ([]catalog.Asset, error) {
		return next, nil
	})
}

// Restore loads the persisted playlist without writing it back.
func (s *Store) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	assets, err := s.repo.ListAssets(ctx)
	if err != nil {
		return fmt.Errorf("restore playlist: %w", err)
	}
	s.publish(assets, false)
	s.logger.Info("playlist restored", "count", len(assets))
	return nil
}

var errUnchanged = errors.New("unchanged")

func (s *Store) edit(id string, fn func(catalog.Asset) (catalog.Asset, error)) (catalog.Asset, error) {
	var result catalog.Asset
	err := s.mutate(func(assets []catalog.Asset) ([]catalog.Asset, error) {
		i := indexOf(assets, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		updated, err := fn(assets[i])
		if err != nil {
			return nil, err
		}
		assets[i] = updated
		result = updated
		return assets, nil
	})
	return result, err
}

// mutate applies fn to a private copy of the list and publishes the result.
// When fn fails nothing is published.
func (s *Store) mutate(fn func([]catalog.Asset) ([]catalog.Asset, error)) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.RLock()
	working := s.snapshotLocked()
	s.mu.RUnlock()

	next, err := fn(working)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	s.publishLocked(next, true)
	return nil
}

func (s *Store) publish(assets []catalog.Asset, persist bool) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.publishLocked(assets, persist)
}

// publishLocked requires pubMu.
func (s *Store) publishLocked(assets []catalog.Asset, persist bool) {
	s.mu.Lock()
	s.assets = assets
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, id := range sortedKeys(s.listeners) {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	if persist && s.repo != nil {
		if err := s.repo.ReplaceAssets(context.Background(), snap); err != nil {
			s.logger.Error("failed to persist playlist", "error", err)
		}
	}

	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) snapshotLocked() []catalog.Asset {
	snap := make([]catalog.Asset, len(s.assets))
	copy(snap, s.assets)
	return snap
}

func (s *Store) indexLocked(id string) int {
	return indexOf(s.assets, id)
}

func indexOf(assets []catalog.Asset, id string) int {
	for i, a := range assets {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func sortedKeys(m map[int]Listener) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
