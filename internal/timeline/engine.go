// Package timeline drives a looping sequence of image and video assets as one
// continuous clock.
package timeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/clock"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/playlist"
	"github.com/reelplay/reelplay-agent/internal/surface"
)

const DefaultSampleInterval = 100 * time.Millisecond

// AssetSource is the playlist the engine follows.
type AssetSource interface {
	Subscribe(l playlist.Listener) func()
	SetOriginalDuration(id string, seconds float64) bool
}

type Config struct {
	Clock          clock.Clock
	SampleInterval time.Duration
	Logger         *slog.Logger
}

type playState int

const (
	paused playState = iota
	playing
)

// Engine owns the playback cursor. One mutex stands in for the single UI
// event loop: public operations, timer callbacks and surface callbacks all
// run under it, and surface callbacks are re-queued onto the clock instead
// of running on the caller's stack.
type Engine struct {
	store    AssetSource
	sink     Sink
	clk      clock.Clock
	interval time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	image       surface.ImageSurface
	video       surface.VideoSurface
	assets      []catalog.Asset
	state       playState
	loaded      bool
	index       int
	gen         uint64
	advanced    bool
	strategy    strategy
	stalled     bool
	stallReason string
	started     bool
	sampler     clock.Timer
	unsubscribe func()

	qmu      sync.Mutex
	queue    []func()
	draining bool
}

func New(store AssetSource, sink Sink, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if sink == nil {
		sink = SinkFunc(func(Sample) {})
	}
	return &Engine{
		store:    store,
		sink:     sink,
		clk:      cfg.Clock,
		interval: cfg.SampleInterval,
		logger:   logging.WithComponent(logging.OrDiscard(cfg.Logger), "timeline"),
	}
}

// Start subscribes to the playlist and starts the periodic sampler.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.armSamplerLocked()
	e.mu.Unlock()

	// Subscribe delivers the current snapshot synchronously, so the engine
	// lock must not be held here.
	unsubscribe := e.store.Subscribe(e.onSnapshot)

	e.mu.Lock()
	e.unsubscribe = unsubscribe
	e.mu.Unlock()
}

// Stop releases the active strategy, stops sampling and detaches from the
// playlist.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	if e.sampler != nil {
		e.sampler.Stop()
		e.sampler = nil
	}
	e.releaseLocked()
	e.gen++
	e.loaded = false
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Attach binds the rendering surfaces. Until both are attached Load is a
// no-op.
func (e *Engine) Attach(image surface.ImageSurface, video surface.VideoSurface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.image = image
	e.video = video
	if !e.loaded && len(e.assets) > 0 {
		e.load(0)
	}
}

// Load makes the asset at index active, keeping the current play state.
func (e *Engine) Load(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load(index)
}

func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.assets) == 0 {
		e.logger.Debug("play ignored: playlist empty")
		return
	}
	e.state = playing
	if e.strategy != nil {
		e.strategy.startAt()
	}
}

func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.assets) == 0 {
		e.logger.Debug("pause ignored: playlist empty")
		return
	}
	e.state = paused
	if e.strategy != nil {
		e.strategy.pause()
	}
}

// Seek moves within the active asset. progress is a percentage of its play
// duration and is clamped to [0, 100].
func (e *Engine) Seek(progress float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.strategy == nil {
		e.logger.Debug("seek ignored: nothing loaded")
		return
	}
	if progress < 0 || progress != progress {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	target := progress / 100 * e.strategy.asset().PlayDuration()
	gen := e.gen
	e.strategy.seekTo(target)
	if gen == e.gen {
		e.emitLocked()
	}
}

// Next loads the following asset, wrapping to the start.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.assets) == 0 {
		return
	}
	if !e.loaded {
		e.load(0)
		return
	}
	e.load((e.index + 1) % len(e.assets))
}

// Previous loads the preceding asset, wrapping to the end.
func (e *Engine) Previous() {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.assets)
	if n == 0 {
		return
	}
	if !e.loaded {
		e.load(0)
		return
	}
	e.load((e.index - 1 + n) % n)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:       e.stateLocked(),
		Playing:     e.state == playing,
		ActiveIndex: e.index,
		Count:       len(e.assets),
		Stalled:     e.stalled,
		StallReason: e.stallReason,
		Generation:  e.gen,
	}
	if e.strategy != nil {
		a := e.strategy.asset()
		st.AssetID = a.ID
		st.Kind = a.Kind
		st.Sample = e.sampleLocked()
	}
	return st
}

func (e *Engine) stateLocked() State {
	switch {
	case !e.loaded:
		return StateIdle
	case e.state == playing:
		return StatePlaying
	default:
		return StateLoaded
	}
}

func (e *Engine) load(index int) {
	if e.image == nil || e.video == nil {
		e.logger.Debug("load ignored: surfaces not attached", "index", index)
		return
	}
	if index < 0 || index >= len(e.assets) {
		e.logger.Debug("load ignored: index out of range", "index", index, "count", len(e.assets))
		return
	}

	e.releaseLocked()
	e.gen++
	e.advanced = false
	e.stalled = false
	e.stallReason = ""
	e.index = index
	e.loaded = true

	a := e.assets[index]
	switch a.Kind {
	case catalog.KindVideo:
		e.strategy = newVideoStrategy(e, e.gen, a)
	default:
		e.strategy = newImageStrategy(e, e.gen, a)
	}
	e.strategy.bindSurface()

	logging.WithGeneration(e.logger, e.gen).Info("asset loaded",
		"index", index,
		"asset_id", a.ID,
		"kind", a.Kind,
		"playing", e.state == playing,
	)
	e.emitLocked()
}

// advance moves to the next asset. Only the first trigger of a load
// generation has any effect.
func (e *Engine) advance(gen uint64) {
	if gen != e.gen || e.advanced || len(e.assets) == 0 {
		return
	}
	e.advanced = true
	e.load((e.index + 1) % len(e.assets))
}

func (e *Engine) releaseLocked() {
	if e.strategy != nil {
		e.strategy.release()
		e.strategy = nil
	}
}

func (e *Engine) onSnapshot(assets []catalog.Asset) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assets = assets

	if len(assets) == 0 {
		if e.loaded {
			e.releaseLocked()
			e.gen++
			e.loaded = false
			e.index = 0
			e.stalled = false
			e.stallReason = ""
			if e.image != nil {
				e.image.Hide()
			}
			if e.video != nil {
				e.video.Hide()
			}
			e.logger.Info("playlist empty, engine idle")
		}
		return
	}

	if !e.loaded {
		e.load(0)
		return
	}

	if e.strategy == nil {
		e.load(0)
		return
	}
	current := e.strategy.asset()
	i := indexOf(assets, current.ID)
	switch {
	case i < 0:
		e.logger.Info("active asset removed, reloading", "asset_id", current.ID)
		e.load(0)
	case assets[i].Revision != current.Revision:
		e.logger.Info("active asset edited, reloading", "asset_id", current.ID, "revision", assets[i].Revision)
		e.load(i)
	default:
		e.index = i
		e.strategy.refresh(assets[i])
	}
}

func (e *Engine) armSamplerLocked() {
	e.sampler = e.clk.AfterFunc(e.interval, e.sampleTick)
}

func (e *Engine) sampleTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	if e.loaded {
		e.emitLocked()
	}
	e.armSamplerLocked()
}

func (e *Engine) emitLocked() {
	if e.strategy == nil {
		return
	}
	e.sink.Publish(e.sampleLocked())
}

func (e *Engine) sampleLocked() Sample {
	d := e.strategy.asset().PlayDuration()
	current := e.strategy.elapsed()
	progress := 0.0
	if d > 0 {
		progress = current / d * 100
	}
	return Sample{
		CurrentTime:   current,
		AssetDuration: d,
		Progress:      progress,
		ActiveIndex:   e.index,
	}
}

// markStalled records that the active asset's media could not be loaded.
// Playback stays where it is; there is no retry and no auto-advance.
func (e *Engine) markStalled(err error) {
	e.stalled = true
	e.stallReason = err.Error()
	a := e.strategy.asset()
	logging.WithGeneration(logging.WithAssetID(e.logger, a.ID), e.gen).Warn("media load failed",
		"kind", a.Kind,
		"source", logging.SanitizeSource(a.SourceURL),
		"error", err,
	)
}

// reportDuration hands a newly learned intrinsic duration to the playlist,
// outside the engine lock.
func (e *Engine) reportDuration(id string, seconds float64) {
	e.clk.AfterFunc(0, func() {
		e.store.SetOriginalDuration(id, seconds)
	})
}

// guard wraps fn so it runs under the engine lock and only while gen is
// still the active load generation.
func (e *Engine) guard(gen uint64, fn func()) func() {
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen != e.gen {
			return
		}
		fn()
	}
}

// post queues fn to run later, in order, under the generation guard.
func (e *Engine) post(gen uint64, fn func()) {
	e.qmu.Lock()
	e.queue = append(e.queue, e.guard(gen, fn))
	if e.draining {
		e.qmu.Unlock()
		return
	}
	e.draining = true
	e.qmu.Unlock()
	e.clk.AfterFunc(0, e.drain)
}

func (e *Engine) drain() {
	for {
		e.qmu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.qmu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.qmu.Unlock()
		fn()
	}
}

func indexOf(assets []catalog.Asset, id string) int {
	for i, a := range assets {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
