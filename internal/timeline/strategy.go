package timeline

import (
	"time"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/clock"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/surface"
)

// strategy is the per-load playback behaviour for one asset kind. A new
// instance is created for every load and all methods run under the engine
// lock.
type strategy interface {
	asset() catalog.Asset
	// refresh swaps in a newer record of the same asset without reloading.
	refresh(a catalog.Asset)
	bindSurface()
	startAt()
	pause()
	seekTo(target float64)
	scheduleAdvance()
	elapsed() float64
	release()
}

// imageStrategy plays a still for its configured duration on the engine
// clock. The clock is anchored and the advance timer armed only once the
// bitmap is ready.
type imageStrategy struct {
	e   *Engine
	gen uint64
	a   catalog.Asset

	ready          bool
	running        bool
	clockAnchor    time.Time
	elapsedInAsset float64
	timer          clock.Timer
}

func newImageStrategy(e *Engine, gen uint64, a catalog.Asset) *imageStrategy {
	return &imageStrategy{e: e, gen: gen, a: a}
}

func (s *imageStrategy) asset() catalog.Asset { return s.a }

func (s *imageStrategy) refresh(a catalog.Asset) { s.a = a }

func (s *imageStrategy) bindSurface() {
	s.e.video.Hide()
	s.e.image.Show()
	s.e.image.Load(s.a.SourceURL, func(err error) {
		s.e.post(s.gen, func() { s.onLoaded(err) })
	})
}

func (s *imageStrategy) onLoaded(err error) {
	if err != nil {
		s.e.markStalled(err)
		return
	}
	s.ready = true
	if s.e.state == playing {
		s.startAt()
	}
}

func (s *imageStrategy) startAt() {
	if !s.ready {
		return
	}
	elapsed := s.elapsed()
	s.stopTimer()
	s.elapsedInAsset = elapsed
	s.clockAnchor = s.e.clk.Now().Add(-clock.Seconds(elapsed))
	s.running = true
	s.scheduleAdvance()
}

func (s *imageStrategy) pause() {
	if !s.running {
		return
	}
	s.elapsedInAsset = s.elapsed()
	s.running = false
	s.stopTimer()
}

func (s *imageStrategy) seekTo(target float64) {
	s.stopTimer()
	s.running = false
	s.elapsedInAsset = target
	if s.e.state == playing {
		s.startAt()
	}
}

func (s *imageStrategy) scheduleAdvance() {
	remaining := s.a.PlayDuration() - s.elapsedInAsset
	if remaining <= 0 {
		s.e.advance(s.gen)
		return
	}
	gen := s.gen
	s.timer = s.e.clk.AfterFunc(clock.Seconds(remaining), s.e.guard(gen, func() {
		s.e.advance(gen)
	}))
}

func (s *imageStrategy) elapsed() float64 {
	d := s.a.PlayDuration()
	if s.running {
		return clamp(s.e.clk.Now().Sub(s.clockAnchor).Seconds(), 0, d)
	}
	return clamp(s.elapsedInAsset, 0, d)
}

func (s *imageStrategy) release() {
	s.stopTimer()
	s.running = false
}

func (s *imageStrategy) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// videoStrategy plays the trimmed window of a video through the media
// element. A seek requested before metadata is kept as a pending offset.
type videoStrategy struct {
	e   *Engine
	gen uint64
	a   catalog.Asset

	ready         bool
	pendingOffset float64
}

func newVideoStrategy(e *Engine, gen uint64, a catalog.Asset) *videoStrategy {
	return &videoStrategy{e: e, gen: gen, a: a}
}

func (s *videoStrategy) asset() catalog.Asset { return s.a }

func (s *videoStrategy) refresh(a catalog.Asset) {
	if a.OriginalDuration == 0 {
		a.OriginalDuration = s.a.OriginalDuration
	}
	s.a = a
}

func (s *videoStrategy) bindSurface() {
	s.e.image.Hide()
	s.e.video.Show()
	gen := s.gen
	s.e.video.Load(s.a.SourceURL, surface.VideoHandlers{
		OnMetadata: func(duration float64) {
			s.e.post(gen, func() { s.onMetadata(duration) })
		},
		OnTimeUpdate: func(position float64) {
			s.e.post(gen, func() { s.onTimeUpdate(position) })
		},
		OnEnded: func() {
			s.e.post(gen, func() { s.e.advance(gen) })
		},
		OnError: func(err error) {
			s.e.post(gen, func() { s.e.markStalled(err) })
		},
	})
}

func (s *videoStrategy) onMetadata(duration float64) {
	if updated, ok := s.a.WithOriginalDuration(duration); ok {
		s.a = updated
		s.e.reportDuration(s.a.ID, duration)
	}
	s.ready = true
	s.e.video.Seek(s.a.TrimStart + s.pendingOffset)
	s.pendingOffset = 0
	if s.e.state == playing {
		s.play()
	}
}

// onTimeUpdate is the trim-boundary watch.
func (s *videoStrategy) onTimeUpdate(position float64) {
	end := s.a.EffectiveTrimEnd()
	if end > 0 && position >= end {
		s.e.video.Pause()
		s.e.advance(s.gen)
	}
}

func (s *videoStrategy) startAt() {
	if !s.ready {
		return
	}
	s.play()
}

func (s *videoStrategy) play() {
	if err := s.e.video.Play(); err != nil {
		logging.WithGeneration(logging.WithAssetID(s.e.logger, s.a.ID), s.gen).Warn("video play rejected", "error", err)
	}
}

func (s *videoStrategy) pause() {
	s.e.video.Pause()
}

func (s *videoStrategy) seekTo(target float64) {
	if !s.ready {
		s.pendingOffset = target
		return
	}
	s.e.video.Seek(s.a.TrimStart + target)
	if s.e.state == playing {
		s.play()
	}
}

// scheduleAdvance is a no-op for video: advancing is driven by the trim
// watch and end-of-media callbacks installed in bindSurface.
func (s *videoStrategy) scheduleAdvance() {}

func (s *videoStrategy) elapsed() float64 {
	d := s.a.PlayDuration()
	if !s.ready {
		return clamp(s.pendingOffset, 0, d)
	}
	return clamp(s.e.video.Position()-s.a.TrimStart, 0, d)
}

func (s *videoStrategy) release() {
	s.e.video.Detach()
}
