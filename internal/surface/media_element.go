package surface

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reelplay/reelplay-agent/internal/clock"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/pipeline"
)

// TimeUpdateInterval is how often a playing element reports its position.
const TimeUpdateInterval = 250 * time.Millisecond

const probeTimeout = 30 * time.Second

// MediaElement is the video surface. It models a browser media element on
// the engine clock: metadata comes from a prober, playback advances with the
// clock and ends at the intrinsic duration.
type MediaElement struct {
	clk    clock.Clock
	prober pipeline.Prober
	logger *slog.Logger

	mu       sync.Mutex
	visible  bool
	src      string
	handlers VideoHandlers
	seq      uint64
	ready    bool
	duration float64
	playing  bool
	position float64
	anchor   time.Time
	ticker   clock.Timer
}

func NewMediaElement(clk clock.Clock, prober pipeline.Prober, logger *slog.Logger) *MediaElement {
	return &MediaElement{
		clk:    clk,
		prober: prober,
		logger: logging.OrDiscard(logger),
	}
}

func (m *MediaElement) Show() {
	m.mu.Lock()
	m.visible = true
	m.mu.Unlock()
}

func (m *MediaElement) Hide() {
	m.mu.Lock()
	m.visible = false
	m.mu.Unlock()
}

func (m *MediaElement) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// Source returns the loaded media reference.
func (m *MediaElement) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src
}

// Duration returns the intrinsic length, zero before metadata.
func (m *MediaElement) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *MediaElement) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Load resets the element to url and probes its metadata asynchronously.
func (m *MediaElement) Load(url string, h VideoHandlers) {
	m.mu.Lock()
	m.stopTickerLocked()
	m.seq++
	seq := m.seq
	m.src = url
	m.handlers = h
	m.ready = false
	m.duration = 0
	m.playing = false
	m.position = 0
	m.mu.Unlock()

	m.clk.AfterFunc(0, func() { m.probe(seq, url) })
}

func (m *MediaElement) probe(seq uint64, url string) {
	var (
		res *pipeline.ProbeResult
		err error
	)
	if m.prober == nil {
		err = pipeline.ErrUnavailable
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		res, err = m.prober.Probe(ctx, url)
		cancel()
	}
	if err == nil && res.Duration <= 0 {
		err = ErrUnsupported
	}

	m.mu.Lock()
	if seq != m.seq {
		m.mu.Unlock()
		return
	}
	h := m.handlers
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("media metadata failed", "source", logging.SanitizeSource(url), "error", err)
		if h.OnError != nil {
			h.OnError(err)
		}
		return
	}
	m.ready = true
	m.duration = res.Duration
	if m.position > m.duration {
		m.position = m.duration
	}
	duration := m.duration
	m.mu.Unlock()

	if h.OnMetadata != nil {
		h.OnMetadata(duration)
	}

	m.mu.Lock()
	if seq == m.seq && m.playing && m.ticker == nil {
		m.startLocked(seq)
	}
	m.mu.Unlock()
}

// Detach drops the handlers and stops playback. Pending metadata is ignored.
func (m *MediaElement) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = m.positionLocked()
	m.stopTickerLocked()
	m.seq++
	m.handlers = VideoHandlers{}
	m.playing = false
}

// Play starts or resumes playback. Before metadata arrives the request is
// remembered and honoured once the element is ready.
func (m *MediaElement) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src == "" {
		return ErrNoSource
	}
	if m.playing {
		return nil
	}
	m.playing = true
	if m.ready {
		if m.position >= m.duration {
			m.position = 0
		}
		m.startLocked(m.seq)
	}
	return nil
}

func (m *MediaElement) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = m.positionLocked()
	m.playing = false
	m.stopTickerLocked()
}

// Seek moves the playhead, clamped to the known duration.
func (m *MediaElement) Seek(position float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if position < 0 {
		position = 0
	}
	if m.ready && position > m.duration {
		position = m.duration
	}
	m.position = position
	m.anchor = m.clk.Now()
}

func (m *MediaElement) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionLocked()
}

func (m *MediaElement) positionLocked() float64 {
	if !m.playing || !m.ready || m.ticker == nil {
		return m.position
	}
	pos := m.position + m.clk.Now().Sub(m.anchor).Seconds()
	if pos > m.duration {
		pos = m.duration
	}
	return pos
}

func (m *MediaElement) startLocked(seq uint64) {
	m.anchor = m.clk.Now()
	m.armLocked(seq)
}

func (m *MediaElement) armLocked(seq uint64) {
	m.ticker = m.clk.AfterFunc(TimeUpdateInterval, func() { m.tick(seq) })
}

func (m *MediaElement) tick(seq uint64) {
	m.mu.Lock()
	if seq != m.seq || !m.playing {
		m.mu.Unlock()
		return
	}
	pos := m.positionLocked()
	// Fold elapsed time into position so the next anchor starts fresh.
	m.position = pos
	m.anchor = m.clk.Now()

	ended := pos >= m.duration
	if ended {
		m.playing = false
		m.ticker = nil
	} else {
		m.armLocked(seq)
	}
	h := m.handlers
	m.mu.Unlock()

	if h.OnTimeUpdate != nil {
		h.OnTimeUpdate(pos)
	}
	if ended && h.OnEnded != nil {
		// A time-update handler may have detached the element.
		m.mu.Lock()
		current := seq == m.seq
		m.mu.Unlock()
		if current {
			h.OnEnded()
		}
	}
}

func (m *MediaElement) stopTickerLocked() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}
