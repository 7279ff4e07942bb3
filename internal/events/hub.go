// Package events fans timeline samples and playlist snapshots out to
// server-sent-event clients and in-process listeners.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/r3labs/sse/v2"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/logging"
	"github.com/reelplay/reelplay-agent/internal/timeline"
)

const (
	StreamTimeline = "timeline"
	StreamPlaylist = "playlist"

	EventTimeUpdate = "timeUpdate"
	EventPlaylist   = "playlist"
)

// PlaylistUpdate is the payload of the playlist stream.
type PlaylistUpdate struct {
	Assets        []catalog.Asset         `json:"assets"`
	Schedule      []catalog.ScheduleEntry `json:"schedule"`
	TotalDuration float64                 `json:"total_duration"`
	TotalTime     string                  `json:"total_time"`
}

// NewPlaylistUpdate derives the schedule for a snapshot.
func NewPlaylistUpdate(assets []catalog.Asset) PlaylistUpdate {
	if assets == nil {
		assets = []catalog.Asset{}
	}
	total := catalog.TotalDuration(assets)
	return PlaylistUpdate{
		Assets:        assets,
		Schedule:      catalog.BuildSchedule(assets),
		TotalDuration: total,
		TotalTime:     catalog.FormatTime(total),
	}
}

// Hub implements timeline.Sink. Publish never blocks: events that do not fit
// a stream's buffer are dropped.
type Hub struct {
	server *sse.Server
	logger *slog.Logger

	closeOnce sync.Once

	mu           sync.RWMutex
	last         timeline.Sample
	hasLast      bool
	playlist     PlaylistUpdate
	listeners    map[int]func(timeline.Sample)
	nextListener int
}

func NewHub(logger *slog.Logger) *Hub {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(StreamTimeline)
	server.CreateStream(StreamPlaylist)

	return &Hub{
		server:    server,
		logger:    logging.WithComponent(logging.OrDiscard(logger), "events"),
		playlist:  NewPlaylistUpdate(nil),
		listeners: make(map[int]func(timeline.Sample)),
	}
}

// Publish records s as the latest sample and broadcasts it. Listeners run
// synchronously and must return quickly.
func (h *Hub) Publish(s timeline.Sample) {
	h.mu.Lock()
	h.last = s
	h.hasLast = true
	listeners := h.sortedListenersLocked()
	h.mu.Unlock()

	for _, l := range listeners {
		l(s)
	}
	h.send(StreamTimeline, EventTimeUpdate, s)
}

// PublishPlaylist has the shape of a playlist listener.
func (h *Hub) PublishPlaylist(assets []catalog.Asset) {
	update := NewPlaylistUpdate(assets)
	h.mu.Lock()
	h.playlist = update
	h.mu.Unlock()
	h.send(StreamPlaylist, EventPlaylist, update)
}

// Last returns the most recent sample, for polling clients.
func (h *Hub) Last() (timeline.Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.hasLast
}

func (h *Hub) Playlist() PlaylistUpdate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.playlist
}

// OnSample registers an in-process listener and returns its unsubscribe func.
func (h *Hub) OnSample(fn func(timeline.Sample)) func() {
	h.mu.Lock()
	id := h.nextListener
	h.nextListener++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// ServeHTTP streams events; the stream is chosen with ?stream=.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.server.ServeHTTP(w, r)
}

func (h *Hub) Close() {
	h.closeOnce.Do(h.server.Close)
}

func (h *Hub) send(stream, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode event", "stream", stream, "error", err)
		return
	}
	if !h.server.TryPublish(stream, &sse.Event{Event: []byte(event), Data: data}) {
		h.logger.Debug("event dropped", "stream", stream)
	}
}

func (h *Hub) sortedListenersLocked() []func(timeline.Sample) {
	ids := make([]int, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(timeline.Sample), 0, len(ids))
	for _, id := range ids {
		out = append(out, h.listeners[id])
	}
	return out
}
