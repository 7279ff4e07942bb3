package timeline

import "github.com/reelplay/reelplay-agent/internal/catalog"

// Sample is the time-update signal emitted to observers.
type Sample struct {
	CurrentTime   float64 `json:"currentTime"`
	AssetDuration float64 `json:"assetDuration"`
	Progress      float64 `json:"progress"`
	ActiveIndex   int     `json:"currentAssetIndex"`
}

// Sink receives samples. Publish is called with the engine lock held: it must
// not block and must not call back into the engine.
type Sink interface {
	Publish(Sample)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Sample)

func (f SinkFunc) Publish(s Sample) { f(s) }

type State string

const (
	StateIdle    State = "idle"
	StateLoaded  State = "loaded"
	StatePlaying State = "playing"
)

// Status is a point-in-time view of the engine.
type Status struct {
	State       State        `json:"state"`
	Playing     bool         `json:"playing"`
	ActiveIndex int          `json:"active_index"`
	AssetID     string       `json:"asset_id,omitempty"`
	Kind        catalog.Kind `json:"kind,omitempty"`
	Count       int          `json:"count"`
	Sample      Sample       `json:"sample"`
	Stalled     bool         `json:"stalled"`
	StallReason string       `json:"stall_reason,omitempty"`
	Generation  uint64       `json:"generation"`
}
