// Package surface models the two rendering targets the timeline drives: a
// bitmap canvas for images and a media element for video.
package surface

import "errors"

var (
	ErrNoSource    = errors.New("no media source loaded")
	ErrUnsupported = errors.New("unsupported media source")
)

// ImageSurface displays a decoded bitmap.
type ImageSurface interface {
	Show()
	Hide()
	// Load decodes the bitmap at url and calls done once with the outcome.
	// done may run on any goroutine. A later Load supersedes an earlier one,
	// whose done is then never called.
	Load(url string, done func(err error))
}

// VideoHandlers are the media element callbacks. Any field may be nil.
// Callbacks run outside the element's own lock, on any goroutine.
type VideoHandlers struct {
	OnMetadata   func(duration float64)
	OnTimeUpdate func(position float64)
	OnEnded      func()
	OnError      func(err error)
}

// VideoSurface is a seekable media element.
type VideoSurface interface {
	Show()
	Hide()
	// Load replaces the source and handlers and starts loading metadata.
	Load(url string, h VideoHandlers)
	// Detach drops the current handlers and stops playback.
	Detach()
	Play() error
	Pause()
	Seek(position float64)
	Position() float64
}
