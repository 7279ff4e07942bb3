package catalog

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// DefaultImageDuration is the play duration given to newly ingested images.
const DefaultImageDuration = 5.0

// MinTrimRange is the smallest trim window a video can be edited down to.
const MinTrimRange = 0.5

var (
	ErrInvalidDuration = errors.New("duration must be greater than zero")
	ErrInvalidTrim     = errors.New("invalid trim window")
	ErrWrongKind       = errors.New("operation not supported for asset kind")
	ErrUnknownKind     = errors.New("unknown asset kind")
)

// Asset is one playable unit of the playlist. Assets are values: edits
// return a new record and bump Revision.
type Asset struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
	Revision  int       `json:"revision"`

	// ImageDuration is the user-editable duration of an image in seconds.
	ImageDuration float64 `json:"image_duration,omitempty"`

	// OriginalDuration is the intrinsic video length in seconds, zero until known.
	OriginalDuration float64 `json:"original_duration,omitempty"`

	// TrimStart and TrimEnd bound the played window of a video. A nil TrimEnd
	// means the window runs to OriginalDuration.
	TrimStart float64  `json:"trim_start"`
	TrimEnd   *float64 `json:"trim_end,omitempty"`
}

func NewID() string {
	return uuid.NewString()
}

func NewImage(sourceURL, name string, duration float64) Asset {
	if duration <= 0 {
		duration = DefaultImageDuration
	}
	return Asset{
		ID:            NewID(),
		Kind:          KindImage,
		Name:          name,
		SourceURL:     sourceURL,
		CreatedAt:     time.Now(),
		ImageDuration: duration,
	}
}

func NewVideo(sourceURL, name string, originalDuration float64) Asset {
	return Asset{
		ID:               NewID(),
		Kind:             KindVideo,
		Name:             name,
		SourceURL:        sourceURL,
		CreatedAt:        time.Now(),
		OriginalDuration: math.Max(originalDuration, 0),
	}
}

// PlayDuration is the number of seconds the asset occupies in the playlist.
func (a Asset) PlayDuration() float64 {
	if a.Kind == KindImage {
		return a.ImageDuration
	}
	d := a.EffectiveTrimEnd() - a.TrimStart
	if d < 0 {
		return 0
	}
	return d
}

// EffectiveTrimEnd returns TrimEnd, or the original duration when untrimmed.
func (a Asset) EffectiveTrimEnd() float64 {
	if a.TrimEnd != nil {
		return *a.TrimEnd
	}
	return a.OriginalDuration
}

func (a Asset) IsTrimmed() bool {
	return a.TrimStart > 0 || (a.TrimEnd != nil && *a.TrimEnd < a.OriginalDuration)
}

func (a Asset) Playable() bool {
	return a.PlayDuration() > 0
}

// Fingerprint is a stable hash of the source reference.
func (a Asset) Fingerprint() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(a.SourceURL))
}

func (a Asset) Validate() error {
	switch a.Kind {
	case KindImage:
		if a.ImageDuration <= 0 {
			return ErrInvalidDuration
		}
	case KindVideo:
		if a.TrimStart < 0 {
			return fmt.Errorf("%w: start %.2f is negative", ErrInvalidTrim, a.TrimStart)
		}
		if a.TrimEnd != nil {
			if a.TrimStart >= *a.TrimEnd {
				return fmt.Errorf("%w: start %.2f is not before end %.2f", ErrInvalidTrim, a.TrimStart, *a.TrimEnd)
			}
			if a.OriginalDuration > 0 && *a.TrimEnd > a.OriginalDuration {
				return fmt.Errorf("%w: end %.2f exceeds duration %.2f", ErrInvalidTrim, *a.TrimEnd, a.OriginalDuration)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
	return nil
}

// WithImageDuration returns a copy of an image asset with a new duration.
func (a Asset) WithImageDuration(seconds float64) (Asset, error) {
	if a.Kind != KindImage {
		return a, ErrWrongKind
	}
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return a, ErrInvalidDuration
	}
	a.ImageDuration = seconds
	a.Revision++
	return a, nil
}

// WithTrim returns a copy of a video asset with a new trim window. The end is
// clamped to the original duration and a start at or past the end is pulled
// back to keep a MinTrimRange window.
func (a Asset) WithTrim(start, end float64) (Asset, error) {
	if a.Kind != KindVideo {
		return a, ErrWrongKind
	}
	if math.IsNaN(start) || math.IsNaN(end) {
		return a, ErrInvalidTrim
	}
	if a.OriginalDuration > 0 && end > a.OriginalDuration {
		end = a.OriginalDuration
	}
	if start >= end {
		start = math.Max(0, end-MinTrimRange)
	}
	a.TrimStart = start
	a.TrimEnd = &end
	if err := a.Validate(); err != nil {
		return a, err
	}
	a.Revision++
	return a, nil
}

// WithoutTrim resets the window to the whole video.
func (a Asset) WithoutTrim() (Asset, error) {
	if a.Kind != KindVideo {
		return a, ErrWrongKind
	}
	a.TrimStart = 0
	a.TrimEnd = nil
	a.Revision++
	return a, nil
}

// WithOriginalDuration fills in the intrinsic length of a video. It is a
// no-op once the length is known.
func (a Asset) WithOriginalDuration(seconds float64) (Asset, bool) {
	if a.Kind != KindVideo || a.OriginalDuration > 0 || seconds <= 0 {
		return a, false
	}
	a.OriginalDuration = seconds
	return a, true
}

// FormatTime renders seconds as m:ss.
func FormatTime(seconds float64) string {
	seconds = math.Round(seconds*1000) / 1000
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// ScheduleEntry places an asset on the continuous playlist timeline.
type ScheduleEntry struct {
	Index     int     `json:"index"`
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      Kind    `json:"kind"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
}

func BuildSchedule(assets []Asset) []ScheduleEntry {
	entries := make([]ScheduleEntry, len(assets))
	current := 0.0
	for i, a := range assets {
		start := current
		current += a.PlayDuration()
		entries[i] = ScheduleEntry{
			Index:     i,
			ID:        a.ID,
			Name:      a.Name,
			Kind:      a.Kind,
			Start:     start,
			End:       current,
			StartTime: FormatTime(start),
			EndTime:   FormatTime(current),
		}
	}
	return entries
}

func TotalDuration(assets []Asset) float64 {
	total := 0.0
	for _, a := range assets {
		total += a.PlayDuration()
	}
	return total
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
}

var ImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}

func IsImageFile(filename string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// KindForFile classifies a media file by extension.
func KindForFile(filename string) (Kind, bool) {
	switch {
	case IsVideoFile(filename):
		return KindVideo, true
	case IsImageFile(filename):
		return KindImage, true
	}
	return "", false
}

// NameFromPath strips the directory and the last extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ConfigEntry is a persisted key/value setting.
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
