package api

import (
	"time"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/pipeline"
	"github.com/reelplay/reelplay-agent/internal/thumbnail"
	"github.com/reelplay/reelplay-agent/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State         timeline.State         `json:"state"`
	Player        timeline.Status        `json:"player"`
	AssetsCount   int                    `json:"assets_count"`
	TotalDuration float64                `json:"total_duration"`
	TotalTime     string                 `json:"total_time"`
	Tools         *pipeline.Capabilities `json:"tools,omitempty"`
}

type AssetResponse struct {
	ID               string          `json:"id"`
	Index            int             `json:"index"`
	Kind             catalog.Kind    `json:"kind"`
	Name             string          `json:"name"`
	SourceURL        string          `json:"source_url"`
	Revision         int             `json:"revision"`
	Duration         float64         `json:"duration"`
	OriginalDuration float64         `json:"original_duration,omitempty"`
	TrimStart        float64         `json:"trim_start"`
	TrimEnd          *float64        `json:"trim_end,omitempty"`
	Trimmed          bool            `json:"trimmed"`
	StartTime        string          `json:"start_time"`
	EndTime          string          `json:"end_time"`
	MediaURL         string          `json:"media_url"`
	ThumbnailURL     string          `json:"thumbnail_url"`
	ThumbnailState   thumbnail.State `json:"thumbnail_state,omitempty"`
	CreatedAt        string          `json:"created_at,omitempty"`
}

type AssetsResponse struct {
	Assets        []AssetResponse `json:"assets"`
	TotalDuration float64         `json:"total_duration"`
	TotalTime     string          `json:"total_time"`
}

// AddAssetRequest adds either a local file (Path) or a remote source (URL).
// Kind is required for URLs; Duration is the display duration of an image or
// the known length of a video.
type AddAssetRequest struct {
	Path     string       `json:"path,omitempty"`
	URL      string       `json:"url,omitempty"`
	Kind     catalog.Kind `json:"kind,omitempty"`
	Name     string       `json:"name,omitempty"`
	Duration float64      `json:"duration,omitempty"`
}

type ReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type DurationRequest struct {
	Duration float64 `json:"duration"`
}

type TrimRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type LoadRequest struct {
	Index int `json:"index"`
}

type SeekRequest struct {
	Progress float64 `json:"progress"`
}

type StripResponse struct {
	Tiles       []thumbnail.Tile `json:"tiles"`
	ActiveIndex int              `json:"active_index"`
}

type PlaylistFileRequest struct {
	Path string `json:"path,omitempty"`
}

type PlaylistFileResponse struct {
	Path     string `json:"path"`
	Imported int    `json:"imported,omitempty"`
	Saved    int    `json:"saved,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func mediaURL(id string) string     { return "/assets/" + id + "/media" }
func thumbnailURL(id string) string { return "/assets/" + id + "/thumbnail" }

func AssetToResponse(a catalog.Asset, entry catalog.ScheduleEntry) AssetResponse {
	resp := AssetResponse{
		ID:               a.ID,
		Index:            entry.Index,
		Kind:             a.Kind,
		Name:             a.Name,
		SourceURL:        a.SourceURL,
		Revision:         a.Revision,
		Duration:         a.PlayDuration(),
		OriginalDuration: a.OriginalDuration,
		TrimStart:        a.TrimStart,
		TrimEnd:          a.TrimEnd,
		Trimmed:          a.IsTrimmed(),
		StartTime:        entry.StartTime,
		EndTime:          entry.EndTime,
		MediaURL:         mediaURL(a.ID),
		ThumbnailURL:     thumbnailURL(a.ID),
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return resp
}
