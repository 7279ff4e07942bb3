package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/playlist"
	"github.com/reelplay/reelplay-agent/internal/surface"
	"github.com/reelplay/reelplay-agent/internal/thumbnail"
	"github.com/reelplay/reelplay-agent/internal/timeline"
)

// Player is the playback control surface the API drives.
type Player interface {
	Load(index int)
	Play()
	Pause()
	Seek(progress float64)
	Next()
	Previous()
	Snapshot() timeline.Status
}

// FrameSource renders the currently displayed still.
type FrameSource interface {
	EncodePNG(w io.Writer) error
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(CORSMiddleware(cfg.CORSOrigins))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/assets", listAssetsHandler(cfg))
		r.Post("/assets", addAssetHandler(cfg))
		r.Post("/assets/reorder", reorderHandler(cfg))
		r.Delete("/assets/{id}", deleteAssetHandler(cfg))
		r.Put("/assets/{id}/duration", durationHandler(cfg))
		r.Put("/assets/{id}/trim", trimHandler(cfg))
		r.Delete("/assets/{id}/trim", resetTrimHandler(cfg))
		r.Get("/strip", stripHandler(cfg))

		r.Get("/player", playerHandler(cfg))
		r.Post("/player/load", loadHandler(cfg))
		r.Post("/player/play", playerAction(cfg, cfg.Player.Play))
		r.Post("/player/pause", playerAction(cfg, cfg.Player.Pause))
		r.Post("/player/next", playerAction(cfg, cfg.Player.Next))
		r.Post("/player/previous", playerAction(cfg, cfg.Player.Previous))
		r.Post("/player/seek", seekHandler(cfg))
		r.Get("/player/frame", frameHandler(cfg))

		r.Post("/playlist/import", importHandler(cfg))
		r.Post("/playlist/save", saveHandler(cfg))

		if cfg.Events != nil {
			r.Get("/events", cfg.Events.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())
			r.Get("/assets/{id}/media", mediaHandler(cfg))
			r.Head("/assets/{id}/media", mediaHandler(cfg))
			r.Get("/assets/{id}/thumbnail", thumbnailHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player := cfg.Player.Snapshot()
		total := cfg.Store.TotalDuration()

		resp := StatusResponse{
			State:         player.State,
			Player:        player,
			AssetsCount:   cfg.Store.Len(),
			TotalDuration: total,
			TotalTime:     catalog.FormatTime(total),
		}
		if cfg.Doctor != nil {
			resp.Tools = cfg.Doctor.Peek()
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listAssetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets := cfg.Store.Snapshot()
		schedule := catalog.BuildSchedule(assets)

		resp := AssetsResponse{Assets: make([]AssetResponse, len(assets))}
		for i, a := range assets {
			resp.Assets[i] = AssetToResponse(a, schedule[i])
			if cfg.Thumbnails != nil {
				resp.Assets[i].ThumbnailState = cfg.Thumbnails.Lookup(a).State
			}
		}
		resp.TotalDuration = catalog.TotalDuration(assets)
		resp.TotalTime = catalog.FormatTime(resp.TotalDuration)
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddAssetRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var (
			asset catalog.Asset
			err   error
		)
		switch {
		case req.Path != "" && req.URL != "":
			WriteError(w, http.StatusBadRequest, "path and url are mutually exclusive", "BAD_REQUEST")
			return
		case req.Path != "":
			if _, statErr := os.Stat(req.Path); statErr != nil {
				WriteError(w, http.StatusBadRequest, "file not found: "+req.Path, "BAD_REQUEST")
				return
			}
			asset, err = cfg.Store.AddFile(r.Context(), req.Path)
		case req.URL != "":
			asset, err = remoteAsset(req, cfg.ImageDuration)
			if err == nil {
				cfg.Store.Add(asset)
			}
		default:
			WriteError(w, http.StatusBadRequest, "path or url is required", "BAD_REQUEST")
			return
		}
		if err != nil {
			writeStoreError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, assetResponse(cfg, asset))
	}
}

func remoteAsset(req AddAssetRequest, imageDuration float64) (catalog.Asset, error) {
	kind := req.Kind
	if kind == "" {
		k, ok := catalog.KindForFile(req.URL)
		if !ok {
			return catalog.Asset{}, playlist.ErrUnsupportedFile
		}
		kind = k
	}
	name := req.Name
	if name == "" {
		name = catalog.NameFromPath(req.URL)
	}

	var asset catalog.Asset
	switch kind {
	case catalog.KindImage:
		d := req.Duration
		if d <= 0 {
			d = imageDuration
		}
		asset = catalog.NewImage(req.URL, name, d)
	case catalog.KindVideo:
		asset = catalog.NewVideo(req.URL, name, req.Duration)
	default:
		return catalog.Asset{}, catalog.ErrUnknownKind
	}
	return asset, asset.Validate()
}

func deleteAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		asset, ok := cfg.Store.Get(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			return
		}
		if err := cfg.Store.Remove(id); err != nil {
			writeStoreError(w, err)
			return
		}
		if cfg.Thumbnails != nil {
			cfg.Thumbnails.Forget(asset)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func reorderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReorderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := cfg.Store.Reorder(req.From, req.To); err != nil {
			writeStoreError(w, err)
			return
		}
		listAssetsHandler(cfg)(w, r)
	}
}

func durationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DurationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		asset, err := cfg.Store.EditDuration(chi.URLParam(r, "id"), req.Duration)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, assetResponse(cfg, asset))
	}
}

func trimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimRequest
		if !decodeBody(w, r, &req) {
			return
		}
		asset, err := cfg.Store.Trim(chi.URLParam(r, "id"), req.Start, req.End)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, assetResponse(cfg, asset))
	}
}

func resetTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset, err := cfg.Store.ResetTrim(chi.URLParam(r, "id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, assetResponse(cfg, asset))
	}
}

func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		asset, ok := cfg.Store.Get(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			return
		}
		if err := cfg.Media.ServeSource(w, r, asset.SourceURL); err != nil {
			cfg.Logger.Error("media error", "error", err, "asset_id", id)
		}
	}
}

func thumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		asset, ok := cfg.Store.Get(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			return
		}

		if cfg.Thumbnails == nil {
			WriteError(w, http.StatusNotFound, "thumbnails disabled", "THUMBNAIL_UNAVAILABLE")
			return
		}
		th, err := cfg.Thumbnails.Ensure(r.Context(), asset)
		if err != nil {
			WriteError(w, http.StatusNotFound, "thumbnail unavailable: "+err.Error(), "THUMBNAIL_UNAVAILABLE")
			return
		}
		if err := cfg.Media.ServeSource(w, r, th.Path); err != nil {
			cfg.Logger.Error("thumbnail error", "error", err, "asset_id", id)
		}
	}
}

func stripHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := activeIndex(cfg.Player.Snapshot())
		assets := cfg.Store.Snapshot()

		var tiles []thumbnail.Tile
		urlFor := func(a catalog.Asset) string { return thumbnailURL(a.ID) }
		if cfg.Thumbnails != nil {
			tiles = cfg.Thumbnails.Strip(assets, active, urlFor)
		} else {
			tiles = thumbnail.Layout(assets, active)
		}
		WriteJSON(w, http.StatusOK, StripResponse{Tiles: tiles, ActiveIndex: active})
	}
}

func playerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Player.Snapshot())
	}
}

func playerAction(cfg ServerConfig, action func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action()
		WriteJSON(w, http.StatusOK, cfg.Player.Snapshot())
	}
}

func loadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoadRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Index < 0 || req.Index >= cfg.Store.Len() {
			WriteError(w, http.StatusBadRequest, "index out of range", "BAD_REQUEST")
			return
		}
		cfg.Player.Load(req.Index)
		WriteJSON(w, http.StatusOK, cfg.Player.Snapshot())
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cfg.Player.Seek(req.Progress)
		WriteJSON(w, http.StatusOK, cfg.Player.Snapshot())
	}
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Frame == nil {
			WriteError(w, http.StatusNotFound, "no frame available", "NOT_FOUND")
			return
		}
		var buf bytes.Buffer
		if err := cfg.Frame.EncodePNG(&buf); err != nil {
			if errors.Is(err, surface.ErrNoSource) {
				WriteError(w, http.StatusNotFound, "no frame available", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

func importHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := playlistPath(w, r, cfg)
		if !ok {
			return
		}
		n, err := cfg.Store.Import(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				WriteError(w, http.StatusNotFound, "playlist file not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, PlaylistFileResponse{Path: path, Imported: n})
	}
}

func saveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := playlistPath(w, r, cfg)
		if !ok {
			return
		}
		if err := cfg.Store.Save(path); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, PlaylistFileResponse{Path: path, Saved: cfg.Store.Len()})
	}
}

func playlistPath(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (string, bool) {
	var req PlaylistFileRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return "", false
	}
	if req.Path == "" {
		req.Path = cfg.PlaylistFile
	}
	if req.Path == "" {
		WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
		return "", false
	}
	return req.Path, true
}

func assetResponse(cfg ServerConfig, a catalog.Asset) AssetResponse {
	entry := catalog.ScheduleEntry{Index: -1}
	for _, e := range cfg.Store.Schedule() {
		if e.ID == a.ID {
			entry = e
			break
		}
	}
	resp := AssetToResponse(a, entry)
	if cfg.Thumbnails != nil {
		resp.ThumbnailState = cfg.Thumbnails.Lookup(a).State
	}
	return resp
}

func activeIndex(st timeline.Status) int {
	if st.State == timeline.StateIdle {
		return -1
	}
	return st.ActiveIndex
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playlist.ErrNotFound):
		WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
	case errors.Is(err, playlist.ErrIndexOutOfRange):
		WriteError(w, http.StatusBadRequest, err.Error(), "INDEX_OUT_OF_RANGE")
	case errors.Is(err, catalog.ErrWrongKind):
		WriteError(w, http.StatusBadRequest, err.Error(), "WRONG_KIND")
	case errors.Is(err, catalog.ErrInvalidDuration),
		errors.Is(err, catalog.ErrInvalidTrim),
		errors.Is(err, catalog.ErrUnknownKind),
		errors.Is(err, playlist.ErrUnsupportedFile):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
