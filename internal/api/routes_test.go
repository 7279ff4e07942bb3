package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/pipeline"
	"github.com/reelplay/reelplay-agent/internal/playlist"
	"github.com/reelplay/reelplay-agent/internal/surface"
	"github.com/reelplay/reelplay-agent/internal/thumbnail"
	"github.com/reelplay/reelplay-agent/internal/timeline"
)

const testToken = "test-token-0123456789"

type fakeRepo struct {
	config map[string]string
}

func (f *fakeRepo) ListAssets(ctx context.Context) ([]catalog.Asset, error) { return nil, nil }
func (f *fakeRepo) GetAsset(ctx context.Context, id string) (*catalog.Asset, error) {
	return nil, nil
}
func (f *fakeRepo) ReplaceAssets(ctx context.Context, assets []catalog.Asset) error { return nil }
func (f *fakeRepo) CountAssets(ctx context.Context) (int, error)                    { return 0, nil }

func (f *fakeRepo) GetConfig(ctx context.Context, key string) (string, error) {
	return f.config[key], nil
}

func (f *fakeRepo) SetConfig(ctx context.Context, key, value string) error {
	f.config[key] = value
	return nil
}

type fakePlayer struct {
	calls  []string
	status timeline.Status
}

func (p *fakePlayer) Load(index int) {
	p.calls = append(p.calls, "load")
	p.status.ActiveIndex = index
	p.status.State = timeline.StateLoaded
}
func (p *fakePlayer) Play() {
	p.calls = append(p.calls, "play")
	p.status.State = timeline.StatePlaying
	p.status.Playing = true
}
func (p *fakePlayer) Pause() {
	p.calls = append(p.calls, "pause")
	p.status.State = timeline.StateLoaded
	p.status.Playing = false
}
func (p *fakePlayer) Seek(progress float64) {
	p.calls = append(p.calls, "seek")
	p.status.Sample.Progress = progress
}
func (p *fakePlayer) Next()                     { p.calls = append(p.calls, "next") }
func (p *fakePlayer) Previous()                 { p.calls = append(p.calls, "previous") }
func (p *fakePlayer) Snapshot() timeline.Status { return p.status }

type fakeFrame struct {
	err error
}

func (f *fakeFrame) EncodePNG(w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("\x89PNG"))
	return err
}

type fakeMedia struct {
	served []string
}

func (f *fakeMedia) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	return f.ServeSource(w, r, path)
}

func (f *fakeMedia) ServeSource(w http.ResponseWriter, r *http.Request, source string) error {
	f.served = append(f.served, source)
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	return nil
}

type fakeFFmpeg struct{}

func (fakeFFmpeg) Probe(ctx context.Context, path string) (*pipeline.ProbeResult, error) {
	return &pipeline.ProbeResult{Duration: 12}, nil
}

func (fakeFFmpeg) GenerateThumbnail(ctx context.Context, in, out string, offset float64) error {
	return os.WriteFile(out, []byte("png"), 0644)
}

type testEnv struct {
	cfg    ServerConfig
	store  *playlist.Store
	player *fakePlayer
	media  *fakeMedia
	router http.Handler
}

func newTestEnv(t *testing.T, assets ...catalog.Asset) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := playlist.NewStore(nil, fakeFFmpeg{}, 5, logger)
	if err := store.Replace(assets); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	env := &testEnv{
		store:  store,
		player: &fakePlayer{status: timeline.Status{State: timeline.StateIdle}},
		media:  &fakeMedia{},
	}
	env.cfg = ServerConfig{
		Version:       "test",
		Store:         store,
		Player:        env.player,
		Frame:         &fakeFrame{},
		Thumbnails:    thumbnail.NewGenerator(fakeFFmpeg{}, t.TempDir(), logger),
		Media:         env.media,
		Repository:    &fakeRepo{config: map[string]string{AuthTokenKey: testToken}},
		PlaylistFile:  filepath.Join(t.TempDir(), "playlist.yaml"),
		ImageDuration: 5,
		Logger:        logger,
		StartTime:     time.Now(),
		DeviceID:      "test-device",
	}
	env.router = NewRouter(env.cfg)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return body
}

func imageAsset(id string, seconds float64) catalog.Asset {
	return catalog.Asset{ID: id, Kind: catalog.KindImage, Name: id, SourceURL: "/pics/" + id + ".png", ImageDuration: seconds}
}

func videoAsset(id string, original float64) catalog.Asset {
	return catalog.Asset{ID: id, Kind: catalog.KindVideo, Name: id, SourceURL: "/videos/" + id + ".mp4", OriginalDuration: original}
}

func TestHealthHandler_Public(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["device_id"] != "test-device" {
		t.Errorf("device_id = %v, want test-device", body["device_id"])
	}
}

func TestStatusHandler(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5), videoAsset("b", 70))

	rr := env.do(t, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	body := decodeJSONBody(t, rr)
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if body["assets_count"] != float64(2) {
		t.Errorf("assets_count = %v, want 2", body["assets_count"])
	}
	if body["total_time"] != "1:15" {
		t.Errorf("total_time = %v, want 1:15", body["total_time"])
	}
	if _, ok := body["tools"]; ok {
		t.Error("tools should be omitted without a doctor")
	}
}

func TestStatusHandler_DoctorNotProbed(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Doctor = pipeline.NewDoctor("ffmpeg", "ffprobe", nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	statusHandler(env.cfg).ServeHTTP(rr, req)

	body := decodeJSONBody(t, rr)
	if _, ok := body["tools"]; ok {
		t.Error("tools should be omitted before the first probe")
	}
}

func TestListAssetsHandler(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5), videoAsset("b", 10))

	rr := env.do(t, http.MethodGet, "/assets", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp AssetsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(resp.Assets))
	}
	second := resp.Assets[1]
	if second.StartTime != "0:05" || second.EndTime != "0:15" {
		t.Errorf("schedule = %s-%s, want 0:05-0:15", second.StartTime, second.EndTime)
	}
	if second.MediaURL != "/assets/b/media" {
		t.Errorf("media_url = %q", second.MediaURL)
	}
	if resp.Assets[0].ThumbnailState != thumbnail.StateReady {
		t.Errorf("image thumbnail state = %q, want ready", resp.Assets[0].ThumbnailState)
	}
	if resp.TotalDuration != 15 {
		t.Errorf("total_duration = %v, want 15", resp.TotalDuration)
	}
}

func TestAddAssetHandler(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(clip, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantKind   catalog.Kind
		wantDur    float64
	}{
		{"local video is probed", AddAssetRequest{Path: clip}, http.StatusCreated, catalog.KindVideo, 12},
		{"remote image defaults duration", AddAssetRequest{URL: "https://cdn.test/a.jpg"}, http.StatusCreated, catalog.KindImage, 5},
		{"remote image with duration", AddAssetRequest{URL: "https://cdn.test/b", Kind: catalog.KindImage, Duration: 8}, http.StatusCreated, catalog.KindImage, 8},
		{"remote video", AddAssetRequest{URL: "https://cdn.test/c.webm", Duration: 30}, http.StatusCreated, catalog.KindVideo, 30},
		{"missing file", AddAssetRequest{Path: filepath.Join(dir, "gone.mp4")}, http.StatusBadRequest, "", 0},
		{"unsupported file", AddAssetRequest{Path: notes}, http.StatusBadRequest, "", 0},
		{"unknown remote kind", AddAssetRequest{URL: "https://cdn.test/stream"}, http.StatusBadRequest, "", 0},
		{"both sources", AddAssetRequest{Path: clip, URL: "https://cdn.test/a.jpg"}, http.StatusBadRequest, "", 0},
		{"empty", AddAssetRequest{}, http.StatusBadRequest, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(t, http.MethodPost, "/assets", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				if env.store.Len() != 0 {
					t.Errorf("store length = %d, want 0", env.store.Len())
				}
				return
			}

			var resp AssetResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", resp.Kind, tt.wantKind)
			}
			if resp.Duration != tt.wantDur {
				t.Errorf("duration = %v, want %v", resp.Duration, tt.wantDur)
			}
			if resp.Index != 0 {
				t.Errorf("index = %d, want 0", resp.Index)
			}
		})
	}
}

func TestAddAssetHandler_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/assets", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestDeleteAssetHandler(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5), imageAsset("b", 5))

	if rr := env.do(t, http.MethodDelete, "/assets/a", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if env.store.IndexOf("a") != -1 {
		t.Error("asset a should be removed")
	}
	if rr := env.do(t, http.MethodDelete, "/assets/a", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestReorderHandler(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5), imageAsset("b", 5), imageAsset("c", 5))

	rr := env.do(t, http.MethodPost, "/assets/reorder", ReorderRequest{From: 0, To: 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp AssetsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var ids []string
	for _, a := range resp.Assets {
		ids = append(ids, a.ID)
	}
	if strings.Join(ids, ",") != "b,c,a" {
		t.Errorf("order = %v, want b,c,a", ids)
	}

	rr = env.do(t, http.MethodPost, "/assets/reorder", ReorderRequest{From: 0, To: 9})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("out of range status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestEditHandlers(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"image duration", http.MethodPut, "/assets/img/duration", DurationRequest{Duration: 9}, http.StatusOK, ""},
		{"zero duration", http.MethodPut, "/assets/img/duration", DurationRequest{Duration: 0}, http.StatusBadRequest, "BAD_REQUEST"},
		{"duration on video", http.MethodPut, "/assets/vid/duration", DurationRequest{Duration: 3}, http.StatusBadRequest, "WRONG_KIND"},
		{"duration missing asset", http.MethodPut, "/assets/nope/duration", DurationRequest{Duration: 3}, http.StatusNotFound, "NOT_FOUND"},
		{"trim video", http.MethodPut, "/assets/vid/trim", TrimRequest{Start: 2, End: 7}, http.StatusOK, ""},
		{"trim image", http.MethodPut, "/assets/img/trim", TrimRequest{Start: 2, End: 7}, http.StatusBadRequest, "WRONG_KIND"},
		{"reset trim", http.MethodDelete, "/assets/vid/trim", nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, imageAsset("img", 5), videoAsset("vid", 10))
			rr := env.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantCode != "" {
				body := decodeJSONBody(t, rr)
				if body["code"] != tt.wantCode {
					t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
				}
			}
		})
	}
}

func TestTrimHandler_UpdatesDuration(t *testing.T) {
	env := newTestEnv(t, videoAsset("vid", 10))

	rr := env.do(t, http.MethodPut, "/assets/vid/trim", TrimRequest{Start: 2, End: 7})
	var resp AssetResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Duration != 5 || !resp.Trimmed || resp.Revision != 1 {
		t.Errorf("trimmed asset = %+v", resp)
	}
}

func TestPlayerHandlers(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5), imageAsset("b", 5))

	steps := []struct {
		method string
		path   string
		body   any
		want   string
	}{
		{http.MethodPost, "/player/load", LoadRequest{Index: 1}, "load"},
		{http.MethodPost, "/player/play", nil, "play"},
		{http.MethodPost, "/player/seek", SeekRequest{Progress: 40}, "seek"},
		{http.MethodPost, "/player/pause", nil, "pause"},
		{http.MethodPost, "/player/next", nil, "next"},
		{http.MethodPost, "/player/previous", nil, "previous"},
	}
	for _, s := range steps {
		rr := env.do(t, s.method, s.path, s.body)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", s.path, rr.Code, http.StatusOK)
		}
	}

	want := []string{"load", "play", "seek", "pause", "next", "previous"}
	if strings.Join(env.player.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", env.player.calls, want)
	}

	rr := env.do(t, http.MethodGet, "/player", nil)
	body := decodeJSONBody(t, rr)
	if body["active_index"] != float64(1) {
		t.Errorf("active_index = %v, want 1", body["active_index"])
	}
}

func TestLoadHandler_OutOfRange(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5))

	rr := env.do(t, http.MethodPost, "/player/load", LoadRequest{Index: 3})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if len(env.player.calls) != 0 {
		t.Errorf("player should not be called, got %v", env.player.calls)
	}
}

func TestFrameHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/player/frame", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}

	env.cfg.Frame = &fakeFrame{err: surface.ErrNoSource}
	rr = httptest.NewRecorder()
	frameHandler(env.cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/player/frame", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("hidden canvas status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStripHandler(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5), imageAsset("b", 15))
	env.player.status = timeline.Status{State: timeline.StatePlaying, ActiveIndex: 1}

	rr := env.do(t, http.MethodGet, "/strip", nil)
	var resp StripResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ActiveIndex != 1 || len(resp.Tiles) != 2 {
		t.Fatalf("strip = %+v", resp)
	}
	if resp.Tiles[0].WidthPercent != 25 || !resp.Tiles[1].Active {
		t.Errorf("tiles = %+v", resp.Tiles)
	}
	if resp.Tiles[1].URL != "/assets/b/thumbnail" {
		t.Errorf("url = %q", resp.Tiles[1].URL)
	}
}

func TestStripHandler_IdleHasNoActiveTile(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5))

	rr := env.do(t, http.MethodGet, "/strip", nil)
	var resp StripResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ActiveIndex != -1 || resp.Tiles[0].Active {
		t.Errorf("strip = %+v", resp)
	}
}

func TestMediaAndThumbnailHandlers(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5), videoAsset("v", 10))
	server := httptest.NewServer(env.router)
	defer server.Close()

	get := func(path string) int {
		req, _ := http.NewRequest(http.MethodGet, server.URL+path, nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request error: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get("/assets/v/media"); code != http.StatusOK {
		t.Fatalf("media status = %d, want %d", code, http.StatusOK)
	}
	if code := get("/assets/a/thumbnail"); code != http.StatusOK {
		t.Fatalf("image thumbnail status = %d, want %d", code, http.StatusOK)
	}
	if code := get("/assets/v/thumbnail"); code != http.StatusOK {
		t.Fatalf("video thumbnail status = %d, want %d", code, http.StatusOK)
	}
	if code := get("/assets/missing/media"); code != http.StatusNotFound {
		t.Fatalf("missing media status = %d, want %d", code, http.StatusNotFound)
	}

	if len(env.media.served) != 3 {
		t.Fatalf("served = %v", env.media.served)
	}
	if env.media.served[0] != "/videos/v.mp4" || env.media.served[1] != "/pics/a.png" {
		t.Errorf("served = %v", env.media.served)
	}
	if !strings.HasSuffix(env.media.served[2], ".png") {
		t.Errorf("video thumbnail served from %q", env.media.served[2])
	}
}

func TestPlaylistImportSave(t *testing.T) {
	env := newTestEnv(t, imageAsset("a", 5), videoAsset("v", 10))

	rr := env.do(t, http.MethodPost, "/playlist/save", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("save status = %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	if err := env.store.Replace(nil); err != nil {
		t.Fatal(err)
	}

	rr = env.do(t, http.MethodPost, "/playlist/import", PlaylistFileRequest{Path: env.cfg.PlaylistFile})
	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["imported"] != float64(2) {
		t.Errorf("imported = %v, want 2", body["imported"])
	}
	if env.store.Len() != 2 {
		t.Errorf("store length = %d, want 2", env.store.Len())
	}

	rr = env.do(t, http.MethodPost, "/playlist/import", PlaylistFileRequest{Path: filepath.Join(t.TempDir(), "none.yaml")})
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
