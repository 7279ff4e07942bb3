package playback

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeMedia(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

func TestServer_ServeFile(t *testing.T) {
	path := writeMedia(t, "clip.mp4", 1000)
	srv := NewServer(nil)

	tests := []struct {
		name       string
		method     string
		rangeHdr   string
		wantStatus int
		wantLength int
		wantRange  string
	}{
		{"whole file", http.MethodGet, "", http.StatusOK, 1000, ""},
		{"partial", http.MethodGet, "bytes=100-199", http.StatusPartialContent, 100, "bytes 100-199/1000"},
		{"open ended", http.MethodGet, "bytes=900-", http.StatusPartialContent, 100, "bytes 900-999/1000"},
		{"invalid header serves whole file", http.MethodGet, "items=0-1", http.StatusOK, 1000, ""},
		{"unsatisfiable", http.MethodGet, "bytes=5000-", http.StatusRequestedRangeNotSatisfiable, -1, "bytes */1000"},
		{"head", http.MethodHead, "", http.StatusOK, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/media", nil)
			if tt.rangeHdr != "" {
				req.Header.Set("Range", tt.rangeHdr)
			}
			rec := httptest.NewRecorder()

			if err := srv.ServeFile(rec, req, path); err != nil {
				t.Fatalf("ServeFile() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantLength >= 0 && rec.Body.Len() != tt.wantLength {
				t.Errorf("body length = %d, want %d", rec.Body.Len(), tt.wantLength)
			}
			if got := rec.Header().Get("Content-Range"); got != tt.wantRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.wantRange)
			}
		})
	}
}

func TestServer_ServeFile_RangeBytes(t *testing.T) {
	path := writeMedia(t, "frame.png", 600)
	srv := NewServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	req.Header.Set("Range", "bytes=500-502")
	rec := httptest.NewRecorder()
	if err := srv.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}

	body, _ := io.ReadAll(rec.Body)
	want := []byte{byte(500 % 251), byte(501 % 251), byte(502 % 251)}
	if string(body) != string(want) {
		t.Errorf("body = %v, want %v", body, want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
}

func TestServer_ServeFile_Missing(t *testing.T) {
	srv := NewServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/media", nil)

	if err := srv.ServeFile(rec, req, filepath.Join(t.TempDir(), "gone.mp4")); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	if err := srv.ServeFile(rec, req, t.TempDir()); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("directory status = %d, want 404", rec.Code)
	}
}

func TestServer_ServeSource(t *testing.T) {
	path := writeMedia(t, "still.png", 10)
	srv := NewServer(nil)

	tests := []struct {
		name       string
		source     string
		wantStatus int
	}{
		{"plain path", path, http.StatusOK},
		{"file url", "file://" + filepath.ToSlash(path), http.StatusOK},
		{"remote", "https://cdn.example.test/a.mp4", http.StatusFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/media", nil)
			if err := srv.ServeSource(rec, req, tt.source); err != nil {
				t.Fatalf("ServeSource() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
