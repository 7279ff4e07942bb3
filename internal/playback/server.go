// Package playback serves asset media and thumbnails to browser media
// elements with byte-range support.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/reelplay/reelplay-agent/internal/logging"
)

type MediaService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
	ServeSource(w http.ResponseWriter, r *http.Request, source string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logging.WithComponent(logging.OrDiscard(logger), "playback")}
}

// ServeSource serves an asset source. Remote sources are redirected to,
// file:// URLs and plain paths are served from disk.
func (s *Server) ServeSource(w http.ResponseWriter, r *http.Request, source string) error {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		http.Redirect(w, r, source, http.StatusFound)
		return nil
	}
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return fmt.Errorf("invalid source url: %w", err)
		}
		source = u.Path
	}
	return s.ServeFile(w, r, source)
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	size := stat.Size()
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	rangeHeader := r.Header.Get("Range")
	parsedRange, err := ParseRange(rangeHeader, size)

	if err == ErrUnsatisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if err != nil && err != ErrInvalidRange {
		return err
	}

	if parsedRange == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, file)
		}
		return nil
	}

	s.logger.Debug("serving range",
		"path", logging.SanitizePath(filePath),
		"range", parsedRange.ContentRange(size),
	)

	w.Header().Set("Content-Length", fmt.Sprintf("%d", parsedRange.ContentLength()))
	w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := file.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	io.CopyN(w, file, parsedRange.ContentLength())
	return nil
}
