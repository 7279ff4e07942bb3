package surface

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/reelplay/reelplay-agent/internal/logging"
)

const fetchTimeout = 15 * time.Second

// Canvas is the image surface. Every bitmap is stretched onto a fixed-size
// RGBA frame, the way the browser canvas draws it.
type Canvas struct {
	width  int
	height int
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	visible bool
	frame   *image.RGBA
	source  string
	seq     uint64
}

func NewCanvas(width, height int, logger *slog.Logger) *Canvas {
	return &Canvas{
		width:  width,
		height: height,
		client: &http.Client{Timeout: fetchTimeout},
		logger: logging.OrDiscard(logger),
	}
}

func (c *Canvas) Show() {
	c.mu.Lock()
	c.visible = true
	c.mu.Unlock()
}

func (c *Canvas) Hide() {
	c.mu.Lock()
	c.visible = false
	c.mu.Unlock()
}

func (c *Canvas) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

// Load decodes url on its own goroutine. Results of superseded loads are
// dropped.
func (c *Canvas) Load(src string, done func(err error)) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	go func() {
		img, err := c.decode(src)

		c.mu.Lock()
		if seq != c.seq {
			c.mu.Unlock()
			return
		}
		if err == nil {
			c.frame = c.render(img)
			c.source = src
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("image decode failed", "source", logging.SanitizeSource(src), "error", err)
		}
		done(err)
	}()
}

// Frame returns the current bitmap and the source it came from. ok is false
// when nothing has been drawn yet or the canvas is hidden.
func (c *Canvas) Frame() (frame image.Image, source string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil || !c.visible {
		return nil, "", false
	}
	return c.frame, c.source, true
}

// EncodePNG writes the current frame as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	frame, _, ok := c.Frame()
	if !ok {
		return ErrNoSource
	}
	return png.Encode(w, frame)
}

func (c *Canvas) render(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func (c *Canvas) decode(src string) (image.Image, error) {
	r, err := c.open(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", src, err)
	}
	return img, nil
}

func (c *Canvas) open(src string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			cancel()
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			cancel()
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("fetch %s: status %d", src, resp.StatusCode)
		}
		return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
	case strings.HasPrefix(src, "file://"):
		u, err := url.Parse(src)
		if err != nil {
			return nil, err
		}
		return os.Open(u.Path)
	case strings.Contains(src, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, src)
	default:
		return os.Open(src)
	}
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
