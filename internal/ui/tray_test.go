package ui

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelplay/reelplay-agent/internal/timeline"
)

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		st   timeline.Status
		want string
	}{
		{"idle", timeline.Status{State: timeline.StateIdle, Count: 3}, "Idle"},
		{"empty", timeline.Status{State: timeline.StateLoaded}, "Idle"},
		{
			"playing",
			timeline.Status{
				State: timeline.StatePlaying, ActiveIndex: 1, Count: 3,
				Sample: timeline.Sample{CurrentTime: 65.4, AssetDuration: 125},
			},
			"2/3 1:05 / 2:05",
		},
		{
			"stalled",
			timeline.Status{
				State: timeline.StateLoaded, Count: 1, Stalled: true,
				Sample: timeline.Sample{AssetDuration: 5},
			},
			"1/1 0:00 / 0:05 (stalled)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusLine(tt.st))
		})
	}
}

func TestIconIsPNG(t *testing.T) {
	require.NotEmpty(t, iconBytes)
	img, err := png.Decode(bytes.NewReader(iconBytes))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
}

func TestTray_NotifyCoalesces(t *testing.T) {
	tr := NewTray(TrayConfig{})
	tr.notify()
	tr.notify()
	tr.notify()

	assert.Len(t, tr.updates, 1)
}
