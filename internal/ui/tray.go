package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/reelplay/reelplay-agent/internal/catalog"
	"github.com/reelplay/reelplay-agent/internal/timeline"
)

// Player is the playback control surface the tray drives.
type Player interface {
	Play()
	Pause()
	Next()
	Previous()
	Snapshot() timeline.Status
}

// SampleSource delivers time updates. Listeners run on the engine's event
// loop and must not call back into the player.
type SampleSource interface {
	OnSample(fn func(timeline.Sample)) func()
}

type Tray struct {
	player  Player
	samples SampleSource
	logger  *slog.Logger

	items trayItems

	mu      sync.Mutex
	updates chan struct{}
	stop    func()

	onQuit func()
}

type trayItems struct {
	status   *systray.MenuItem
	play     *systray.MenuItem
	previous *systray.MenuItem
	next     *systray.MenuItem
	quit     *systray.MenuItem
}

type TrayConfig struct {
	Player  Player
	Samples SampleSource
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		player:  cfg.Player,
		samples: cfg.Samples,
		logger:  cfg.Logger,
		updates: make(chan struct{}, 1),
		onQuit:  cfg.OnQuit,
	}
}

// Run blocks on the platform UI loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Reelplay")
	systray.SetTooltip("Reelplay Agent")

	t.items.status = systray.AddMenuItem("Idle", "Current position")
	t.items.status.Disable()

	systray.AddSeparator()

	t.items.play = systray.AddMenuItem("Play", "Play or pause")
	t.items.previous = systray.AddMenuItem("Previous", "Previous asset")
	t.items.next = systray.AddMenuItem("Next", "Next asset")

	systray.AddSeparator()

	t.items.quit = systray.AddMenuItem("Quit", "Quit Reelplay Agent")

	if t.samples != nil {
		t.stop = t.samples.OnSample(func(timeline.Sample) { t.notify() })
	}
	t.refresh()

	go t.loop()

	t.logger.Info("system tray ready")
}

func (t *Tray) loop() {
	for {
		select {
		case <-t.items.play.ClickedCh:
			t.togglePlay()
		case <-t.items.previous.ClickedCh:
			t.player.Previous()
			t.refresh()
		case <-t.items.next.ClickedCh:
			t.player.Next()
			t.refresh()
		case <-t.updates:
			t.refresh()
		case <-t.items.quit.ClickedCh:
			t.logger.Info("quit requested from tray")
			if t.onQuit != nil {
				t.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

func (t *Tray) onExit() {
	if t.stop != nil {
		t.stop()
	}
	t.logger.Info("system tray exiting")
}

// notify coalesces sample bursts into at most one pending refresh.
func (t *Tray) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

func (t *Tray) togglePlay() {
	if t.player.Snapshot().Playing {
		t.player.Pause()
	} else {
		t.player.Play()
	}
	t.refresh()
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.player.Snapshot()
	t.items.status.SetTitle(StatusLine(st))
	if st.Playing {
		t.items.play.SetTitle("Pause")
	} else {
		t.items.play.SetTitle("Play")
	}
}

// StatusLine renders st as "n/N m:ss / m:ss".
func StatusLine(st timeline.Status) string {
	if st.State == timeline.StateIdle || st.Count == 0 {
		return "Idle"
	}
	line := fmt.Sprintf("%d/%d %s / %s",
		st.ActiveIndex+1, st.Count,
		catalog.FormatTime(st.Sample.CurrentTime),
		catalog.FormatTime(st.Sample.AssetDuration),
	)
	if st.Stalled {
		line += " (stalled)"
	}
	return line
}

func (t *Tray) Quit() {
	systray.Quit()
}
