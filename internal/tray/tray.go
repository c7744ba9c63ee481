package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/pacekeeper/internal/analysis"
	"github.com/petems/pacekeeper/internal/app"
	"github.com/petems/pacekeeper/internal/capture"
	"github.com/petems/pacekeeper/internal/catalog"
	"github.com/petems/pacekeeper/internal/config"
	"github.com/petems/pacekeeper/internal/events"
	"github.com/petems/pacekeeper/internal/storage"
)

const recentLimit = 5

type UI struct {
	app     *app.App
	cfg     *config.Config
	live    *events.Broadcaster[analysis.Metrics]
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mStartStop *systray.MenuItem
	mLive      *systray.MenuItem
	mDevices   *systray.MenuItem
	mIsolation *systray.MenuItem
	mConsent   *systray.MenuItem
	mTest      *systray.MenuItem
	mCopy      *systray.MenuItem
	mRecent    *systray.MenuItem

	shown map[string]bool
}

func New(application *app.App, cfg *config.Config, live *events.Broadcaster[analysis.Metrics],
	log zerolog.Logger, version, commit string) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		live:    live,
		version: version,
		commit:  commit,
		log:     log,
		shown:   make(map[string]bool),
	}
}

// Run blocks on the systray loop; it must be called from the main goroutine
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	systray.SetTitle(titleFor(capture.Status{}, analysis.Metrics{}))
	systray.SetTooltip("Speaking pace coach")

	u.mStartStop = systray.AddMenuItem("Start Recording", "Record from the microphone")
	u.mLive = systray.AddMenuItem("Idle", "Live metrics")
	u.mLive.Disable()
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()
	u.mIsolation = systray.AddMenuItemCheckbox("Voice Isolation", "Filter background noise", u.cfg.Audio.VoiceIsolation)
	u.mConsent = systray.AddMenuItemCheckbox("Allow Recording", "Consent to store recordings locally", u.cfg.PrivacyConsent)
	u.mTest = systray.AddMenuItem("Test Microphone", "Measure the input level for three seconds")

	systray.AddSeparator()
	u.mCopy = systray.AddMenuItem("Copy Summary", "Copy the last session report")
	u.mRecent = systray.AddMenuItem("Recent Sessions", "")
	u.buildRecentMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About Pacekeeper")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	go u.watchState()
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			if err := u.app.ToggleRecording(context.Background()); err != nil {
				u.log.Error().Err(err).Msg("Failed to toggle recording")
			}
		case <-u.mIsolation.ClickedCh:
			u.toggleIsolation()
		case <-u.mConsent.ClickedCh:
			u.toggleConsent()
		case <-u.mTest.ClickedCh:
			go u.testMicrophone()
		case <-u.mCopy.ClickedCh:
			u.copySummary()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// watchState mirrors controller status and live analysis onto the tray
func (u *UI) watchState() {
	statuses, cancelStatus := u.app.Statuses().Subscribe()
	defer cancelStatus()
	live, cancelLive := u.live.Subscribe()
	defer cancelLive()

	var (
		st capture.Status
		m  analysis.Metrics
	)
	wasActive := false
	for {
		select {
		case s, ok := <-statuses:
			if !ok {
				return
			}
			st = s
			if active := st.State.Active(); active != wasActive {
				wasActive = active
				if active {
					u.mStartStop.SetTitle("Stop Recording")
				} else {
					u.mStartStop.SetTitle("Start Recording")
					u.buildRecentMenu()
				}
			}
		case v, ok := <-live:
			if !ok {
				return
			}
			m = v
		}
		systray.SetTitle(titleFor(st, m))
		u.mLive.SetTitle(liveLine(st, m))
	}
}

func (u *UI) buildDeviceMenu() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == u.cfg.Audio.DeviceID || (u.cfg.Audio.DeviceID == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Error().Err(err).Str("device", deviceName).Msg("Failed to change audio device")
					continue
				}
				// Uncheck all other items
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

// buildRecentMenu appends the latest catalogued sessions. systray cannot
// remove submenu items, so entries already shown are skipped.
func (u *UI) buildRecentMenu() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entries, err := u.app.Recent(ctx, recentLimit)
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to read recent sessions")
		return
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if u.recentShown(entries[i].SessionID) {
			continue
		}
		item := u.mRecent.AddSubMenuItem(recentLine(entries[i]), entries[i].FirstSegment)
		item.Disable()
	}
}

func (u *UI) recentShown(id string) bool {
	if u.shown[id] {
		return true
	}
	u.shown[id] = true
	return false
}

func (u *UI) toggleIsolation() {
	on := !u.cfg.Audio.VoiceIsolation
	if on && u.cfg.Audio.RequireIsolationAck && !u.cfg.Audio.IsolationAcknowledged {
		// Enabling from the menu counts as acknowledging the processing risk
		if err := u.app.AcknowledgeIsolation(); err != nil {
			u.log.Error().Err(err).Msg("Failed to save isolation acknowledgement")
			return
		}
	}
	if err := u.app.SetVoiceIsolation(on); err != nil {
		u.log.Error().Err(err).Msg("Failed to change voice isolation")
		return
	}
	if on {
		u.mIsolation.Check()
	} else {
		u.mIsolation.Uncheck()
	}
	u.log.Info().Bool("enabled", on).Msg("Changed voice isolation")
}

func (u *UI) toggleConsent() {
	granted := !u.cfg.PrivacyConsent
	if err := u.app.SetPrivacyConsent(granted); err != nil {
		u.log.Error().Err(err).Msg("Failed to save privacy consent")
		return
	}
	if granted {
		u.mConsent.Check()
	} else {
		u.mConsent.Uncheck()
	}
	u.log.Info().Bool("granted", granted).Msg("Changed privacy consent")
}

func (u *UI) testMicrophone() {
	u.mTest.Disable()
	defer u.mTest.Enable()

	peak, err := u.app.TestMicrophone(context.Background(), 3*time.Second)
	if err != nil {
		u.log.Error().Err(err).Msg("Microphone test failed")
		u.mTest.SetTitle("Test Microphone (failed)")
		return
	}
	u.mTest.SetTitle(fmt.Sprintf("Test Microphone (peak %.0f dB)", peak))
}

func (u *UI) copySummary() {
	text, err := u.app.SummaryText()
	if err != nil {
		u.log.Info().Err(err).Msg("Nothing to copy")
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy summary")
		return
	}
	u.log.Info().Msg("Copied session summary")
}

func (u *UI) openLogs() {
	path := u.app.LogFile()
	if path == "" {
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("Pacekeeper")
}

func (u *UI) onExit() {
	if err := u.app.Shutdown(context.Background()); err != nil {
		u.log.Error().Err(err).Msg("Shutdown error")
	}
}

// titleFor sets the tray title with microphone emoji and status indicator
func titleFor(st capture.Status, m analysis.Metrics) string {
	title := fmt.Sprintf("🎤 %s", emojiForState(st.State))
	if st.State == capture.StateRecording && m.Recording {
		title += fmt.Sprintf(" %.0f wpm", m.WordsPerMinute)
	}
	if st.Storage.Level == storage.LevelWarning {
		title += " 💾"
	}
	return title
}

// emojiForState returns the appropriate status emoji
func emojiForState(s capture.State) string {
	switch s {
	case capture.StateRecording:
		return "🔴" // Red - recording
	case capture.StateAwaitingStart:
		return "🟡" // Yellow - waiting for the first buffer
	case capture.StateError:
		return "⚪️" // White - error
	default:
		return "🟢" // Green - ready/idle
	}
}

func liveLine(st capture.Status, m analysis.Metrics) string {
	switch st.State {
	case capture.StateError:
		return fmt.Sprintf("Error: %s", st.Error)
	case capture.StateAwaitingStart:
		return "Starting…"
	case capture.StateRecording:
	default:
		return "Idle"
	}
	line := fmt.Sprintf("%s  %.0f wpm  %d pauses  %d fillers",
		m.Elapsed.Round(time.Second), m.WordsPerMinute, m.PauseCount, m.CrutchTotal)
	if m.LoadStatus != analysis.LoadOK || m.LatencyStatus != analysis.LoadOK {
		line += "  (load " + worst(m.LoadStatus, m.LatencyStatus).String() + ")"
	}
	return line
}

func worst(a, b analysis.LoadStatus) analysis.LoadStatus {
	if a > b {
		return a
	}
	return b
}

func recentLine(e catalog.Entry) string {
	line := fmt.Sprintf("%s  %s  %.0f wpm",
		e.CreatedAt.Local().Format("Jan 2 15:04"),
		(time.Duration(e.DurationSeconds * float64(time.Second))).Round(time.Second),
		e.WordsPerMinute)
	if e.Failure != "" {
		line += "  ⚠"
	}
	return line
}
