// Package update implements the app update cycle: manifest checks, the
// simulated download/install run, history, and the user-facing toggles.
package update

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"goaltrack/common/logger"
	"goaltrack/storage"
)

const (
	defaultCheckInterval = 24 * time.Hour
	defaultTickInterval  = 200 * time.Millisecond
	defaultDownloadTicks = 20
	defaultRestartDelay  = 3 * time.Second
	defaultDownloadSize  = 5 * 1024 * 1024
)

// Announcer surfaces update milestones to the user. Announcements use fixed
// notification tags, so repeated checks replace rather than stack banners.
type Announcer interface {
	AnnounceUpdateAvailable(manifest *Manifest)
	AnnounceUpdateComplete(version string)
}

// NetworkMonitor reports the metered state of the active connection.
// ok is false when the host exposes no network-type signal.
type NetworkMonitor interface {
	Metered() (metered bool, ok bool)
}

// Options configure the update controller.
type Options struct {
	Log           *logger.Logger
	Store         storage.Store
	Client        ManifestClient
	Announcer     Announcer
	Network       NetworkMonitor
	Clock         func() time.Time
	CheckInterval time.Duration
	TickInterval  time.Duration
	DownloadTicks int
	RestartDelay  time.Duration
	RestartFn     func()
}

// Controller drives the update state machine. Phase transitions are strictly
// sequential per instance: downloading cannot begin before a check resolves,
// and installing cannot begin before the download reaches 100%.
type Controller struct {
	log           *logger.Logger
	store         storage.Store
	client        ManifestClient
	announcer     Announcer
	network       NetworkMonitor
	clock         func() time.Time
	checkInterval time.Duration
	tickInterval  time.Duration
	downloadTicks int
	restartDelay  time.Duration
	restartFn     func()

	mu        sync.RWMutex
	progress  Progress
	pending   *Manifest
	settings  Settings
	installed string
	history   []HistoryEntry
	lastCheck time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewController creates an update controller, loading settings, the
// installed-version marker, and history from the store.
func NewController(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("manifest client is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	checkInterval := opts.CheckInterval
	if checkInterval <= 0 {
		checkInterval = defaultCheckInterval
	}
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	downloadTicks := opts.DownloadTicks
	if downloadTicks <= 0 {
		downloadTicks = defaultDownloadTicks
	}
	restartDelay := opts.RestartDelay
	if restartDelay <= 0 {
		restartDelay = defaultRestartDelay
	}

	c := &Controller{
		log:           opts.Log,
		store:         opts.Store,
		client:        opts.Client,
		announcer:     opts.Announcer,
		network:       opts.Network,
		clock:         clock,
		checkInterval: checkInterval,
		tickInterval:  tickInterval,
		downloadTicks: downloadTicks,
		restartDelay:  restartDelay,
		restartFn:     opts.RestartFn,
		settings:      DefaultSettings(),
		progress:      Progress{Phase: PhaseIdle},
		stopCh:        make(chan struct{}),
	}

	if err := opts.Store.GetConfigValue(storage.KeyUpdateSettings, &c.settings); err != nil {
		return nil, fmt.Errorf("failed to load update settings: %w", err)
	}
	if err := opts.Store.GetConfigValue(storage.KeyInstalledVersion, &c.installed); err != nil {
		return nil, fmt.Errorf("failed to load installed version: %w", err)
	}
	if err := opts.Store.GetConfigValue(storage.KeyUpdateHistory, &c.history); err != nil {
		return nil, fmt.Errorf("failed to load update history: %w", err)
	}

	return c, nil
}

// Start begins the periodic background check loop.
func (c *Controller) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.runLoop(ctx)
}

// Stop shuts down the background check loop.
func (c *Controller) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Controller) runLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		// Jitter up to 10% so a fleet of clients does not hit the
		// endpoint in lockstep.
		interval := c.checkInterval
		if j := int64(c.checkInterval / 10); j > 0 {
			interval += time.Duration(rand.Int63n(j))
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(interval):
			manifest, err := c.CheckForUpdates(ctx)
			if err != nil {
				c.logWarn("Scheduled update check failed", "error", err)
				continue
			}
			if manifest != nil && c.Settings().AutoUpdate {
				if err := c.DownloadUpdate(ctx); err != nil {
					c.logWarn("Automatic update failed", "version", manifest.Version, "error", err)
				}
			}
		}
	}
}

// CheckForUpdates fetches the manifest and compares it against the installed
// version. A newer version is held as the pending manifest and, when the
// notifications toggle is on, announced. Returns the pending manifest, or nil
// when already up to date. Fetch and parse failures are recoverable: the
// controller enters the error phase and the caller or the next scheduled
// check may retry.
func (c *Controller) CheckForUpdates(ctx context.Context) (*Manifest, error) {
	c.mu.Lock()
	if c.progress.Phase == PhaseDownloading || c.progress.Phase == PhaseInstalling {
		phase := c.progress.Phase
		c.mu.Unlock()
		return nil, fmt.Errorf("update operation already in progress: %s", phase)
	}
	c.progress = Progress{Phase: PhaseChecking}
	c.mu.Unlock()

	manifest, err := c.client.FetchManifest(ctx)
	if err != nil {
		c.setError(fmt.Sprintf("Update check failed: %v", err))
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}

	c.mu.Lock()
	c.lastCheck = c.clock()

	if CompareVersions(manifest.Version, c.installed) <= 0 {
		c.pending = nil
		c.progress = Progress{Phase: PhaseIdle}
		installed := c.installed
		c.mu.Unlock()
		c.logDebug("No update available", "installed", installed, "latest", manifest.Version)
		return nil, nil
	}

	c.pending = manifest
	c.progress = Progress{Phase: PhaseIdle}
	notify := c.settings.UpdateNotifications
	c.mu.Unlock()

	c.logInfo("Update available", "installed", c.InstalledVersion(), "target", manifest.Version)
	if notify && c.announcer != nil {
		c.announcer.AnnounceUpdateAvailable(manifest)
	}

	return manifest, nil
}

// DownloadUpdate runs the simulated download for the pending manifest and,
// on reaching 100%, installs it. With the wifi-only toggle on, a metered
// connection fails the run before any bytes move. There is no mid-download
// cancellation beyond context expiry; an interrupted run reports an error
// and never partially applies.
func (c *Controller) DownloadUpdate(ctx context.Context) error {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return fmt.Errorf("no pending update to download")
	}
	if c.progress.Phase != PhaseIdle {
		phase := c.progress.Phase
		c.mu.Unlock()
		return fmt.Errorf("cannot download while %s", phase)
	}
	manifest := c.pending
	wifiOnly := c.settings.WifiOnlyUpdates
	c.mu.Unlock()

	if wifiOnly && c.network != nil {
		if metered, ok := c.network.Metered(); ok && metered {
			msg := "Download blocked: wifi-only updates enabled on a metered connection"
			c.setError(msg)
			return fmt.Errorf("connection is metered and wifi-only updates are enabled")
		}
	}

	total := manifest.Size
	if total <= 0 {
		total = defaultDownloadSize
	}

	c.mu.Lock()
	c.progress = Progress{Phase: PhaseDownloading, TotalBytes: total}
	c.mu.Unlock()

	start := c.clock()
	var downloaded int64

	for tick := 1; tick <= c.downloadTicks; tick++ {
		select {
		case <-ctx.Done():
			c.setError("Download interrupted")
			return ctx.Err()
		case <-c.stopCh:
			c.setError("Download interrupted")
			return fmt.Errorf("controller stopped during download")
		case <-time.After(c.tickInterval):
		}

		downloaded = total * int64(tick) / int64(c.downloadTicks)
		elapsed := c.clock().Sub(start).Seconds()

		var speed, eta float64
		if elapsed > 0 {
			speed = float64(downloaded) / elapsed
		}
		if speed > 0 {
			eta = float64(total-downloaded) / speed
		}

		c.mu.Lock()
		c.progress.DownloadedBytes = downloaded
		c.progress.Percent = int(downloaded * 100 / total)
		c.progress.SpeedBPS = speed
		c.progress.ETASeconds = eta
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.progress.Phase = PhaseInstalling
	c.mu.Unlock()

	return c.InstallUpdate(ctx)
}

// InstallUpdate applies the pending manifest: the installed-version marker
// swaps to the manifest's version, the manifest moves into history, and the
// host is signalled to restart after a short grace delay. The marker is only
// ever written here, on full success.
func (c *Controller) InstallUpdate(ctx context.Context) error {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return fmt.Errorf("no pending update to install")
	}
	manifest := c.pending
	c.progress.Phase = PhaseInstalling
	c.progress.Percent = 100
	c.mu.Unlock()

	entry := HistoryEntry{Manifest: *manifest, InstalledAt: c.clock()}

	if err := c.store.SetConfigValue(storage.KeyInstalledVersion, manifest.Version); err != nil {
		c.setError(fmt.Sprintf("Install failed: %v", err))
		return fmt.Errorf("failed to persist installed version: %w", err)
	}

	c.mu.Lock()
	c.installed = manifest.Version
	c.history = append([]HistoryEntry{entry}, c.history...)
	if len(c.history) > maxHistoryEntries {
		c.history = c.history[:maxHistoryEntries]
	}
	history := make([]HistoryEntry, len(c.history))
	copy(history, c.history)
	c.pending = nil
	c.progress = Progress{Phase: PhaseComplete, Percent: 100}
	c.mu.Unlock()

	if err := c.store.SetConfigValue(storage.KeyUpdateHistory, history); err != nil {
		c.logWarn("Failed to persist update history", "error", err)
	}
	if err := c.store.SetConfigValue(storage.KeyWorkerVersion, manifest.Version); err != nil {
		c.logWarn("Failed to persist worker version marker", "error", err)
	}

	c.logInfo("Update installed", "version", manifest.Version)
	if c.announcer != nil {
		c.announcer.AnnounceUpdateComplete(manifest.Version)
	}

	time.AfterFunc(c.restartDelay, func() {
		c.mu.Lock()
		if c.progress.Phase == PhaseComplete {
			c.progress = Progress{Phase: PhaseIdle}
		}
		c.mu.Unlock()
		if c.restartFn != nil {
			c.restartFn()
		}
	})

	return nil
}

// DismissUpdate discards the pending manifest without installing. History
// and the installed-version marker are untouched. A run already downloading
// or installing cannot be dismissed.
func (c *Controller) DismissUpdate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.progress.Phase == PhaseDownloading || c.progress.Phase == PhaseInstalling {
		return fmt.Errorf("cannot dismiss while %s", c.progress.Phase)
	}
	c.pending = nil
	return nil
}

// Retry clears the error phase so a new check or download may begin.
func (c *Controller) Retry() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.progress.Phase == PhaseError {
		c.progress = Progress{Phase: PhaseIdle}
	}
}

// SetAutoUpdate persists the automatic-download toggle.
func (c *Controller) SetAutoUpdate(enabled bool) error {
	return c.mutateSettings(func(s *Settings) { s.AutoUpdate = enabled })
}

// SetUpdateNotifications persists the availability-announcement toggle.
func (c *Controller) SetUpdateNotifications(enabled bool) error {
	return c.mutateSettings(func(s *Settings) { s.UpdateNotifications = enabled })
}

// SetWifiOnlyUpdates persists the metered-connection guard toggle.
func (c *Controller) SetWifiOnlyUpdates(enabled bool) error {
	return c.mutateSettings(func(s *Settings) { s.WifiOnlyUpdates = enabled })
}

func (c *Controller) mutateSettings(mutate func(*Settings)) error {
	c.mu.Lock()
	mutate(&c.settings)
	snapshot := c.settings
	c.mu.Unlock()

	if err := c.store.SetConfigValue(storage.KeyUpdateSettings, snapshot); err != nil {
		return fmt.Errorf("failed to persist update settings: %w", err)
	}
	return nil
}

// Progress returns a snapshot of the live run state.
func (c *Controller) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// PendingManifest returns the held manifest, or nil when none is pending.
func (c *Controller) PendingManifest() *Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

// Settings returns the current toggle values.
func (c *Controller) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// InstalledVersion returns the installed-version marker.
func (c *Controller) InstalledVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.installed
}

// History returns the install history, newest first.
func (c *Controller) History() []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.progress = Progress{Phase: PhaseError, Error: msg}
	c.mu.Unlock()
	c.logWarn("Update run failed", "reason", msg)
}

func (c *Controller) logInfo(msg string, args ...interface{}) {
	if c.log != nil {
		c.log.Info(msg, args...)
	}
}

func (c *Controller) logDebug(msg string, args ...interface{}) {
	if c.log != nil {
		c.log.Debug(msg, args...)
	}
}

func (c *Controller) logWarn(msg string, args ...interface{}) {
	if c.log != nil {
		c.log.Warn(msg, args...)
	}
}
