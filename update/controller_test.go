package update

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"goaltrack/storage"
)

// memStore implements storage.Store in memory for testing.
type memStore struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
}

func newMemStore() *memStore {
	return &memStore{values: map[string]json.RawMessage{}}
}

func (s *memStore) SetConfigValue(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return nil
}

func (s *memStore) GetConfigValue(key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.values[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func (s *memStore) DeleteConfigValue(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *memStore) Close() error { return nil }

// mockManifestClient implements ManifestClient for testing.
type mockManifestClient struct {
	manifest *Manifest
	err      error
}

func (m *mockManifestClient) FetchManifest(ctx context.Context) (*Manifest, error) {
	return m.manifest, m.err
}

// mockAnnouncer records announcement calls.
type mockAnnouncer struct {
	mu        sync.Mutex
	available []string
	complete  []string
}

func (m *mockAnnouncer) AnnounceUpdateAvailable(manifest *Manifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = append(m.available, manifest.Version)
}

func (m *mockAnnouncer) AnnounceUpdateComplete(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complete = append(m.complete, version)
}

func (m *mockAnnouncer) availableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.available)
}

// mockNetwork implements NetworkMonitor for testing.
type mockNetwork struct {
	metered bool
	known   bool
}

func (m *mockNetwork) Metered() (bool, bool) { return m.metered, m.known }

func newTestController(t *testing.T, store storage.Store, client ManifestClient, announcer Announcer, network NetworkMonitor) *Controller {
	t.Helper()

	c, err := NewController(Options{
		Store:        store,
		Client:       client,
		Announcer:    announcer,
		Network:      network,
		TickInterval: time.Millisecond,
		RestartDelay: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c
}

func seedInstalled(t *testing.T, store storage.Store, version string) {
	t.Helper()
	if err := store.SetConfigValue(storage.KeyInstalledVersion, version); err != nil {
		t.Fatalf("seed installed version: %v", err)
	}
}

func TestCheckForUpdatesFindsNewerVersion(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")
	announcer := &mockAnnouncer{}
	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6", Changes: []string{"Bug fixes"}}}

	c := newTestController(t, store, client, announcer, nil)

	manifest, err := c.CheckForUpdates(context.Background())
	if err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}
	if manifest == nil || manifest.Version != "1.0.6" {
		t.Fatalf("manifest = %+v, want version 1.0.6", manifest)
	}
	if got := c.PendingManifest(); got == nil || got.Version != "1.0.6" {
		t.Errorf("PendingManifest() = %+v, want version 1.0.6", got)
	}
	if got := c.Progress().Phase; got != PhaseIdle {
		t.Errorf("Phase = %q, want %q", got, PhaseIdle)
	}
	if announcer.availableCount() != 1 {
		t.Errorf("availability announcements = %d, want 1", announcer.availableCount())
	}
}

func TestCheckForUpdatesUpToDate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.6")
	announcer := &mockAnnouncer{}
	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6"}}

	c := newTestController(t, store, client, announcer, nil)

	for i := 0; i < 2; i++ {
		manifest, err := c.CheckForUpdates(context.Background())
		if err != nil {
			t.Fatalf("CheckForUpdates() #%d error = %v", i+1, err)
		}
		if manifest != nil {
			t.Errorf("CheckForUpdates() #%d = %+v, want nil", i+1, manifest)
		}
		if c.PendingManifest() != nil {
			t.Errorf("PendingManifest() #%d non-nil", i+1)
		}
	}
	if announcer.availableCount() != 0 {
		t.Errorf("availability announcements = %d, want 0", announcer.availableCount())
	}
}

func TestCheckForUpdatesRespectsNotificationToggle(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")
	announcer := &mockAnnouncer{}
	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6"}}

	c := newTestController(t, store, client, announcer, nil)
	if err := c.SetUpdateNotifications(false); err != nil {
		t.Fatalf("SetUpdateNotifications() error = %v", err)
	}

	if _, err := c.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}
	if announcer.availableCount() != 0 {
		t.Errorf("availability announcements = %d, want 0 with toggle off", announcer.availableCount())
	}
}

func TestCheckForUpdatesFetchFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")
	client := &mockManifestClient{err: fmt.Errorf("connection refused")}

	c := newTestController(t, store, client, nil, nil)

	if _, err := c.CheckForUpdates(context.Background()); err == nil {
		t.Fatal("CheckForUpdates() error = nil, want fetch error")
	}

	progress := c.Progress()
	if progress.Phase != PhaseError {
		t.Errorf("Phase = %q, want %q", progress.Phase, PhaseError)
	}
	if progress.Error == "" {
		t.Error("Progress.Error empty, want human-readable message")
	}

	c.Retry()
	if got := c.Progress().Phase; got != PhaseIdle {
		t.Errorf("Phase after Retry() = %q, want %q", got, PhaseIdle)
	}
}

func TestDownloadAndInstallHappyPath(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")
	announcer := &mockAnnouncer{}
	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6", Size: 2048}}

	restarted := make(chan struct{})
	c, err := NewController(Options{
		Store:        store,
		Client:       client,
		Announcer:    announcer,
		TickInterval: time.Millisecond,
		RestartDelay: 5 * time.Millisecond,
		RestartFn:    func() { close(restarted) },
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	if _, err := c.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}
	if err := c.DownloadUpdate(context.Background()); err != nil {
		t.Fatalf("DownloadUpdate() error = %v", err)
	}

	if got := c.InstalledVersion(); got != "1.0.6" {
		t.Errorf("InstalledVersion() = %q, want %q", got, "1.0.6")
	}
	if c.PendingManifest() != nil {
		t.Error("PendingManifest() non-nil after install")
	}

	history := c.History()
	if len(history) != 1 {
		t.Fatalf("len(History()) = %d, want 1", len(history))
	}
	if history[0].Manifest.Version != "1.0.6" {
		t.Errorf("History()[0].Version = %q, want %q", history[0].Manifest.Version, "1.0.6")
	}

	var persisted string
	if err := store.GetConfigValue(storage.KeyInstalledVersion, &persisted); err != nil {
		t.Fatalf("GetConfigValue() error = %v", err)
	}
	if persisted != "1.0.6" {
		t.Errorf("persisted version = %q, want %q", persisted, "1.0.6")
	}

	if len(announcer.complete) != 1 || announcer.complete[0] != "1.0.6" {
		t.Errorf("complete announcements = %v, want [1.0.6]", announcer.complete)
	}

	select {
	case <-restarted:
	case <-time.After(time.Second):
		t.Fatal("restart signal never fired")
	}
}

func TestDownloadWifiOnlyOnMeteredFailsFast(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")
	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6"}}
	network := &mockNetwork{metered: true, known: true}

	c := newTestController(t, store, client, nil, network)
	if err := c.SetWifiOnlyUpdates(true); err != nil {
		t.Fatalf("SetWifiOnlyUpdates() error = %v", err)
	}

	if _, err := c.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}
	if err := c.DownloadUpdate(context.Background()); err == nil {
		t.Fatal("DownloadUpdate() error = nil, want metered-connection error")
	}

	if got := c.Progress().Phase; got != PhaseError {
		t.Errorf("Phase = %q, want %q", got, PhaseError)
	}
	if got := c.InstalledVersion(); got != "1.0.5" {
		t.Errorf("InstalledVersion() = %q, want unchanged %q", got, "1.0.5")
	}
}

func TestDownloadUnknownNetworkSignalProceeds(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")
	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6"}}
	network := &mockNetwork{known: false}

	c := newTestController(t, store, client, nil, network)
	if err := c.SetWifiOnlyUpdates(true); err != nil {
		t.Fatalf("SetWifiOnlyUpdates() error = %v", err)
	}

	if _, err := c.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}
	if err := c.DownloadUpdate(context.Background()); err != nil {
		t.Fatalf("DownloadUpdate() error = %v", err)
	}
	if got := c.InstalledVersion(); got != "1.0.6" {
		t.Errorf("InstalledVersion() = %q, want %q", got, "1.0.6")
	}
}

func TestDismissUpdate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")
	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6"}}

	c := newTestController(t, store, client, nil, nil)

	if _, err := c.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}
	if err := c.DismissUpdate(); err != nil {
		t.Fatalf("DismissUpdate() error = %v", err)
	}

	if c.PendingManifest() != nil {
		t.Error("PendingManifest() non-nil after dismiss")
	}
	if got := c.InstalledVersion(); got != "1.0.5" {
		t.Errorf("InstalledVersion() = %q, want unchanged %q", got, "1.0.5")
	}
	if len(c.History()) != 0 {
		t.Errorf("len(History()) = %d, want 0", len(c.History()))
	}
}

func TestInstallWithoutPendingManifest(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	client := &mockManifestClient{}

	c := newTestController(t, store, client, nil, nil)

	if err := c.InstallUpdate(context.Background()); err == nil {
		t.Fatal("InstallUpdate() error = nil, want no-pending error")
	}
	if err := c.DownloadUpdate(context.Background()); err == nil {
		t.Fatal("DownloadUpdate() error = nil, want no-pending error")
	}
}

func TestHistoryCappedAtTen(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")

	old := make([]HistoryEntry, 10)
	for i := range old {
		old[i] = HistoryEntry{Manifest: Manifest{Version: fmt.Sprintf("0.9.%d", 9-i)}}
	}
	if err := store.SetConfigValue(storage.KeyUpdateHistory, old); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6"}}
	c := newTestController(t, store, client, nil, nil)

	if _, err := c.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}
	if err := c.DownloadUpdate(context.Background()); err != nil {
		t.Fatalf("DownloadUpdate() error = %v", err)
	}

	history := c.History()
	if len(history) != 10 {
		t.Fatalf("len(History()) = %d, want 10", len(history))
	}
	if history[0].Manifest.Version != "1.0.6" {
		t.Errorf("newest entry = %q, want %q", history[0].Manifest.Version, "1.0.6")
	}
	if history[9].Manifest.Version != "0.9.1" {
		t.Errorf("oldest entry = %q, want %q (original tail dropped)", history[9].Manifest.Version, "0.9.1")
	}
}

func TestSettingsSurviveReload(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	client := &mockManifestClient{}

	c := newTestController(t, store, client, nil, nil)
	if err := c.SetWifiOnlyUpdates(true); err != nil {
		t.Fatalf("SetWifiOnlyUpdates() error = %v", err)
	}
	if err := c.SetAutoUpdate(false); err != nil {
		t.Fatalf("SetAutoUpdate() error = %v", err)
	}

	reloaded := newTestController(t, store, client, nil, nil)
	settings := reloaded.Settings()
	if !settings.WifiOnlyUpdates {
		t.Error("WifiOnlyUpdates = false after reload, want true")
	}
	if settings.AutoUpdate {
		t.Error("AutoUpdate = true after reload, want false")
	}
	if !settings.UpdateNotifications {
		t.Error("UpdateNotifications = false after reload, want default true")
	}
}

func TestDownloadProgressMonotonic(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	seedInstalled(t, store, "1.0.5")
	client := &mockManifestClient{manifest: &Manifest{Version: "1.0.6", Size: 1000}}

	// Long restart delay keeps the complete-phase progress observable
	// after the download returns.
	c, err := NewController(Options{
		Store:        store,
		Client:       client,
		TickInterval: time.Millisecond,
		RestartDelay: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	if _, err := c.CheckForUpdates(context.Background()); err != nil {
		t.Fatalf("CheckForUpdates() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.DownloadUpdate(context.Background()) }()

	last := -1
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("DownloadUpdate() error = %v", err)
			}
			progress := c.Progress()
			if progress.Percent != 100 {
				t.Errorf("final Percent = %d, want 100", progress.Percent)
			}
			return
		default:
			p := c.Progress()
			if p.Phase == PhaseDownloading {
				if p.Percent < last {
					t.Fatalf("progress went backwards: %d after %d", p.Percent, last)
				}
				last = p.Percent
				if p.SpeedBPS < 0 || p.ETASeconds < 0 {
					t.Fatalf("negative speed/eta: %v / %v", p.SpeedBPS, p.ETASeconds)
				}
			}
			time.Sleep(time.Millisecond)
		}
	}
}
