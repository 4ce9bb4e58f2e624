package update

import "time"

// Phase enumerates the lifecycle phases of an update cycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseChecking    Phase = "checking"
	PhaseDownloading Phase = "downloading"
	PhaseInstalling  Phase = "installing"
	PhaseComplete    Phase = "complete"
	PhaseError       Phase = "error"
)

// Rollout expresses staged-release gating carried on the manifest. The
// controller treats the manifest as already gated for this client and does
// not filter on it.
type Rollout struct {
	Percentage int      `json:"percentage"`
	Regions    []string `json:"regions,omitempty"`
}

// Manifest describes the latest available app version as published at the
// update endpoint. Immutable once fetched; identified by Version.
type Manifest struct {
	Version     string    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
	Changes     []string  `json:"changes,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Critical    bool      `json:"critical,omitempty"`
	Rollout     *Rollout  `json:"rollout,omitempty"`
}

// Progress is the transient state of the single live update run. It is
// recreated on every run and never persisted.
type Progress struct {
	Phase           Phase   `json:"phase"`
	Percent         int     `json:"progress"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes"`
	SpeedBPS        float64 `json:"speedBytesPerSec"`
	ETASeconds      float64 `json:"etaSeconds"`
	Error           string  `json:"error,omitempty"`
}

// HistoryEntry is a completed manifest snapshot plus its install time.
type HistoryEntry struct {
	Manifest    Manifest  `json:"manifest"`
	InstalledAt time.Time `json:"installedAt"`
}

// Settings are the user-facing update toggles. Mutated only through the
// controller's setters; survive restarts.
type Settings struct {
	AutoUpdate          bool `json:"autoUpdate"`
	UpdateNotifications bool `json:"updateNotifications"`
	WifiOnlyUpdates     bool `json:"wifiOnlyUpdates"`
}

// DefaultSettings returns the toggles applied at first use.
func DefaultSettings() Settings {
	return Settings{
		AutoUpdate:          true,
		UpdateNotifications: true,
		WifiOnlyUpdates:     false,
	}
}

const maxHistoryEntries = 10
