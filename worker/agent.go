// Package worker implements the background agent: a process independent of
// any foreground page that renders push notifications, routes notification
// clicks back into the app, and answers the app's command channel.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goaltrack/common/logger"
	"goaltrack/notify"
	"goaltrack/storage"
	"goaltrack/update"
)

// State enumerates the agent lifecycle.
type State string

const (
	StateInstalling State = "installing"
	StateActivated  State = "activated"
)

// Sync tags dispatched by the host's background-sync machinery.
const (
	SyncTagReminder    = "daily-reminder"
	SyncTagUpdateCheck = "update-check"
)

// Renderer displays a notification from the worker context, independent of
// any page lifecycle.
type Renderer interface {
	Render(payload notify.Payload) error
}

// UpdateChecker triggers the same update check the foreground uses. The
// worker never duplicates that logic, it only provides the trigger.
type UpdateChecker interface {
	CheckForUpdates(ctx context.Context) (*update.Manifest, error)
}

// ReminderSender fires reminder and test notifications on demand.
type ReminderSender interface {
	SendReminderNow()
	SendTestNotification()
	SetupDailyReminders(timeOfDay string) error
}

// Window is an open app page the worker can focus and message.
type Window interface {
	Focus() error
	PostMessage(msgType string, data map[string]interface{}) error
}

// WindowRegistry abstracts the set of open app windows.
type WindowRegistry interface {
	// FindByOrigin returns an open window matching the app origin.
	FindByOrigin(origin string) (Window, bool)
	// OpenWindow opens a new window at the given URL.
	OpenWindow(url string) error
}

// SyncRegistrar registers background and periodic sync triggers with the
// host. Both registrations are best-effort: most wrapped containers expose
// neither.
type SyncRegistrar interface {
	RegisterSync(tag string) error
	RegisterPeriodicSync(tag string, interval time.Duration) error
}

// Options configure the background agent.
type Options struct {
	Log       *logger.Logger
	Store     storage.Store
	Renderer  Renderer
	Updates   UpdateChecker
	Reminders ReminderSender
	Windows   WindowRegistry
	Sync      SyncRegistrar

	Origin   string
	Defaults notify.Defaults
}

// Status is a snapshot of the agent for diagnostics.
type Status struct {
	State         State     `json:"state"`
	Version       string    `json:"version,omitempty"`
	ActivatedAt   time.Time `json:"activatedAt,omitempty"`
	LastEventAt   time.Time `json:"lastEventAt,omitempty"`
	EventsHandled int64     `json:"eventsHandled"`
	PeriodicSync  bool      `json:"periodicSync"`
}

// Agent is the background worker. All events funnel through Dispatch, which
// makes ordering and error containment explicit: no event handler ever
// panics or errors past the agent boundary.
type Agent struct {
	log       *logger.Logger
	store     storage.Store
	renderer  Renderer
	updates   UpdateChecker
	reminders ReminderSender
	windows   WindowRegistry
	sync      SyncRegistrar
	origin    string
	defaults  notify.Defaults

	mu           sync.RWMutex
	state        State
	activatedAt  time.Time
	lastEvent    time.Time
	handled      int64
	periodicSync bool
}

// NewAgent creates a background agent.
func NewAgent(opts Options) (*Agent, error) {
	if opts.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}

	defaults := opts.Defaults
	if defaults.AppName == "" {
		defaults.AppName = "GoalTrack"
	}
	if defaults.Body == "" {
		defaults.Body = "You have a new notification"
	}

	return &Agent{
		log:       opts.Log,
		store:     opts.Store,
		renderer:  opts.Renderer,
		updates:   opts.Updates,
		reminders: opts.Reminders,
		windows:   opts.Windows,
		sync:      opts.Sync,
		origin:    opts.Origin,
		defaults:  defaults,
		state:     StateInstalling,
	}, nil
}

// SetWindows attaches the window registry after construction; the channel
// server that backs it needs the agent to exist first.
func (a *Agent) SetWindows(windows WindowRegistry) {
	a.mu.Lock()
	a.windows = windows
	a.mu.Unlock()
}

// Activate moves the agent from installing to activated. The agent claims
// readiness immediately instead of waiting for existing pages to close,
// trading strict page-version isolation for fast update availability. It
// then best-effort registers background triggers.
func (a *Agent) Activate(ctx context.Context) {
	a.mu.Lock()
	a.state = StateActivated
	a.activatedAt = time.Now().UTC()
	a.mu.Unlock()

	a.logInfo("Worker agent activated")
	a.registerBackgroundTriggers()
}

func (a *Agent) registerBackgroundTriggers() {
	if a.sync == nil {
		a.logDebug("Host exposes no sync registration; reminders and checks fire only while the agent is awake")
		return
	}

	if err := a.sync.RegisterSync(SyncTagReminder); err != nil {
		a.logDebug("Background sync unavailable", "tag", SyncTagReminder, "error", err)
	}
	if err := a.sync.RegisterPeriodicSync(SyncTagUpdateCheck, 12*time.Hour); err != nil {
		a.logDebug("Periodic sync unavailable", "tag", SyncTagUpdateCheck, "error", err)
		return
	}

	a.mu.Lock()
	a.periodicSync = true
	a.mu.Unlock()
}

// Ready reports whether the agent can display notifications. Satisfies the
// dispatch service's worker-display contract together with Display.
func (a *Agent) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state == StateActivated
}

// Display renders a notification through the agent.
func (a *Agent) Display(payload notify.Payload) error {
	if !a.Ready() {
		return fmt.Errorf("worker agent not activated")
	}
	return a.renderer.Render(payload)
}

// Status returns a diagnostic snapshot.
func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := Status{
		State:         a.state,
		ActivatedAt:   a.activatedAt,
		LastEventAt:   a.lastEvent,
		EventsHandled: a.handled,
		PeriodicSync:  a.periodicSync,
	}
	if a.store != nil {
		var version string
		if err := a.store.GetConfigValue(storage.KeyWorkerVersion, &version); err == nil {
			status.Version = version
		}
	}
	return status
}

func (a *Agent) countEvent() {
	a.mu.Lock()
	a.handled++
	a.lastEvent = time.Now().UTC()
	a.mu.Unlock()
}

func (a *Agent) logInfo(msg string, args ...interface{}) {
	if a.log != nil {
		a.log.Info(msg, args...)
	}
}

func (a *Agent) logDebug(msg string, args ...interface{}) {
	if a.log != nil {
		a.log.Debug(msg, args...)
	}
}

func (a *Agent) logWarn(msg string, args ...interface{}) {
	if a.log != nil {
		a.log.Warn(msg, args...)
	}
}
