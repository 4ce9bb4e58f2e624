// Package notify owns notification permission acquisition, rendering, and
// daily reminder scheduling. It is the single authority for how hard to ask
// for permission in each host environment and for the shape of every
// notification the app shows.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"goaltrack/common/logger"
	"goaltrack/hostenv"
	"goaltrack/storage"
	"goaltrack/update"
)

// PermissionState mirrors the platform's notification permission. The
// platform owns it; this package never stores it authoritatively.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// Fixed de-duplication tags. Repeated announcements with the same tag
// replace the visible banner instead of stacking a new one.
const (
	TagAppUpdate      = "app-update"
	TagUpdateComplete = "update-complete"
	TagDailyReminder  = "daily-reminder"
	TagWelcome        = "welcome"
	TagTest           = "test-notification"
)

const (
	defaultMaxPlatformAttempts = 3
	defaultRetryDelay          = 500 * time.Millisecond
)

// Platform is the host notification surface: permission state, the
// permission dialog, and direct rendering.
type Platform interface {
	Permission() PermissionState
	RequestPermission(ctx context.Context) (PermissionState, error)
	ShowNotification(payload Payload) error
}

// ConsentPrompter presents the in-app consent prompt shown before any
// platform permission call in a wrapped container.
type ConsentPrompter interface {
	// PromptConsent explains the notification categories and returns
	// whether the user agreed to proceed.
	PromptConsent(ctx context.Context, categories []string) (bool, error)
}

// GestureSynthesizer fabricates a user gesture between permission attempts.
// Some wrappers swallow permission calls that lack a preceding gesture.
// Optional.
type GestureSynthesizer interface {
	SynthesizeGesture(ctx context.Context) error
}

// PushToucher pokes the push-subscription surface as a secondary permission
// trigger path. Optional.
type PushToucher interface {
	TouchPushSubscription(ctx context.Context) error
}

// WorkerDisplay renders a notification through the background worker so it
// survives the page closing.
type WorkerDisplay interface {
	Ready() bool
	Display(payload Payload) error
}

// Options configure the dispatch service.
type Options struct {
	Log      *logger.Logger
	Store    storage.Store
	Env      hostenv.Kind
	Platform Platform
	Consent  ConsentPrompter
	Gesture  GestureSynthesizer
	PushTap  PushToucher
	Worker   WorkerDisplay
	Clock    func() time.Time

	AppName string
	Icon    string
	Badge   string

	MaxPlatformAttempts int
	RetryDelay          time.Duration
	// ReminderInterval overrides the 24h reminder cadence, for tests.
	ReminderInterval time.Duration
}

// Service is the notification dispatch service. Construct one per process
// at app start; tear down with Close.
type Service struct {
	log      *logger.Logger
	store    storage.Store
	env      hostenv.Kind
	platform Platform
	consent  ConsentPrompter
	gesture  GestureSynthesizer
	pushTap  PushToucher
	worker   WorkerDisplay
	clock    func() time.Time

	appName string
	icon    string
	badge   string

	maxAttempts      int
	retryDelay       time.Duration
	reminderInterval time.Duration

	mu             sync.Mutex
	schedule       ReminderSchedule
	reminderCancel chan struct{}
	reminderWG     sync.WaitGroup
}

// NewService creates a dispatch service.
func NewService(opts Options) (*Service, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("platform is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now() }
	}
	maxAttempts := opts.MaxPlatformAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxPlatformAttempts
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	reminderInterval := opts.ReminderInterval
	if reminderInterval <= 0 {
		reminderInterval = 24 * time.Hour
	}
	appName := opts.AppName
	if appName == "" {
		appName = "GoalTrack"
	}

	s := &Service{
		log:              opts.Log,
		store:            opts.Store,
		env:              opts.Env,
		platform:         opts.Platform,
		consent:          opts.Consent,
		gesture:          opts.Gesture,
		pushTap:          opts.PushTap,
		worker:           opts.Worker,
		clock:            clock,
		appName:          appName,
		icon:             opts.Icon,
		badge:            opts.Badge,
		maxAttempts:      maxAttempts,
		retryDelay:       retryDelay,
		reminderInterval: reminderInterval,
	}
	return s, nil
}

// SetWorker attaches the worker display after construction. The service and
// the worker reference each other, so one side has to be wired late.
func (s *Service) SetWorker(worker WorkerDisplay) {
	s.mu.Lock()
	s.worker = worker
	s.mu.Unlock()
}

// Close cancels any armed reminder timer.
func (s *Service) Close() {
	s.cancelReminder()
}

// Permission returns the platform's current permission state.
func (s *Service) Permission() PermissionState {
	return s.platform.Permission()
}

// RequestPermission negotiates notification permission with the host.
//
// Browsers get exactly one platform request and its verdict is final for
// the session. Wrapped containers first get an in-app consent prompt, then
// up to three platform attempts with small delays, an optional synthesized
// gesture, and an optional push-subscription touch between attempts; an
// ambiguous outcome after the last attempt counts as denied. The first
// grant fires a one-time welcome notification.
func (s *Service) RequestPermission(ctx context.Context) (PermissionState, error) {
	if s.platform.Permission() == PermissionGranted {
		return PermissionGranted, nil
	}

	if s.env != hostenv.KindWrappedApp {
		state, err := s.platform.RequestPermission(ctx)
		if err != nil {
			return PermissionDenied, fmt.Errorf("permission request failed: %w", err)
		}
		if state == PermissionGranted {
			s.showWelcome()
			return PermissionGranted, nil
		}
		return PermissionDenied, nil
	}

	if s.consent != nil {
		agreed, err := s.consent.PromptConsent(ctx, []string{"updates", "reminders", "achievements"})
		if err != nil {
			return PermissionDenied, fmt.Errorf("consent prompt failed: %w", err)
		}
		if !agreed {
			s.logInfo("User declined notification consent prompt")
			return PermissionDenied, nil
		}
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		state, err := s.platform.RequestPermission(ctx)
		if err == nil && state == PermissionGranted {
			s.logInfo("Notification permission granted", "attempt", attempt)
			s.showWelcome()
			return PermissionGranted, nil
		}
		if err == nil && state == PermissionDenied {
			return PermissionDenied, nil
		}
		if err != nil {
			s.logDebug("Platform permission attempt failed", "attempt", attempt, "error", err)
		}

		if attempt == s.maxAttempts {
			break
		}

		if s.gesture != nil {
			if gerr := s.gesture.SynthesizeGesture(ctx); gerr != nil {
				s.logDebug("Gesture synthesis failed", "error", gerr)
			}
		}
		if s.pushTap != nil {
			if perr := s.pushTap.TouchPushSubscription(ctx); perr != nil {
				s.logDebug("Push subscription touch failed", "error", perr)
			}
		}

		select {
		case <-ctx.Done():
			return PermissionDenied, ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}

	// Still ambiguous after every attempt. Wrapped containers sometimes
	// leave permission in "default" forever; treat that as denied.
	s.logInfo("Notification permission unresolved after retries, treating as denied")
	return PermissionDenied, nil
}

// ShowNotification renders a notification. Without granted permission it
// no-ops with a logged reason; rendering failures are logged, never
// surfaced to the caller. Delegates to the worker's display when one is
// registered and ready so the notification outlives the page.
func (s *Service) ShowNotification(payload Payload) {
	if s.platform.Permission() != PermissionGranted {
		s.logDebug("Notification suppressed: permission not granted", "tag", payload.Tag)
		return
	}

	if payload.Icon == "" {
		payload.Icon = s.icon
	}
	if payload.Badge == "" {
		payload.Badge = s.badge
	}

	s.mu.Lock()
	worker := s.worker
	s.mu.Unlock()

	if worker != nil && worker.Ready() {
		err := worker.Display(payload)
		if err == nil {
			return
		}
		s.logDebug("Worker display failed, falling back to direct render", "error", err)
	}

	if err := s.platform.ShowNotification(payload); err != nil {
		s.logWarn("Failed to show notification", "tag", payload.Tag, "error", err)
	}
}

// AnnounceUpdateAvailable shows the update-available banner. The fixed tag
// means repeated checks replace it rather than stacking.
func (s *Service) AnnounceUpdateAvailable(manifest *update.Manifest) {
	if manifest == nil {
		return
	}

	body := fmt.Sprintf("Version %s is ready to install.", manifest.Version)
	if len(manifest.Changes) > 0 {
		body = fmt.Sprintf("Version %s: %s", manifest.Version, strings.Join(manifest.Changes, ", "))
	}

	s.ShowNotification(Payload{
		Title:              "Update Available",
		Body:               body,
		Tag:                TagAppUpdate,
		RequireInteraction: manifest.Critical,
		Data: map[string]interface{}{
			"type":    "update",
			"version": manifest.Version,
		},
		Actions: []Action{
			{Action: "open-settings", Title: "View Update"},
		},
	})
}

// AnnounceUpdateComplete shows the post-install confirmation banner.
func (s *Service) AnnounceUpdateComplete(version string) {
	s.ShowNotification(Payload{
		Title: "Update Installed",
		Body:  fmt.Sprintf("GoalTrack is now on version %s.", version),
		Tag:   TagUpdateComplete,
		Data: map[string]interface{}{
			"type":    "update",
			"version": version,
		},
	})
}

// SendTestNotification renders a fixed test banner, used by the settings UI
// and the worker's test command.
func (s *Service) SendTestNotification() {
	s.ShowNotification(Payload{
		Title: "Test Notification",
		Body:  "Notifications are working.",
		Tag:   TagTest,
	})
}

func (s *Service) showWelcome() {
	s.ShowNotification(Payload{
		Title: "Notifications Enabled",
		Body:  "You'll now get update alerts and daily goal reminders.",
		Tag:   TagWelcome,
	})
}

func (s *Service) logInfo(msg string, args ...interface{}) {
	if s.log != nil {
		s.log.Info(msg, args...)
	}
}

func (s *Service) logDebug(msg string, args ...interface{}) {
	if s.log != nil {
		s.log.Debug(msg, args...)
	}
}

func (s *Service) logWarn(msg string, args ...interface{}) {
	if s.log != nil {
		s.log.Warn(msg, args...)
	}
}
