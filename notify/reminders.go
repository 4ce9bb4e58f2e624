package notify

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"goaltrack/storage"
)

// ReminderSchedule is the persisted daily-reminder configuration. Only the
// local time of day is stored; the next fire instant is recomputed from the
// wall clock on every initialization, which is what keeps the schedule
// durable across restarts.
type ReminderSchedule struct {
	LocalTimeOfDay string `json:"localTimeOfDay"`
	Enabled        bool   `json:"enabled"`
}

// reminderPool is the content rotation for daily reminders; one entry is
// chosen uniformly per fire.
var reminderPool = []string{
	"Time to check in on your goals!",
	"A little progress each day adds up. Log today's wins.",
	"Your goals are waiting. How did today go?",
	"Don't break the streak - record your progress now.",
	"One small step today. Update your goal tracker.",
}

// NextReminderFire computes the next fire instant for an HH:MM local time:
// today at that time, or tomorrow if it has already passed.
func NextReminderFire(now time.Time, timeOfDay string) (time.Time, error) {
	parts := strings.Split(timeOfDay, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid reminder time %q: want HH:MM", timeOfDay)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("invalid reminder hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid reminder minute %q", parts[1])
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next, nil
}

// SetupDailyReminders arms the daily reminder for the given HH:MM local
// time. Any previously armed reminder is cancelled first, so at most one
// reminder timer exists at any moment. The timer fires once at the next
// occurrence of the time, then every 24 hours from that point.
func (s *Service) SetupDailyReminders(timeOfDay string) error {
	next, err := NextReminderFire(s.clock(), timeOfDay)
	if err != nil {
		return err
	}

	s.cancelReminder()

	s.mu.Lock()
	s.schedule = ReminderSchedule{LocalTimeOfDay: timeOfDay, Enabled: true}
	cancel := make(chan struct{})
	s.reminderCancel = cancel
	s.mu.Unlock()

	s.persistSchedule()

	until := next.Sub(s.clock())
	if until < 0 {
		until = 0
	}
	s.logInfo("Daily reminder armed", "time", timeOfDay, "next", next.Format(time.RFC3339))

	s.reminderWG.Add(1)
	go s.reminderLoop(until, cancel)
	return nil
}

// DisableDailyReminders cancels any armed reminder and persists the
// disabled state.
func (s *Service) DisableDailyReminders() {
	s.cancelReminder()

	s.mu.Lock()
	s.schedule.Enabled = false
	s.mu.Unlock()

	s.persistSchedule()
}

// RestoreReminders re-arms the reminder from the persisted schedule, for
// process startup.
func (s *Service) RestoreReminders() error {
	if s.store == nil {
		return nil
	}

	var schedule ReminderSchedule
	if err := s.store.GetConfigValue(storage.KeyReminderSchedule, &schedule); err != nil {
		return fmt.Errorf("failed to load reminder schedule: %w", err)
	}
	if !schedule.Enabled || schedule.LocalTimeOfDay == "" {
		return nil
	}
	return s.SetupDailyReminders(schedule.LocalTimeOfDay)
}

// Schedule returns the current reminder configuration.
func (s *Service) Schedule() ReminderSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// SendReminderNow fires a single reminder notification immediately without
// touching the armed schedule. Used by the worker's sync trigger.
func (s *Service) SendReminderNow() {
	s.fireReminder()
}

func (s *Service) reminderLoop(initial time.Duration, cancel chan struct{}) {
	defer s.reminderWG.Done()

	timer := time.NewTimer(initial)
	defer timer.Stop()

	select {
	case <-cancel:
		return
	case <-timer.C:
	}
	s.fireReminder()

	ticker := time.NewTicker(s.reminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			s.fireReminder()
		}
	}
}

func (s *Service) fireReminder() {
	body := reminderPool[rand.Intn(len(reminderPool))]
	s.ShowNotification(Payload{
		Title: s.appName,
		Body:  body,
		Tag:   TagDailyReminder,
		Data: map[string]interface{}{
			"type": "reminder",
		},
		Actions: []Action{
			{Action: "open-goals", Title: "Open Goals"},
		},
	})
}

func (s *Service) cancelReminder() {
	s.mu.Lock()
	cancel := s.reminderCancel
	s.reminderCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		close(cancel)
	}
	s.reminderWG.Wait()
}

func (s *Service) persistSchedule() {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	schedule := s.schedule
	s.mu.Unlock()

	if err := s.store.SetConfigValue(storage.KeyReminderSchedule, schedule); err != nil {
		s.logWarn("Failed to persist reminder schedule", "error", err)
	}
}
