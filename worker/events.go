package worker

import (
	"context"

	"goaltrack/common/ws"
	"goaltrack/notify"
	"goaltrack/storage"
)

// EventType discriminates incoming worker events.
type EventType string

const (
	EventPush              EventType = "push"
	EventNotificationClick EventType = "notification-click"
	EventSync              EventType = "sync"
	EventPeriodicSync      EventType = "periodic-sync"
	EventMessage           EventType = "message"
)

// Event is one incoming worker event. Only the fields for its type are set.
type Event struct {
	Type EventType

	// Push: the raw payload, possibly absent or malformed.
	Payload []byte

	// Notification click: the clicked action button (empty when the body
	// was clicked), the notification's payload, and a close callback.
	Action            string
	Notification      notify.Payload
	CloseNotification func()

	// Sync and periodic sync: the registered tag.
	Tag string

	// Message: the channel envelope from the foreground.
	Message *ws.Message
}

// Dispatch routes an event to its handler. Handler failures are logged and
// contained; unknown event and message types are ignored rather than
// errors, so a newer foreground never breaks an older worker.
func (a *Agent) Dispatch(ctx context.Context, ev Event) {
	a.countEvent()

	switch ev.Type {
	case EventPush:
		a.handlePush(ev)
	case EventNotificationClick:
		a.handleClick(ev)
	case EventSync, EventPeriodicSync:
		a.handleSync(ctx, ev)
	case EventMessage:
		a.handleMessage(ev)
	default:
		a.logDebug("Ignoring unknown worker event", "type", ev.Type)
	}
}

// handlePush renders a notification for every push. A malformed payload
// degrades to the app-name default instead of being dropped: the platform's
// push budget is finite and a silent drop erodes the delivery guarantee.
func (a *Agent) handlePush(ev Event) {
	payload := notify.FromPushJSON(ev.Payload, a.defaults)
	if err := a.renderer.Render(payload); err != nil {
		a.logWarn("Failed to render push notification", "tag", payload.Tag, "error", err)
	}
}

// handleClick closes the notification, resolves the action, and routes it
// into the app: an open window gets focused and messaged, otherwise a new
// window opens at the route derived from the action.
func (a *Agent) handleClick(ev Event) {
	if ev.CloseNotification != nil {
		ev.CloseNotification()
	}

	action := ev.Action
	if action == "" {
		if def, ok := ev.Notification.Data["defaultAction"].(string); ok {
			action = def
		}
	}

	a.mu.RLock()
	windows := a.windows
	a.mu.RUnlock()

	if windows == nil {
		a.logDebug("No window registry; dropping notification click", "action", action)
		return
	}

	if win, ok := windows.FindByOrigin(a.origin); ok {
		if err := win.Focus(); err != nil {
			a.logDebug("Failed to focus app window", "error", err)
		}
		if err := win.PostMessage(ws.MessageTypeNotificationClick, map[string]interface{}{
			"action": action,
			"data":   ev.Notification.Data,
		}); err != nil {
			a.logWarn("Failed to post click message", "action", action, "error", err)
		}
		return
	}

	route := RouteForClick(action, ev.Notification.Data)
	if err := windows.OpenWindow(a.origin + route); err != nil {
		a.logWarn("Failed to open app window", "route", route, "error", err)
	}
}

// RouteForClick maps a notification action and payload data to an app route.
func RouteForClick(action string, data map[string]interface{}) string {
	if t, ok := data["type"].(string); ok && t == "update" {
		return "/settings/updates"
	}

	switch action {
	case "open-settings":
		return "/settings/updates"
	case "open-goals":
		return "/goals"
	default:
		return "/"
	}
}

// handleSync tag-dispatches background sync ticks onto the same paths the
// foreground triggers use.
func (a *Agent) handleSync(ctx context.Context, ev Event) {
	switch ev.Tag {
	case SyncTagReminder:
		if a.reminders != nil {
			a.reminders.SendReminderNow()
		}
	case SyncTagUpdateCheck:
		if a.updates == nil {
			return
		}
		if _, err := a.updates.CheckForUpdates(ctx); err != nil {
			a.logWarn("Background update check failed", "error", err)
		}
	default:
		a.logDebug("Ignoring unknown sync tag", "tag", ev.Tag)
	}
}

// handleMessage services the foreground command channel.
func (a *Agent) handleMessage(ev Event) {
	if ev.Message == nil {
		return
	}

	switch ev.Message.Type {
	case ws.MessageTypeScheduleReminder:
		timeOfDay := ev.Message.String("time")
		if a.reminders == nil || timeOfDay == "" {
			return
		}
		if err := a.reminders.SetupDailyReminders(timeOfDay); err != nil {
			a.logWarn("Failed to schedule reminder from channel", "time", timeOfDay, "error", err)
		}
	case ws.MessageTypeSendTestNotification:
		if a.reminders != nil {
			a.reminders.SendTestNotification()
		}
	case ws.MessageTypeUpdateVersion:
		version := ev.Message.String("version")
		if a.store == nil || version == "" {
			return
		}
		if err := a.store.SetConfigValue(storage.KeyWorkerVersion, version); err != nil {
			a.logWarn("Failed to persist worker version marker", "version", version, "error", err)
		}
	default:
		a.logDebug("Ignoring unknown channel command", "type", ev.Message.Type)
	}
}
