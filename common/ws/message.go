package ws

import (
	"encoding/json"
	"time"
)

// Message is the shared channel envelope used by the worker and the
// foreground app. Both directions use the same shape.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Marshal marshals the message to JSON bytes.
func (m *Message) Marshal() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return json.Marshal(m)
}

// Recognized message types on the worker<->app channel. Unknown types are
// ignored by both sides, never treated as errors.
const (
	MessageTypeScheduleReminder     = "SCHEDULE_REMINDER"     // app-to-worker: arm daily reminder at data.time
	MessageTypeSendTestNotification = "SEND_TEST_NOTIFICATION" // app-to-worker: render a diagnostic notification
	MessageTypeUpdateVersion        = "UPDATE_VERSION"        // app-to-worker: persist data.version as the worker-readable marker
	MessageTypeNotificationClick    = "NOTIFICATION_CLICK"    // worker-to-app: a notification action was clicked
	MessageTypeShowNotification     = "SHOW_NOTIFICATION"     // worker-to-app: render data.payload in the page
)

// String returns the data value for key if it is a string.
func (m *Message) String(key string) string {
	if m.Data == nil {
		return ""
	}
	if s, ok := m.Data[key].(string); ok {
		return s
	}
	return ""
}
