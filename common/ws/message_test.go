package ws

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageMarshalSetsTimestamp(t *testing.T) {
	t.Parallel()

	msg := &Message{Type: MessageTypeScheduleReminder, Data: map[string]interface{}{"time": "09:00"}}
	b, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Marshal() did not set timestamp")
	}

	var decoded Message
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("round-trip unmarshal error = %v", err)
	}
	if decoded.Type != MessageTypeScheduleReminder {
		t.Errorf("Type = %q, want %q", decoded.Type, MessageTypeScheduleReminder)
	}
	if decoded.String("time") != "09:00" {
		t.Errorf("data.time = %q, want %q", decoded.String("time"), "09:00")
	}
}

func TestMessageMarshalKeepsExistingTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{Type: MessageTypeUpdateVersion, Timestamp: ts}
	if _, err := msg.Marshal(); err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !msg.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", msg.Timestamp, ts)
	}
}

func TestStringAccessor(t *testing.T) {
	t.Parallel()

	msg := &Message{Data: map[string]interface{}{"version": "1.0.6", "count": 3}}
	if got := msg.String("version"); got != "1.0.6" {
		t.Errorf("String(version) = %q, want 1.0.6", got)
	}
	if got := msg.String("count"); got != "" {
		t.Errorf("String(count) = %q, want empty for non-string", got)
	}
	if got := msg.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}

	var nilData Message
	if got := nilData.String("any"); got != "" {
		t.Errorf("String on nil data = %q, want empty", got)
	}
}
