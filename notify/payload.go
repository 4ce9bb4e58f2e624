package notify

import "encoding/json"

// Action is a button attached to a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Payload is the full shape of a rendered notification. Tag is the
// de-duplication key: a second notification with the same tag on a live
// agent replaces the first rather than stacking.
type Payload struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body,omitempty"`
	Icon               string                 `json:"icon,omitempty"`
	Badge              string                 `json:"badge,omitempty"`
	Tag                string                 `json:"tag,omitempty"`
	RequireInteraction bool                   `json:"requireInteraction,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
	Actions            []Action               `json:"actions,omitempty"`
}

// Defaults supplies the app identity used to fill gaps in push payloads.
type Defaults struct {
	AppName string
	Body    string
	Icon    string
	Badge   string
}

// FromPushJSON normalizes a raw push payload into a Payload. Push documents
// are opaque and any field may be missing or the whole body malformed; a
// payload that cannot be parsed degrades to the app-name default so every
// push still surfaces a visible notification.
func FromPushJSON(raw []byte, defaults Defaults) Payload {
	fallback := Payload{
		Title: defaults.AppName,
		Body:  defaults.Body,
		Icon:  defaults.Icon,
		Badge: defaults.Badge,
	}

	if len(raw) == 0 {
		return fallback
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fallback
	}

	if p.Title == "" {
		p.Title = defaults.AppName
	}
	if p.Body == "" {
		p.Body = defaults.Body
	}
	if p.Icon == "" {
		p.Icon = defaults.Icon
	}
	if p.Badge == "" {
		p.Badge = defaults.Badge
	}
	return p
}
