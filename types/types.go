package types

import "fmt"

// EventKind classifies an inbound channel event.
type EventKind string

const (
	EventText  EventKind = "text"
	EventVoice EventKind = "voice"
	EventVideo EventKind = "video"
)

// Event is a single inbound message from a channel adapter
// (Telegram, Twilio, HTTP upload), normalized before it reaches the engine.
type Event struct {
	UserID   string    `json:"user_id"`
	Kind     EventKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Payload  []byte    `json:"payload,omitempty"`
	MIMEType string    `json:"mime_type,omitempty"`
}

func (e *Event) Validate() error {
	if e.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	switch e.Kind {
	case EventText:
		if e.Text == "" {
			return &ValidationError{Field: "text", Reason: "text event requires text"}
		}
	case EventVoice, EventVideo:
		if len(e.Payload) == 0 {
			return &ValidationError{Field: "payload", Reason: "media event requires payload"}
		}
		if e.MIMEType == "" {
			return &ValidationError{Field: "mime_type", Reason: "media event requires mime_type"}
		}
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown event kind %q", e.Kind)}
	}
	return nil
}

// Reply is the engine's answer, handed back to the channel adapter.
// Adapters own any channel-specific formatting.
type Reply struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// ValidationError marks caller mistakes (malformed media, missing template
// variables). Retrying without fixing the input is pointless, so it is
// surfaced immediately instead of feeding the retry loops.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
