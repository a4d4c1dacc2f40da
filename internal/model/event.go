package model

// SessionEventType is the internal event enum every transport is normalized
// into. Business logic consumes these from a per-session channel and never
// lives inside a transport callback.
type SessionEventType string

const (
	EventSessionStart   SessionEventType = "session_start"
	EventUserUtterance  SessionEventType = "user_utterance"
	EventAgentUtterance SessionEventType = "agent_utterance"
	EventToolStart      SessionEventType = "tool_start"
	EventToolEnd        SessionEventType = "tool_end"
	EventSessionEnd     SessionEventType = "session_end"
)

// SessionMeta is the metadata a gateway must have before the first user
// utterance is processed; organization resolution depends on it.
type SessionMeta struct {
	SessionID string  `json:"session_id"`
	Channel   Channel `json:"channel"`
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	OrgSlug   string  `json:"org_slug,omitempty"`
	// OrgID is set when the caller is pre-authenticated and tenant identity
	// arrived via a side channel rather than by number/slug lookup.
	OrgID string `json:"org_id,omitempty"`
}

// SessionEvent is one normalized transport event.
type SessionEvent struct {
	Type   SessionEventType `json:"type"`
	Meta   *SessionMeta     `json:"meta,omitempty"`
	Text   string           `json:"text,omitempty"`
	Tool   string           `json:"tool,omitempty"`
	Reason string           `json:"reason,omitempty"`
}
