package model

import "time"

// SessionStatus is the lifecycle state of a session. Transitions only move
// forward; out-of-order webhooks must never regress a status.
type SessionStatus string

const (
	StatusRegistered SessionStatus = "registered"
	StatusOngoing    SessionStatus = "ongoing"
	StatusEnded      SessionStatus = "ended"
	StatusAnalyzed   SessionStatus = "analyzed"
)

var statusRank = map[SessionStatus]int{
	StatusRegistered: 0,
	StatusOngoing:    1,
	StatusEnded:      2,
	StatusAnalyzed:   3,
}

// Rank returns the ordering of a status for the forward-only ratchet.
func (s SessionStatus) Rank() int {
	return statusRank[s]
}

// Turn is one entry in a structured transcript.
type Turn struct {
	Role         Role              `json:"role"`
	Content      string            `json:"content"`
	FunctionCall *FunctionCallNote `json:"function_call,omitempty"`
}

// FunctionCallNote annotates a transcript turn with the remote function it
// triggered.
type FunctionCallNote struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Result    string `json:"result,omitempty"`
}

// Session is the durable record of one call or chat. Every field except ID
// and OrgID is independently mergeable: lifecycle webhooks arrive out of
// order and each one settles only the fields it carries.
type Session struct {
	ID      string  `json:"id"`
	OrgID   string  `json:"org_id"`
	Channel Channel `json:"channel"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	Status SessionStatus `json:"status"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// DurationSeconds is derived from EndedAt-StartedAt once both are known
	// and is transiently nil before that.
	DurationSeconds *int `json:"duration_seconds,omitempty"`

	Disposition string `json:"disposition,omitempty"`

	Transcript      string            `json:"transcript,omitempty"`
	Turns           []Turn            `json:"turns,omitempty"`
	TurnsWithTools  []Turn            `json:"turns_with_tools,omitempty"`
	Analysis        map[string]any    `json:"analysis,omitempty"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`

	RecordingURL    string `json:"recording_url,omitempty"`
	RecordingStored bool   `json:"recording_stored,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
