package model

import "time"

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one conversational turn, immutable once written. Sequence is
// assigned by the message log at write time and is monotonic within a
// session; stored order follows it, not wall-clock receipt.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	OrgID     string    `json:"org_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sequence  uint64    `json:"sequence,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FunctionCallRecord is an audit entry for one remote function invocation
// made by the supervisor. Params are sanitized before recording: the tenant
// identity field never appears here.
type FunctionCallRecord struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	OrgID      string         `json:"org_id"`
	Function   string         `json:"function"`
	Params     map[string]any `json:"params,omitempty"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}
