package model

import "time"

// LifecycleEventType identifies a provider lifecycle webhook.
type LifecycleEventType string

const (
	LifecycleCallStarted  LifecycleEventType = "call_started"
	LifecycleCallEnded    LifecycleEventType = "call_ended"
	LifecycleCallAnalyzed LifecycleEventType = "call_analyzed"
)

// LifecycleEvent is the provider webhook payload. Events arrive unordered
// and possibly duplicated; each carries a growing subset of fields keyed by
// the provider's session id.
type LifecycleEvent struct {
	Type      LifecycleEventType `json:"event"`
	SessionID string             `json:"call_id"`

	From string `json:"from_number,omitempty"`
	To   string `json:"to_number,omitempty"`

	StartedAt *time.Time `json:"start_timestamp,omitempty"`
	EndedAt   *time.Time `json:"end_timestamp,omitempty"`

	Disposition  string `json:"disconnection_reason,omitempty"`
	RecordingURL string `json:"recording_url,omitempty"`

	Transcript     string `json:"transcript,omitempty"`
	Turns          []Turn `json:"transcript_object,omitempty"`
	TurnsWithTools []Turn `json:"transcript_with_tool_calls,omitempty"`

	Analysis map[string]any `json:"call_analysis,omitempty"`
	// CustomAnalysisData carries tenant-defined fields the provider
	// extracted from the call (patient name, callback number, ...).
	CustomAnalysisData map[string]string `json:"custom_analysis_data,omitempty"`
}
