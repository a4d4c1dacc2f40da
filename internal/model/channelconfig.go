package model

// AgentMode selects between a single conversational agent and the
// front-agent/supervisor pair.
type AgentMode string

const (
	AgentModeSingle AgentMode = "single"
	AgentModeDual   AgentMode = "dual"
)

// ChannelConfig is one tenant's settings for one channel. An empty OrgID
// marks the system-wide row used when no org-specific row exists.
type ChannelConfig struct {
	OrgID        string  `json:"org_id,omitempty"`
	Channel      Channel `json:"channel"`
	Enabled      bool    `json:"enabled"`
	ModelBackend string  `json:"model_backend"`
	// FrontModelBackend routes front-agent traffic to a cheaper model.
	// Empty means ModelBackend serves both agents.
	FrontModelBackend string   `json:"front_model_backend,omitempty"`
	Instructions      string   `json:"instructions"`
	Integrations      []string `json:"integrations,omitempty"`
	// FullCatalog exposes every catalog function to the supervisor instead
	// of the curated priority subset.
	FullCatalog bool      `json:"full_catalog,omitempty"`
	AgentMode   AgentMode `json:"agent_mode"`
}

// InstructionSeparator splits ChannelConfig.Instructions into the front-agent
// segment (before) and the supervisor segment (after). Absent separator means
// both agents share the full text.
const InstructionSeparator = "-----"
