package config

import "skilldock/internal/store"

// SchemaVersion is the current config document schema. Older documents are
// migrated forward on load, mirroring the state document's lifecycle.
const SchemaVersion = 2

// Config is the persisted tool configuration. It is authoritative for user
// intent (which sources exist, which agent is the default); everything under
// the cache directory is derived and disposable.
type Config struct {
	SchemaVersion  int                      `json:"schemaVersion"`
	DefaultAgent   string                   `json:"defaultAgent"`
	DefaultScope   store.Scope              `json:"defaultScope"`
	Sources        []SourceConfig           `json:"sources"`
	AgentOverrides map[string]AgentOverride `json:"agentOverrides,omitempty"`
}

// SourceConfig names one content source. Name is the unique key; Owner/Repo
// locate it for the fetcher and URL overrides the default clone target.
type SourceConfig struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	URL   string `json:"url,omitempty"`
}

// AgentOverride replaces the built-in skill directories for one agent.
type AgentOverride struct {
	GlobalDir  string `json:"globalDir,omitempty"`
	ProjectDir string `json:"projectDir,omitempty"`
}
