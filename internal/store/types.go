package store

import "time"

// SchemaVersion is the current state document schema. Older documents are
// migrated forward on load; see migrate.go.
const SchemaVersion = 2

// Scope is where a skill instance lives: an agent's global (home) tree or a
// project-local tree.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// ValidScope reports whether s is a known scope value.
func ValidScope(s Scope) bool {
	return s == ScopeGlobal || s == ScopeProject
}

// State is the persisted manifest of installed skill instances. It is the
// authoritative record of user intent; the repository cache is not.
type State struct {
	SchemaVersion int               `json:"schemaVersion"`
	Records       []InstalledRecord `json:"records"`
}

// InstalledRecord is one installed skill instance. At most one record exists
// per (Name, Agent, Scope) key; Upsert replaces, never duplicates.
type InstalledRecord struct {
	Name        string    `json:"name"`
	Agent       string    `json:"agent"`
	SourceOwner string    `json:"sourceOwner"`
	SourceName  string    `json:"sourceName"`
	SourcePath  string    `json:"sourcePath,omitempty"`
	Revision    string    `json:"revision"`
	InstalledAt time.Time `json:"installedAt"`
	Scope       Scope     `json:"scope"`
}

func (r InstalledRecord) matches(name, agent string, scope Scope) bool {
	if r.Name != name || r.Agent != agent {
		return false
	}
	return scope == "" || r.Scope == scope
}

// LockToken is the content of the lock marker file. Presence of the marker
// means the state mutation path is held; the token itself is transient
// coordination data, never domain state.
type LockToken struct {
	HolderID   string    `json:"holderId"`
	AcquiredAt time.Time `json:"acquiredAt"`
}
