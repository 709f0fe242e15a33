package skill

// Skill is one discoverable unit of installable content inside a source.
type Skill struct {
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	RelativePath  string            `json:"relativePath"`
	License       string            `json:"license,omitempty"`
	Compatibility *Compatibility    `json:"compatibility,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Compatibility restricts where a skill may be installed. An empty Agents
// list means any agent; MinVersion is the minimum skilldock version, in
// semver form ("v0.2.0").
type Compatibility struct {
	Agents     []string `json:"agents,omitempty" yaml:"agents" toml:"agents"`
	MinVersion string   `json:"minVersion,omitempty" yaml:"min_version" toml:"min_version"`
}

// AllowsAgent reports whether the skill is declared for the agent. No
// declaration means no restriction.
func (c *Compatibility) AllowsAgent(agent string) bool {
	if c == nil || len(c.Agents) == 0 {
		return true
	}
	for _, a := range c.Agents {
		if a == agent {
			return true
		}
	}
	return false
}
