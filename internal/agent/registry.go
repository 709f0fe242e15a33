package agent

import (
	"fmt"
	"path/filepath"
	"sort"

	"skilldock/internal/config"
)

// knownAgents maps agent names to their skill directories relative to the
// user's home (global scope) and the project root (project scope).
var knownAgents = []struct {
	name       string
	globalRel  string
	projectRel string
}{
	{"claude", ".claude/skills", ".claude/skills"},
	{"codex", ".codex/skills", ".codex/skills"},
	{"cursor", ".cursor/skills", ".cursor/skills"},
	{"gemini", ".gemini/skills", ".gemini/skills"},
	{"qwen", ".qwen/skills", ".qwen/skills"},
	{"windsurf", ".windsurf/skills", ".windsurf/skills"},
}

// Registry resolves agent names to configured Agent profiles, applying any
// directory overrides from the config document.
type Registry struct {
	agents map[string]*Agent
}

// NewRegistry builds the agent set. home anchors global-scope directories,
// projectRoot anchors project-scope ones, toolVersion feeds compatibility
// checks.
func NewRegistry(home, projectRoot, toolVersion string, overrides map[string]config.AgentOverride) *Registry {
	r := &Registry{agents: map[string]*Agent{}}
	for _, k := range knownAgents {
		a := &Agent{
			Name:        k.name,
			GlobalDir:   filepath.Join(home, filepath.FromSlash(k.globalRel)),
			ProjectDir:  filepath.Join(projectRoot, filepath.FromSlash(k.projectRel)),
			toolVersion: toolVersion,
		}
		if ov, ok := overrides[k.name]; ok {
			if ov.GlobalDir != "" {
				if expanded, err := config.ExpandPath(ov.GlobalDir); err == nil {
					a.GlobalDir = expanded
				}
			}
			if ov.ProjectDir != "" {
				a.ProjectDir = filepath.Join(projectRoot, filepath.FromSlash(ov.ProjectDir))
			}
		}
		r.agents[k.name] = a
	}
	return r
}

// Get returns the named agent.
func (r *Registry) Get(name string) (*Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("AGT_UNKNOWN: agent %q is not supported", name)
	}
	return a, nil
}

// Names lists every supported agent, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.agents))
	for name := range r.agents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns every agent, sorted by name.
func (r *Registry) All() []*Agent {
	out := make([]*Agent, 0, len(r.agents))
	for _, name := range r.Names() {
		out = append(out, r.agents[name])
	}
	return out
}
