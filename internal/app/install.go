package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"skilldock/internal/agent"
	"skilldock/internal/config"
	"skilldock/internal/skill"
	"skilldock/internal/store"
)

// InstallRequest is a validated install request: one source, a skill
// selection, and the agents to install into.
type InstallRequest struct {
	Source    string
	Skill     string
	All       bool
	Selection []string
	Agents    []string
	Scope     store.Scope

	// Refresh forces a fetch even when the cache has an entry.
	Refresh bool
}

// PairResult is the outcome for one (skill, agent) pair.
type PairResult struct {
	Skill   string   `json:"skill"`
	Agent   string   `json:"agent"`
	Reasons []string `json:"reasons,omitempty"`
}

// InstallOutcome reports a committed install request.
type InstallOutcome struct {
	RequestID string       `json:"requestId"`
	Source    string       `json:"source"`
	Revision  string       `json:"revision"`
	Scope     store.Scope  `json:"scope"`
	Installed []PairResult `json:"installed"`
	Skipped   []PairResult `json:"skipped,omitempty"`
}

// completedStep is one reversible unit of a request: content landed for the
// pair, and (once recorded) a state record exists for it.
type completedStep struct {
	agent    *agent.Agent
	skill    string
	recorded bool
}

// Install drives a full install request. Pairs are visited in deterministic
// order, skills outer and agents inner. An incompatible pair is skipped with
// a warning; a failed pair aborts the request and reverses every pair
// completed so far, best-effort, before the original error is returned.
func (s *Service) Install(ctx context.Context, req InstallRequest) (InstallOutcome, error) {
	requestID := uuid.NewString()
	out := InstallOutcome{RequestID: requestID, Installed: []PairResult{}}

	s.Audit.Log(requestID, "install", "resolving", "ok", map[string]string{"source": req.Source})

	src, err := s.resolveSource(req.Source)
	if err != nil {
		return out, err
	}
	scope, err := s.resolveScope(req.Scope)
	if err != nil {
		return out, err
	}
	agents, err := s.resolveAgents(req.Agents)
	if err != nil {
		return out, err
	}

	skills, mirrorDir, revision, err := s.ensureCached(ctx, src, req.Refresh)
	if err != nil {
		s.Audit.Log(requestID, "install", "resolving", "failed", map[string]string{"error": err.Error()})
		return out, err
	}
	selected, mirrorDir, revision, err := s.selectSkills(ctx, src, req, skills, mirrorDir, revision)
	if err != nil {
		return out, err
	}

	out.Source = src.Name
	out.Revision = revision
	out.Scope = scope

	var completed []completedStep
	total := len(selected) * len(agents)
	pair := 0
	for _, sk := range selected {
		sourceDir := filepath.Join(mirrorDir, filepath.FromSlash(sk.RelativePath))
		for _, a := range agents {
			pair++
			progress := fmt.Sprintf("%d/%d", pair, total)
			if ok, reasons := a.IsCompatible(sk); !ok {
				log.Warn().Str("skill", sk.Name).Str("agent", a.Name).Strs("reasons", reasons).Msg("skipping incompatible pair")
				out.Skipped = append(out.Skipped, PairResult{Skill: sk.Name, Agent: a.Name, Reasons: reasons})
				s.Audit.Log(requestID, "install", "installing "+progress, "skipped", map[string]string{"skill": sk.Name, "agent": a.Name})
				continue
			}

			if err := a.InstallContent(sk, sourceDir, scope); err != nil {
				s.Audit.Log(requestID, "install", "installing "+progress, "failed", map[string]string{"skill": sk.Name, "agent": a.Name, "error": err.Error()})
				s.rollback(requestID, completed, scope)
				s.Audit.Log(requestID, "install", "failed", "failed", nil)
				return out, fmt.Errorf("APP_INSTALL: installing %s for %s: %w", sk.Name, a.Name, err)
			}

			rec := store.InstalledRecord{
				Name:        sk.Name,
				Agent:       a.Name,
				SourceOwner: src.Owner,
				SourceName:  src.Repo,
				SourcePath:  sk.RelativePath,
				Revision:    revision,
				InstalledAt: s.nowUTC(),
				Scope:       scope,
			}
			if err := s.Store.Upsert(rec); err != nil {
				// A record-write failure counts as an install failure: the
				// pair's content is reversed along with everything before it.
				completed = append(completed, completedStep{agent: a, skill: sk.Name})
				s.Audit.Log(requestID, "install", "installing "+progress, "failed", map[string]string{"skill": sk.Name, "agent": a.Name, "error": err.Error()})
				s.rollback(requestID, completed, scope)
				s.Audit.Log(requestID, "install", "failed", "failed", nil)
				return out, fmt.Errorf("APP_INSTALL: recording %s for %s: %w", sk.Name, a.Name, err)
			}

			completed = append(completed, completedStep{agent: a, skill: sk.Name, recorded: true})
			out.Installed = append(out.Installed, PairResult{Skill: sk.Name, Agent: a.Name})
			s.Audit.Log(requestID, "install", "installing "+progress, "ok", map[string]string{"skill": sk.Name, "agent": a.Name})
		}
	}

	s.Audit.Log(requestID, "install", "committed", "ok", map[string]string{"installed": fmt.Sprintf("%d", len(out.Installed))})
	return out, nil
}

// rollback reverses completed steps in reverse order. Reversal failures are
// logged loudly, never masked: they can leave installed content without a
// matching record, which doctor reports as drift.
func (s *Service) rollback(requestID string, completed []completedStep, scope store.Scope) {
	if len(completed) == 0 {
		return
	}
	s.Audit.Log(requestID, "install", "rollingback", "ok", map[string]string{"steps": fmt.Sprintf("%d", len(completed))})
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if _, err := step.agent.UninstallContent(step.skill, scope); err != nil {
			log.Error().Err(err).Str("skill", step.skill).Str("agent", step.agent.Name).Msg("rollback could not remove content")
			s.Audit.Log(requestID, "install", "rollingback", "failed", map[string]string{"skill": step.skill, "agent": step.agent.Name, "error": err.Error()})
		}
		if !step.recorded {
			continue
		}
		if _, err := s.Store.Remove(step.skill, step.agent.Name, scope); err != nil {
			log.Error().Err(err).Str("skill", step.skill).Str("agent", step.agent.Name).Msg("rollback could not remove record")
			s.Audit.Log(requestID, "install", "rollingback", "failed", map[string]string{"skill": step.skill, "agent": step.agent.Name, "error": err.Error()})
		}
	}
}

// ensureCached returns the source's skills plus the mirror location and
// revision, fetching only when the cache or mirror is missing (or when
// forced).
func (s *Service) ensureCached(ctx context.Context, src config.SourceConfig, force bool) ([]skill.Skill, string, string, error) {
	if !force {
		if skills := s.Cache.Load(src.Name); len(skills) > 0 {
			if rev, ok := s.Fetcher.CurrentRevision(ctx, src.Owner, src.Repo); ok {
				return skills, s.Fetcher.MirrorDir(src.Owner, src.Repo), rev, nil
			}
		}
	}
	return s.Cache.Refresh(ctx, src)
}

// selectSkills narrows the source's skills to the requested set. A named
// skill missing from a stale cache gets one forced refresh before the
// request fails.
func (s *Service) selectSkills(ctx context.Context, src config.SourceConfig, req InstallRequest, skills []skill.Skill, mirrorDir, revision string) ([]skill.Skill, string, string, error) {
	byName := func(list []skill.Skill, name string) (skill.Skill, bool) {
		for _, sk := range list {
			if sk.Name == name {
				return sk, true
			}
		}
		return skill.Skill{}, false
	}

	switch {
	case req.All:
		if len(skills) == 0 {
			return nil, mirrorDir, revision, fmt.Errorf("APP_SELECT: source %s has no skills", src.Name)
		}
		return skills, mirrorDir, revision, nil
	case len(req.Selection) > 0:
		out := make([]skill.Skill, 0, len(req.Selection))
		for _, name := range req.Selection {
			sk, ok := byName(skills, name)
			if !ok {
				return nil, mirrorDir, revision, fmt.Errorf("APP_SELECT: skill %q not found in %s", name, src.Name)
			}
			out = append(out, sk)
		}
		return out, mirrorDir, revision, nil
	case req.Skill != "":
		if sk, ok := byName(skills, req.Skill); ok {
			return []skill.Skill{sk}, mirrorDir, revision, nil
		}
		if !req.Refresh {
			// The cache may predate the skill; retry once against a fresh
			// fetch before giving up.
			fresh, dir, rev, err := s.Cache.Refresh(ctx, src)
			if err != nil {
				return nil, mirrorDir, revision, err
			}
			if sk, ok := byName(fresh, req.Skill); ok {
				return []skill.Skill{sk}, dir, rev, nil
			}
		}
		return nil, mirrorDir, revision, fmt.Errorf("APP_SELECT: skill %q not found in %s", req.Skill, src.Name)
	default:
		return nil, mirrorDir, revision, fmt.Errorf("APP_SELECT: name a skill, pass a selection, or request all")
	}
}
