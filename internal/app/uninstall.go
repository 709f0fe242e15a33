package app

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"skilldock/internal/agent"
	"skilldock/internal/store"
)

// UninstallOutcome reports which pairs dropped content and which only had a
// dangling record cleaned up.
type UninstallOutcome struct {
	RequestID string       `json:"requestId"`
	Removed   []PairResult `json:"removed"`
	Repaired  []PairResult `json:"repaired,omitempty"`
}

// Uninstall removes a skill from the given agents, or from every known agent
// when all is set. A record whose content is already gone is still removed,
// repairing the drift instead of failing on it. Per-agent failures do not
// stop the walk; they are joined and returned at the end.
func (s *Service) Uninstall(name string, agentNames []string, scope store.Scope, all bool) (UninstallOutcome, error) {
	requestID := uuid.NewString()
	out := UninstallOutcome{RequestID: requestID, Removed: []PairResult{}}

	if name == "" {
		return out, fmt.Errorf("APP_UNINSTALL: skill name is required")
	}
	scope, err := s.resolveScope(scope)
	if err != nil {
		return out, err
	}

	var agents []*agent.Agent
	if all {
		agents = s.Agents.All()
	} else {
		agents, err = s.resolveAgents(agentNames)
		if err != nil {
			return out, err
		}
	}

	s.Audit.Log(requestID, "uninstall", "starting", "ok", map[string]string{"skill": name, "scope": string(scope)})

	var errs []error
	for _, a := range agents {
		held, err := a.UninstallContent(name, scope)
		if err != nil {
			errs = append(errs, fmt.Errorf("APP_UNINSTALL: %s for %s: %w", name, a.Name, err))
			s.Audit.Log(requestID, "uninstall", "removing", "failed", map[string]string{"skill": name, "agent": a.Name, "error": err.Error()})
			continue
		}

		removed, err := s.Store.Remove(name, a.Name, scope)
		if err != nil {
			errs = append(errs, err)
			s.Audit.Log(requestID, "uninstall", "removing", "failed", map[string]string{"skill": name, "agent": a.Name, "error": err.Error()})
			continue
		}

		switch {
		case held:
			out.Removed = append(out.Removed, PairResult{Skill: name, Agent: a.Name})
			s.Audit.Log(requestID, "uninstall", "removing", "ok", map[string]string{"skill": name, "agent": a.Name})
		case removed:
			// Content was already gone but a record lingered.
			log.Warn().Str("skill", name).Str("agent", a.Name).Msg("removed record without content")
			out.Repaired = append(out.Repaired, PairResult{Skill: name, Agent: a.Name})
			s.Audit.Log(requestID, "uninstall", "removing", "repaired", map[string]string{"skill": name, "agent": a.Name})
		}
	}

	if len(errs) > 0 {
		s.Audit.Log(requestID, "uninstall", "failed", "failed", map[string]string{"skill": name})
		return out, errors.Join(errs...)
	}
	if len(out.Removed) == 0 && len(out.Repaired) == 0 && !all {
		return out, fmt.Errorf("APP_UNINSTALL: %s is not installed for the requested agents", name)
	}
	s.Audit.Log(requestID, "uninstall", "committed", "ok", map[string]string{"skill": name})
	return out, nil
}
