package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"skilldock/internal/config"
	"skilldock/internal/skill"
	"skilldock/internal/store"
)

// UpdateResult is one refreshed pair with its revision movement.
type UpdateResult struct {
	Skill        string      `json:"skill"`
	Agent        string      `json:"agent"`
	Scope        store.Scope `json:"scope"`
	FromRevision string      `json:"fromRevision"`
	ToRevision   string      `json:"toRevision"`
}

// UpdateOutcome reports an update run.
type UpdateOutcome struct {
	RequestID string         `json:"requestId"`
	Updated   []UpdateResult `json:"updated"`
	Current   []UpdateResult `json:"current,omitempty"`
}

// Update re-fetches the sources behind a skill's installed records and
// reinstalls every pair whose source has moved. Records already at the fresh
// revision are reported but left alone. Unlike install, update mutates pairs
// in place: a failed pair aborts with earlier pairs kept at their new
// revision, since each of them is individually consistent.
func (s *Service) Update(ctx context.Context, name string) (UpdateOutcome, error) {
	requestID := uuid.NewString()
	out := UpdateOutcome{RequestID: requestID, Updated: []UpdateResult{}}

	records, err := s.Store.ByName(name)
	if err != nil {
		return out, err
	}
	if len(records) == 0 {
		return out, fmt.Errorf("APP_UPDATE: %s is not installed", name)
	}

	s.Audit.Log(requestID, "update", "resolving", "ok", map[string]string{"skill": name})

	// One fetch per distinct source, shared by all its records.
	type fetched struct {
		skills   []skill.Skill
		dir      string
		revision string
	}
	fresh := map[string]fetched{}
	for _, rec := range records {
		locator := rec.SourceOwner + "/" + rec.SourceName
		if _, ok := fresh[locator]; ok {
			continue
		}
		src, ok := config.FindSource(s.Config, locator)
		if !ok {
			src = config.SourceConfig{Name: locator, Owner: rec.SourceOwner, Repo: rec.SourceName}
		}
		skills, dir, rev, err := s.Cache.Refresh(ctx, src)
		if err != nil {
			s.Audit.Log(requestID, "update", "resolving", "failed", map[string]string{"skill": name, "error": err.Error()})
			return out, err
		}
		fresh[locator] = fetched{skills: skills, dir: dir, revision: rev}
	}

	for _, rec := range records {
		f := fresh[rec.SourceOwner+"/"+rec.SourceName]
		result := UpdateResult{Skill: rec.Name, Agent: rec.Agent, Scope: rec.Scope, FromRevision: rec.Revision, ToRevision: f.revision}
		if rec.Revision == f.revision {
			out.Current = append(out.Current, result)
			continue
		}

		var sk skill.Skill
		found := false
		for _, candidate := range f.skills {
			if candidate.Name == rec.Name {
				sk = candidate
				found = true
				break
			}
		}
		if !found {
			// The source dropped the skill; the install stays at its old
			// revision rather than being silently removed.
			log.Warn().Str("skill", rec.Name).Str("source", rec.SourceOwner+"/"+rec.SourceName).Msg("skill no longer present upstream, keeping installed revision")
			out.Current = append(out.Current, result)
			continue
		}

		a, err := s.Agents.Get(rec.Agent)
		if err != nil {
			return out, err
		}
		if err := a.InstallContent(sk, filepath.Join(f.dir, filepath.FromSlash(sk.RelativePath)), rec.Scope); err != nil {
			s.Audit.Log(requestID, "update", "installing", "failed", map[string]string{"skill": rec.Name, "agent": rec.Agent, "error": err.Error()})
			return out, fmt.Errorf("APP_UPDATE: reinstalling %s for %s: %w", rec.Name, rec.Agent, err)
		}

		rec.SourcePath = sk.RelativePath
		rec.Revision = f.revision
		rec.InstalledAt = s.nowUTC()
		if err := s.Store.Upsert(rec); err != nil {
			return out, err
		}
		out.Updated = append(out.Updated, result)
		s.Audit.Log(requestID, "update", "installing", "ok", map[string]string{"skill": rec.Name, "agent": rec.Agent, "revision": f.revision})
	}

	s.Audit.Log(requestID, "update", "committed", "ok", map[string]string{"skill": name, "updated": fmt.Sprintf("%d", len(out.Updated))})
	return out, nil
}
