package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"skilldock/internal/agent"
	"skilldock/internal/cache"
	"skilldock/internal/config"
	"skilldock/internal/store"
)

// Finding is one health observation. Level is "error" or "warn"; a report is
// healthy when it carries no errors.
type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Report struct {
	Healthy        bool      `json:"healthy"`
	Findings       []Finding `json:"findings"`
	DetectedAgents []string  `json:"detectedAgents,omitempty"`
}

// Service inspects the documents, the lock, the cache and the agent trees.
// It only observes: nothing here mutates state.
type Service struct {
	ConfigPath string
	StateRoot  string
	Config     config.Config
	Store      *store.Store
	Cache      *cache.Cache
	Agents     *agent.Registry
	Home       string

	now func() time.Time
}

func (s *Service) Run() Report {
	findings := []Finding{}

	findings = append(findings, s.checkConfig()...)
	findings = append(findings, s.checkState()...)
	findings = append(findings, s.checkLock()...)
	findings = append(findings, s.checkCache()...)
	findings = append(findings, s.checkDrift()...)

	detected := agent.Detect(s.Home)
	names := make([]string, 0, len(detected))
	for _, d := range detected {
		names = append(names, d.Name)
	}

	healthy := true
	for _, f := range findings {
		if f.Level == "error" {
			healthy = false
			break
		}
	}
	return Report{Healthy: healthy, Findings: findings, DetectedAgents: names}
}

func (s *Service) checkConfig() []Finding {
	blob, err := os.ReadFile(s.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Finding{{Code: "DOC_CONFIG_MISSING", Level: "warn", Message: "config not written yet, defaults apply"}}
		}
		return []Finding{{Code: "DOC_CONFIG_READ", Level: "error", Message: err.Error()}}
	}
	var cfg config.Config
	if err := json.Unmarshal(blob, &cfg); err != nil {
		return []Finding{{Code: "DOC_CONFIG_INVALID", Level: "error", Message: err.Error()}}
	}
	cfg, _ = config.Migrate(cfg)
	if err := config.Validate(cfg); err != nil {
		return []Finding{{Code: "DOC_CONFIG_INVALID", Level: "error", Message: err.Error()}}
	}
	return nil
}

// checkState reads the raw document rather than going through the store,
// which would silently replace a broken file with an empty one.
func (s *Service) checkState() []Finding {
	blob, err := os.ReadFile(store.StatePath(s.StateRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []Finding{{Code: "DOC_STATE_READ", Level: "error", Message: err.Error()}}
	}
	var st store.State
	if err := json.Unmarshal(blob, &st); err != nil {
		return []Finding{{Code: "DOC_STATE_UNREADABLE", Level: "warn", Message: "state document is corrupt and will be treated as empty"}}
	}
	if st.SchemaVersion > store.SchemaVersion {
		return []Finding{{Code: "DOC_STATE_VERSION", Level: "error", Message: fmt.Sprintf("state schema %d is newer than this skilldock understands (%d)", st.SchemaVersion, store.SchemaVersion)}}
	}
	var findings []Finding
	seen := map[string]struct{}{}
	for _, rec := range st.Records {
		key := rec.Name + "|" + rec.Agent + "|" + string(rec.Scope)
		if _, dup := seen[key]; dup {
			findings = append(findings, Finding{Code: "DOC_STATE_DUPLICATE", Level: "error", Message: fmt.Sprintf("duplicate record for %s/%s (%s)", rec.Name, rec.Agent, rec.Scope)})
		}
		seen[key] = struct{}{}
	}
	return findings
}

func (s *Service) checkLock() []Finding {
	tok, held := s.Store.Lock().Holder()
	if !held {
		return nil
	}
	age := s.clock().Sub(tok.AcquiredAt)
	if age > store.StaleAfter {
		return []Finding{{Code: "LOCK_STALE", Level: "warn", Message: fmt.Sprintf("lock held by %s for %s, will be reclaimed on next mutation", tok.HolderID, age.Round(time.Second))}}
	}
	return []Finding{{Code: "LOCK_HELD", Level: "warn", Message: fmt.Sprintf("lock currently held by %s", tok.HolderID)}}
}

func (s *Service) checkCache() []Finding {
	var findings []Finding
	cached := map[string]struct{}{}
	for _, name := range s.Cache.Sources() {
		cached[name] = struct{}{}
		if info, ok := s.Cache.Info(name); ok && info.SkillCount == 0 {
			findings = append(findings, Finding{Code: "CACHE_EMPTY", Level: "warn", Message: name + " has a cache entry with no skills"})
		}
	}
	for _, src := range s.Config.Sources {
		if _, ok := cached[src.Name]; !ok {
			findings = append(findings, Finding{Code: "CACHE_COLD", Level: "warn", Message: src.Name + " has never been refreshed"})
		}
	}
	return findings
}

// checkDrift compares the state document against the agent trees in both
// directions: records whose content is gone, and managed content no record
// claims.
func (s *Service) checkDrift() []Finding {
	records, err := s.Store.All()
	if err != nil {
		return []Finding{{Code: "DOC_STATE_READ", Level: "error", Message: err.Error()}}
	}

	var findings []Finding
	recorded := map[string]struct{}{}
	for _, rec := range records {
		recorded[rec.Name+"|"+rec.Agent+"|"+string(rec.Scope)] = struct{}{}
		a, err := s.Agents.Get(rec.Agent)
		if err != nil {
			findings = append(findings, Finding{Code: "DRIFT_UNKNOWN_AGENT", Level: "warn", Message: fmt.Sprintf("%s recorded for unsupported agent %s", rec.Name, rec.Agent)})
			continue
		}
		if _, err := os.Stat(a.SkillPath(rec.Name, rec.Scope)); os.IsNotExist(err) {
			findings = append(findings, Finding{Code: "DRIFT_MISSING_CONTENT", Level: "warn", Message: fmt.Sprintf("%s recorded for %s (%s) but content is gone; uninstall repairs this", rec.Name, rec.Agent, rec.Scope)})
		}
	}

	for _, a := range s.Agents.All() {
		for _, scope := range []store.Scope{store.ScopeGlobal, store.ScopeProject} {
			for _, name := range a.Installed(scope) {
				if _, ok := recorded[name+"|"+a.Name+"|"+string(scope)]; !ok {
					findings = append(findings, Finding{Code: "DRIFT_UNRECORDED_CONTENT", Level: "warn", Message: fmt.Sprintf("%s installed for %s (%s) without a record", name, a.Name, scope)})
				}
			}
		}
	}
	return findings
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
