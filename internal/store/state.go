package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"skilldock/internal/fsutil"
)

// Store owns the state document. All mutations funnel through the file lock;
// reads are lock-free and may observe a slightly stale but never torn
// document, which the atomic save guarantees.
type Store struct {
	root string
	lock *FileLock

	lockTimeout time.Duration
	now         func() time.Time
}

func New(root string) *Store {
	return &Store{
		root:        root,
		lock:        NewFileLock(LockPath(root)),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
}

// Lock exposes the underlying file lock for health checks.
func (s *Store) Lock() *FileLock { return s.lock }

// Load returns the state document. A missing, unreadable, or structurally
// invalid file yields an empty current-schema document: corruption is
// recovered locally, never propagated. A document behind the current schema
// is migrated forward and the migrated form is persisted back immediately.
func (s *Store) Load() (State, error) {
	blob, err := os.ReadFile(StatePath(s.root))
	if err != nil {
		if os.IsNotExist(err) {
			return State{SchemaVersion: SchemaVersion}, nil
		}
		return State{}, fmt.Errorf("DOC_STATE_READ: %w", err)
	}
	var st State
	if err := json.Unmarshal(blob, &st); err != nil {
		log.Warn().Err(err).Str("path", StatePath(s.root)).Msg("state document unreadable, treating as absent")
		return State{SchemaVersion: SchemaVersion}, nil
	}
	if !structurallyValid(st) {
		log.Warn().Str("path", StatePath(s.root)).Msg("state document failed validation, treating as absent")
		return State{SchemaVersion: SchemaVersion}, nil
	}
	st, migrated := Migrate(st)
	if migrated {
		if err := s.Save(st); err != nil {
			return State{}, err
		}
	}
	return st, nil
}

// Save writes the document atomically with records in a deterministic order.
func (s *Store) Save(st State) error {
	st.SchemaVersion = SchemaVersion
	sort.Slice(st.Records, func(i, j int) bool {
		a, b := st.Records[i], st.Records[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Agent != b.Agent {
			return a.Agent < b.Agent
		}
		return a.Scope < b.Scope
	})
	if st.Records == nil {
		st.Records = []InstalledRecord{}
	}
	if err := fsutil.WriteJSON(StatePath(s.root), st); err != nil {
		return fmt.Errorf("DOC_STATE_SAVE: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the record for its (name, agent, scope) key
// under the file lock.
func (s *Store) Upsert(rec InstalledRecord) error {
	if rec.Name == "" || rec.Agent == "" {
		return fmt.Errorf("DOC_STATE_SCHEMA: record missing name or agent")
	}
	if !ValidScope(rec.Scope) {
		return fmt.Errorf("DOC_STATE_SCHEMA: record for %q has invalid scope %q", rec.Name, rec.Scope)
	}
	return s.mutate(func(st *State) {
		for i := range st.Records {
			if st.Records[i].matches(rec.Name, rec.Agent, rec.Scope) {
				st.Records[i] = rec
				return
			}
		}
		st.Records = append(st.Records, rec)
	})
}

// Remove deletes the record for the key. Removing an absent key is a no-op
// that still reports removed=false.
func (s *Store) Remove(name, agent string, scope Scope) (bool, error) {
	removed := false
	err := s.mutate(func(st *State) {
		kept := st.Records[:0]
		for _, r := range st.Records {
			if r.matches(name, agent, scope) {
				removed = true
				continue
			}
			kept = append(kept, r)
		}
		st.Records = kept
	})
	return removed, err
}

func (s *Store) mutate(fn func(*State)) error {
	if err := s.lock.Acquire(s.lockTimeout); err != nil {
		return err
	}
	defer func() { _ = s.lock.Release() }()
	st, err := s.Load()
	if err != nil {
		return err
	}
	fn(&st)
	return s.Save(st)
}

// Find returns the record for (name, agent, scope). An empty scope matches
// either scope; if both exist, project wins over global.
func (s *Store) Find(name, agent string, scope Scope) (InstalledRecord, bool, error) {
	st, err := s.Load()
	if err != nil {
		return InstalledRecord{}, false, err
	}
	var found InstalledRecord
	ok := false
	for _, r := range st.Records {
		if !r.matches(name, agent, scope) {
			continue
		}
		if !ok || r.Scope == ScopeProject {
			found = r
			ok = true
		}
	}
	return found, ok, nil
}

// All returns every installed record.
func (s *Store) All() ([]InstalledRecord, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	return st.Records, nil
}

// AllByAgent returns the records installed for one agent.
func (s *Store) AllByAgent(agent string) ([]InstalledRecord, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]InstalledRecord, 0, len(st.Records))
	for _, r := range st.Records {
		if r.Agent == agent {
			out = append(out, r)
		}
	}
	return out, nil
}

// ByName returns the records for a skill name across all agents and scopes.
func (s *Store) ByName(name string) ([]InstalledRecord, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]InstalledRecord, 0, len(st.Records))
	for _, r := range st.Records {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out, nil
}

// structurallyValid rejects documents that decoded but cannot be trusted:
// future schemas and records without a key.
func structurallyValid(st State) bool {
	if st.SchemaVersion > SchemaVersion {
		return false
	}
	for _, r := range st.Records {
		if r.Name == "" || r.Agent == "" {
			return false
		}
	}
	return true
}
