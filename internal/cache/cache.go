package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"skilldock/internal/config"
	"skilldock/internal/fsutil"
	"skilldock/internal/skill"
)

// Entry is one persisted per-source index: a derived, rebuildable record of
// what a source contained when it was last fetched. It is never consulted to
// answer "is X installed"; that question belongs to the state store.
type Entry struct {
	LastUpdated time.Time     `json:"lastUpdated"`
	Skills      []skill.Skill `json:"skills"`
}

// Info summarizes one cache entry.
type Info struct {
	SkillCount  int       `json:"skillCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Match is one search hit.
type Match struct {
	Source string `json:"source"`
	skill.Skill
}

// Fetcher guarantees a local mirror of a source at some revision.
type Fetcher interface {
	EnsureLocal(ctx context.Context, owner, repo, url string) (dir string, revision string, err error)
	CurrentRevision(ctx context.Context, owner, repo string) (revision string, ok bool)
	MirrorDir(owner, repo string) string
}

// DiscoverFunc enumerates the skills inside a fetched mirror.
type DiscoverFunc func(root string) ([]skill.Skill, error)

// Cache maintains the per-source indexes. There is no cross-process
// coordination here: concurrent refreshes race with last-writer-wins on the
// entry file, acceptable for derived state.
type Cache struct {
	indexRoot string
	fetcher   Fetcher
	discover  DiscoverFunc

	now func() time.Time
}

func New(indexRoot string, fetcher Fetcher, discover DiscoverFunc) *Cache {
	return &Cache{indexRoot: indexRoot, fetcher: fetcher, discover: discover, now: time.Now}
}

// Refresh forces a fetch + discovery pass for the source and rewrites its
// entry. It returns the discovered skills along with the mirror path and
// revision so callers can install without re-fetching.
func (c *Cache) Refresh(ctx context.Context, src config.SourceConfig) ([]skill.Skill, string, string, error) {
	dir, rev, err := c.fetcher.EnsureLocal(ctx, src.Owner, src.Repo, src.CloneURL())
	if err != nil {
		return nil, "", "", err
	}
	skills, err := c.discover(dir)
	if err != nil {
		return nil, "", "", err
	}
	entry := Entry{LastUpdated: c.now().UTC(), Skills: skills}
	if err := fsutil.WriteJSON(c.entryPath(src.Name), entry); err != nil {
		return nil, "", "", fmt.Errorf("CACHE_SAVE: %w", err)
	}
	return skills, dir, rev, nil
}

// Load returns the cached skills for a source, or nil when the entry is
// absent or corrupt. A broken entry only costs an extra Refresh, so it is
// never an error.
func (c *Cache) Load(sourceName string) []skill.Skill {
	entry, ok := c.load(sourceName)
	if !ok {
		return nil
	}
	return entry.Skills
}

// Info reports the size and freshness of a source's entry.
func (c *Cache) Info(sourceName string) (Info, bool) {
	entry, ok := c.load(sourceName)
	if !ok {
		return Info{}, false
	}
	return Info{SkillCount: len(entry.Skills), LastUpdated: entry.LastUpdated}, true
}

// Search matches query case-insensitively against skill names and
// descriptions across all configured sources, refreshing any source whose
// cache is empty first. Results follow source iteration order; there is no
// ranking.
func (c *Cache) Search(ctx context.Context, cfg config.Config, query string) ([]Match, error) {
	q := strings.ToLower(query)
	var out []Match
	for _, src := range cfg.Sources {
		skills := c.Load(src.Name)
		if len(skills) == 0 {
			refreshed, _, _, err := c.Refresh(ctx, src)
			if err != nil {
				return nil, fmt.Errorf("CACHE_SEARCH: refreshing %s: %w", src.Name, err)
			}
			skills = refreshed
		}
		for _, sk := range skills {
			if strings.Contains(strings.ToLower(sk.Name), q) || strings.Contains(strings.ToLower(sk.Description), q) {
				out = append(out, Match{Source: src.Name, Skill: sk})
			}
		}
	}
	return out, nil
}

// Drop removes a source's entry. Missing entries are fine.
func (c *Cache) Drop(sourceName string) error {
	err := os.Remove(c.entryPath(sourceName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sources lists the source names that currently have entries.
func (c *Cache) Sources() []string {
	entries, err := os.ReadDir(c.indexRoot)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, entryToSource(strings.TrimSuffix(name, ".json")))
	}
	sort.Strings(out)
	return out
}

func (c *Cache) load(sourceName string) (Entry, bool) {
	var entry Entry
	if err := fsutil.ReadJSON(c.entryPath(sourceName), &entry); err != nil {
		if !os.IsNotExist(err) {
			log.Debug().Err(err).Str("source", sourceName).Msg("cache entry unreadable, will rebuild on refresh")
		}
		return Entry{}, false
	}
	return entry, true
}

// entryPath flattens the owner/repo source name into one file name.
func (c *Cache) entryPath(sourceName string) string {
	return filepath.Join(c.indexRoot, strings.ReplaceAll(sourceName, "/", "--")+".json")
}

func entryToSource(base string) string {
	return strings.ReplaceAll(base, "--", "/")
}
