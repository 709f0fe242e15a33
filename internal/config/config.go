package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"skilldock/internal/fsutil"
	"skilldock/internal/store"
)

// Default returns a fully-populated current-schema document.
func Default() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		DefaultAgent:  "claude",
		DefaultScope:  store.ScopeGlobal,
		Sources: []SourceConfig{
			{Name: "anthropics/skills", Owner: "anthropics", Repo: "skills"},
		},
	}
}

// Ensure loads the config, creating it with defaults on first run.
func Ensure(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Load reads the config document. Missing, unreadable, or structurally
// invalid files yield the defaults; a document behind the current schema is
// migrated forward and persisted back immediately.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("DOC_CONFIG_READ: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(blob, &cfg); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config document unreadable, using defaults")
		return Default(), nil
	}
	cfg, migrated := Migrate(cfg)
	if err := Validate(cfg); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config document invalid, using defaults")
		return Default(), nil
	}
	if migrated {
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Save validates and writes the document atomically.
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg.SchemaVersion = SchemaVersion
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := fsutil.WriteJSON(path, cfg); err != nil {
		return fmt.Errorf("DOC_CONFIG_SAVE: %w", err)
	}
	return nil
}

// Validate rejects documents that decoded but cannot be trusted.
func Validate(cfg Config) error {
	if cfg.SchemaVersion > SchemaVersion {
		return fmt.Errorf("DOC_CONFIG_VERSION: unsupported schema version %d", cfg.SchemaVersion)
	}
	if cfg.DefaultScope != "" && !store.ValidScope(cfg.DefaultScope) {
		return fmt.Errorf("DOC_CONFIG_SCHEMA: invalid default scope %q", cfg.DefaultScope)
	}
	seen := map[string]struct{}{}
	for _, src := range cfg.Sources {
		if src.Name == "" || src.Owner == "" || src.Repo == "" {
			return fmt.Errorf("DOC_CONFIG_SCHEMA: incomplete source %+v", src)
		}
		if _, ok := seen[src.Name]; ok {
			return fmt.Errorf("DOC_CONFIG_SCHEMA: duplicate source %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}

// CloneURL is the fetch target for a source: the explicit URL when set,
// otherwise the GitHub convention for owner/repo.
func (s SourceConfig) CloneURL() string {
	if s.URL != "" {
		return s.URL
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", s.Owner, s.Repo)
}

// ParseLocator splits an "owner/repo" source locator.
func ParseLocator(locator string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(locator, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("SRC_LOCATOR: %q is not an owner/repo locator", locator)
	}
	return owner, repo, nil
}
