package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"skilldock/internal/agent"
	"skilldock/internal/audit"
	"skilldock/internal/cache"
	"skilldock/internal/config"
	"skilldock/internal/doctor"
	"skilldock/internal/skill"
	"skilldock/internal/source"
	"skilldock/internal/store"
)

// Options configures a Service. Zero values resolve to the real environment;
// tests inject temp roots and fake collaborators.
type Options struct {
	ConfigPath  string
	Home        string
	ProjectRoot string
	DataRoot    string
	CacheRoot   string
	Version     string

	Fetcher  cache.Fetcher
	Discover cache.DiscoverFunc
}

// Service wires the state store, repository cache, agent registry and audit
// log behind the CLI-facing operations.
type Service struct {
	ConfigPath  string
	Config      config.Config
	Store       *store.Store
	Cache       *cache.Cache
	Agents      *agent.Registry
	Audit       *audit.Logger
	Fetcher     cache.Fetcher
	Home        string
	ProjectRoot string
	DataRoot    string
	Version     string

	now func() time.Time
}

func New(opts Options) (*Service, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.Ensure(configPath)
	if err != nil {
		return nil, err
	}

	home := opts.Home
	if home == "" {
		home, err = os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("APP_INIT: %w", err)
		}
	}
	projectRoot := opts.ProjectRoot
	if projectRoot == "" {
		projectRoot, err = os.Getwd()
		if err != nil {
			projectRoot = "."
		}
	}
	dataRoot := opts.DataRoot
	if dataRoot == "" {
		dataRoot = config.DataRoot()
	}
	cacheRoot := opts.CacheRoot
	if cacheRoot == "" {
		cacheRoot = config.CacheRoot()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = source.NewGitFetcher(config.MirrorRoot(cacheRoot))
	}
	discover := opts.Discover
	if discover == nil {
		discover = skill.Discover
	}

	auditLog, err := audit.Open(store.AuditPath(dataRoot))
	if err != nil {
		// A broken audit log should not block operations.
		log.Warn().Err(err).Msg("audit log unavailable")
		auditLog = nil
	}

	return &Service{
		ConfigPath:  configPath,
		Config:      cfg,
		Store:       store.New(dataRoot),
		Cache:       cache.New(config.IndexRoot(cacheRoot), fetcher, discover),
		Agents:      agent.NewRegistry(home, projectRoot, version, cfg.AgentOverrides),
		Audit:       auditLog,
		Fetcher:     fetcher,
		Home:        home,
		ProjectRoot: projectRoot,
		DataRoot:    dataRoot,
		Version:     version,
	}, nil
}

// DoctorRun executes the read-only health checks.
func (s *Service) DoctorRun() doctor.Report {
	d := &doctor.Service{
		ConfigPath: s.ConfigPath,
		StateRoot:  s.DataRoot,
		Config:     s.Config,
		Store:      s.Store,
		Cache:      s.Cache,
		Agents:     s.Agents,
		Home:       s.Home,
	}
	return d.Run()
}

// SaveConfig persists the in-memory config document.
func (s *Service) SaveConfig() error {
	return config.Save(s.ConfigPath, s.Config)
}

// ListInstalled returns the installed records, optionally filtered by agent.
func (s *Service) ListInstalled(agentName string) ([]store.InstalledRecord, error) {
	if agentName == "" {
		return s.Store.All()
	}
	if _, err := s.Agents.Get(agentName); err != nil {
		return nil, err
	}
	return s.Store.AllByAgent(agentName)
}

// Search matches skills across all configured sources via the cache.
func (s *Service) Search(ctx context.Context, query string) ([]cache.Match, error) {
	if query == "" {
		return nil, fmt.Errorf("CACHE_SEARCH: query is required")
	}
	return s.Cache.Search(ctx, s.Config, query)
}

// SourceAdd registers a new source and saves the config.
func (s *Service) SourceAdd(locator, url string) (config.SourceConfig, error) {
	owner, repo, err := config.ParseLocator(locator)
	if err != nil {
		return config.SourceConfig{}, err
	}
	src := config.SourceConfig{Name: locator, Owner: owner, Repo: repo, URL: url}
	if err := config.AddSource(&s.Config, src); err != nil {
		return config.SourceConfig{}, err
	}
	if err := s.SaveConfig(); err != nil {
		return config.SourceConfig{}, err
	}
	return src, nil
}

// SourceRemove drops a source from the config and discards its cache entry.
func (s *Service) SourceRemove(name string) (bool, error) {
	if !config.RemoveSource(&s.Config, name) {
		return false, nil
	}
	if err := s.SaveConfig(); err != nil {
		return false, err
	}
	if err := s.Cache.Drop(name); err != nil {
		log.Warn().Err(err).Str("source", name).Msg("could not drop cache entry")
	}
	return true, nil
}

// SourceRefresh rebuilds the cache entry for one source, or for all
// configured sources when name is empty.
func (s *Service) SourceRefresh(ctx context.Context, name string) (map[string]int, error) {
	var targets []config.SourceConfig
	if name == "" {
		targets = s.Config.Sources
	} else {
		src, ok := config.FindSource(s.Config, name)
		if !ok {
			return nil, fmt.Errorf("SRC_REFRESH: source %q not found", name)
		}
		targets = []config.SourceConfig{src}
	}
	out := make(map[string]int, len(targets))
	for _, src := range targets {
		skills, _, _, err := s.Cache.Refresh(ctx, src)
		if err != nil {
			return nil, err
		}
		out[src.Name] = len(skills)
	}
	return out, nil
}

// SourceInfo reports a source's cache entry summary.
func (s *Service) SourceInfo(name string) (cache.Info, error) {
	if _, ok := config.FindSource(s.Config, name); !ok {
		return cache.Info{}, fmt.Errorf("SRC_INFO: source %q not found", name)
	}
	info, ok := s.Cache.Info(name)
	if !ok {
		return cache.Info{}, nil
	}
	return info, nil
}

// resolveSource finds the named source in the config, or treats the name as
// an ad-hoc owner/repo locator.
func (s *Service) resolveSource(name string) (config.SourceConfig, error) {
	if src, ok := config.FindSource(s.Config, name); ok {
		return src, nil
	}
	owner, repo, err := config.ParseLocator(name)
	if err != nil {
		return config.SourceConfig{}, fmt.Errorf("SRC_RESOLVE: %q is neither a configured source nor an owner/repo locator", name)
	}
	return config.SourceConfig{Name: name, Owner: owner, Repo: repo}, nil
}

// resolveAgents maps agent names to profiles, defaulting to the configured
// default agent. Order is preserved, duplicates collapsed.
func (s *Service) resolveAgents(names []string) ([]*agent.Agent, error) {
	if len(names) == 0 {
		names = []string{s.Config.DefaultAgent}
	}
	seen := map[string]struct{}{}
	out := make([]*agent.Agent, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		a, err := s.Agents.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) resolveScope(scope store.Scope) (store.Scope, error) {
	if scope == "" {
		scope = s.Config.DefaultScope
	}
	if scope == "" {
		scope = store.ScopeGlobal
	}
	if !store.ValidScope(scope) {
		return "", fmt.Errorf("APP_SCOPE: invalid scope %q", scope)
	}
	return scope, nil
}

func (s *Service) nowUTC() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}
