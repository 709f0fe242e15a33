package config

import "fmt"

// FindSource returns the source with the given name.
func FindSource(cfg Config, name string) (SourceConfig, bool) {
	for _, s := range cfg.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// AddSource appends a new source; the name must be unused.
func AddSource(cfg *Config, src SourceConfig) error {
	if src.Name == "" || src.Owner == "" || src.Repo == "" {
		return fmt.Errorf("SRC_ADD: source needs name, owner and repo")
	}
	if _, exists := FindSource(*cfg, src.Name); exists {
		return fmt.Errorf("SRC_ADD: source %q already exists", src.Name)
	}
	cfg.Sources = append(cfg.Sources, src)
	return nil
}

// RemoveSource deletes a source by name, reporting whether it existed.
func RemoveSource(cfg *Config, name string) bool {
	for i, s := range cfg.Sources {
		if s.Name == name {
			cfg.Sources = append(cfg.Sources[:i], cfg.Sources[i+1:]...)
			return true
		}
	}
	return false
}
