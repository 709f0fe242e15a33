package config

import "skilldock/internal/store"

// Migrate transforms a config document to the current schema. Idempotent.
//
// v1 -> v2: defaultScope and agentOverrides were added; v1 behavior was
// always-global installs.
func Migrate(cfg Config) (Config, bool) {
	from := cfg.SchemaVersion
	if from == 0 {
		from = 1
	}
	if from >= SchemaVersion {
		cfg.SchemaVersion = SchemaVersion
		return cfg, false
	}
	for v := from; v < SchemaVersion; v++ {
		switch v {
		case 1:
			if cfg.DefaultScope == "" {
				cfg.DefaultScope = store.ScopeGlobal
			}
		}
	}
	cfg.SchemaVersion = SchemaVersion
	return cfg, true
}
