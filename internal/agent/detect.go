package agent

import (
	"os"
	"path/filepath"
	"sort"
)

// Detection names an agent whose root directory exists on this machine.
type Detection struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Detect reports which known agents appear to be installed, judged by the
// presence of their home-relative root directories.
func Detect(home string) []Detection {
	if home == "" {
		home = "."
	}
	out := make([]Detection, 0, len(knownAgents))
	for _, k := range knownAgents {
		root := filepath.Join(home, "."+k.name)
		if stat, err := os.Stat(root); err == nil && stat.IsDir() {
			out = append(out, Detection{Name: k.name, Path: root, Reason: "default " + k.name + " root exists"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
