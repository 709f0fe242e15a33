package fsutil

import (
	"os"
	"path/filepath"
	"time"
)

// MarkerName is the ownership marker written into every skill directory that
// skilldock installs. Uninstall refuses to touch directories without it.
const MarkerName = ".skilldock.json"

// Marker records why a directory is owned by skilldock.
type Marker struct {
	Skill       string    `json:"skill"`
	Agent       string    `json:"agent"`
	InstalledAt time.Time `json:"installedAt"`
}

// WriteMarker stamps dir as managed.
func WriteMarker(dir string, m Marker) error {
	return WriteJSON(filepath.Join(dir, MarkerName), m)
}

// IsManagedDir reports whether dir carries a skilldock ownership marker.
func IsManagedDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, MarkerName))
	return err == nil && !info.IsDir()
}
