package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

const appDir = "skilldock"

// DefaultConfigPath is the config document location, XDG-resolved.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appDir, "config.json")
}

// DataRoot holds the state document and its lock marker.
func DataRoot() string {
	return filepath.Join(xdg.DataHome, appDir)
}

// CacheRoot holds source mirrors and per-source cache entries. Everything
// under it can be discarded and rebuilt.
func CacheRoot() string {
	return filepath.Join(xdg.CacheHome, appDir)
}

// MirrorRoot is where the fetcher keeps local source mirrors.
func MirrorRoot(cacheRoot string) string {
	return filepath.Join(cacheRoot, "mirrors")
}

// IndexRoot is where the repository cache keeps per-source entries.
func IndexRoot(cacheRoot string) string {
	return filepath.Join(cacheRoot, "index")
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" {
		return os.UserHomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}
