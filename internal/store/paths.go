package store

import "path/filepath"

func StatePath(root string) string {
	return filepath.Join(root, "state.json")
}

func LockPath(root string) string {
	return filepath.Join(root, "state.lock")
}

func AuditPath(root string) string {
	return filepath.Join(root, "audit.log")
}
