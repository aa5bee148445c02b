// Package paths provides XDG-compliant path resolution for storymap.
//
// Resolution order:
// 1. STORYMAP_HOME (portable root) → $STORYMAP_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/storymap
// 3. Platform defaults → ~/.config/storymap, ~/.local/state/storymap
package paths

import (
	"os"
	"path/filepath"
)

const appName = "storymap"

func home(sub string) string {
	if root := os.Getenv("STORYMAP_HOME"); root != "" {
		return filepath.Join(root, sub)
	}
	return ""
}

// ConfigDir returns the directory holding the global storymap.yml.
func ConfigDir() string {
	if dir := home("config"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", appName)
	}
	return ""
}

// StateDir returns the directory for logs, the PID file, and snapshots.
func StateDir() string {
	if dir := home("state"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state", appName)
	}
	return ""
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if dir := home("run"); dir != "" {
		return dir
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// LogDir returns the directory for log files.
func LogDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// SocketPath returns the default daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "storymapd.sock")
}

// PidFilePath returns the default daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "storymapd.pid")
}

// GlobalConfigPath returns the global config file, which may not exist.
func GlobalConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "storymap.yml")
}
