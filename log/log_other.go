//go:build !windows

package log

import (
	"os"
	"path/filepath"
	"runtime"
)

// stateDir is where per-user logs live: ~/Library/Logs on macOS,
// $XDG_STATE_HOME (or ~/.local/state) elsewhere.
func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs"), nil
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); filepath.IsAbs(xdg) {
		return xdg, nil
	}
	return filepath.Join(home, ".local", "state"), nil
}
