//go:build windows

package log

import (
	"os"
	"path/filepath"
)

// stateDir is %LOCALAPPDATA%, so logs stay out of the roaming profile.
func stateDir() (string, error) {
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		return local, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "AppData", "Local"), nil
}
