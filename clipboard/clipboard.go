// Package clipboard puts recording links on the system clipboard.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

var ErrUnavailable = errors.New("no clipboard utility available")

// Available reports whether a clipboard backend was found.
func Available() bool {
	return !cb.Unsupported
}

func Copy(text string) error {
	if !Available() {
		return ErrUnavailable
	}
	return cb.WriteAll(text)
}

func Read() (string, error) {
	if !Available() {
		return "", ErrUnavailable
	}
	return cb.ReadAll()
}
