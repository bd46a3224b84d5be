// Package shutdown ties a context to the platform's termination signals.
package shutdown

import (
	"context"
	"os/signal"
)

// Context is cancelled on the first interrupt or terminate signal. Call stop
// to restore default signal handling.
func Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
