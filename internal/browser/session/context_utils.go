// internal/browser/session/context_utils.go
package session

import (
	"context"
)

// CombineContext returns a context that carries the values of primary (the
// chromedp tab context) and is canceled when either primary or op is done.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(op, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// Detach returns a context with the values of ctx that is never canceled by it.
// The browser process is owned by Session.Close, not by the caller's context.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
