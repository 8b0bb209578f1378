package t2i

import (
	"context"
	"time"
)

// applyTimeout bounds a whole operation. Individual remote calls carry
// their own per-request deadline on top of this.
func applyTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
