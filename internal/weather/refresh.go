package weather

import (
	"context"
	"time"
)

// Watch calls refresh right away and then every interval until ctx is done.
// A refresh that is still running when the next tick fires delays it.
func Watch(ctx context.Context, interval time.Duration, refresh func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh(ctx)
		}
	}
}
