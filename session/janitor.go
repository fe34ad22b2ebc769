package session

import (
	"context"
	"time"

	"github.com/hupe1980/raaf/logging"
)

// Purger is a store that can evict its expired sessions in bulk.
// InMemoryStore and libsql.Store implement it.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunJanitor purges expired sessions every interval until ctx is done.
// Sessions that are never read again would otherwise stay resident.
func RunJanitor(ctx context.Context, p Purger, interval time.Duration, logger logging.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("session.janitor.failed", "error", err.Error())
				}
				continue
			}
			if n > 0 {
				logger.Debug("session.janitor.purged", "sessions", n)
			}
		}
	}
}
