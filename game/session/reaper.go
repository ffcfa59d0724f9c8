package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultReapInterval is how often Run sweeps when no interval is given.
const DefaultReapInterval = 30 * time.Second

// Run sweeps the registry every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res := r.Sweep(r.opts.Now())
			if res.Expired > 0 || res.Removed > 0 {
				r.log.WithFields(logrus.Fields{
					"expired":   res.Expired,
					"removed":   res.Removed,
					"remaining": r.Count(),
				}).Info("Swept sessions")
			}
		}
	}
}
