package lock

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-record-locks/app/entity"
)

// RunSweeper calls store.Sweep every interval until ctx is cancelled and
// hands the removed locks to onExpired.
func RunSweeper(ctx context.Context, store Store, interval time.Duration, logger logrus.FieldLogger, onExpired func([]entity.Lock)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := store.Sweep(ctx)
			if err != nil {
				logger.WithError(err).Warn("lock sweep failed")
				continue
			}
			if len(expired) == 0 {
				continue
			}
			logger.WithField("count", len(expired)).Debug("swept expired locks")
			if onExpired != nil {
				onExpired(expired)
			}
		}
	}
}
