package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// datasetLease is a best-effort redis lock held for the length of one job. The
// database claim stays authoritative; the lease only turns concurrent redeliveries
// away before they touch the database.
type datasetLease struct {
	lock *redislock.Lock
}

func datasetLockKey(datasetId int) string {
	return fmt.Sprintf("lock:dataset:%d", datasetId)
}

// obtainDatasetLease returns ErrDatasetInProgress when another worker holds the lease.
// Redis being absent or failing leaves the job to the database claim alone.
func obtainDatasetLease(ctx context.Context, locker *redislock.Client, logger *logrus.Entry, datasetId int, ttl time.Duration) (*datasetLease, error) {
	if locker == nil {
		return &datasetLease{}, nil
	}
	lock, err := locker.Obtain(ctx, datasetLockKey(datasetId), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: dataset %d is leased", ErrDatasetInProgress, datasetId)
	}
	if err != nil {
		logger.Warn("could not obtain dataset lease, continuing with database claim: " + err.Error())
		return &datasetLease{}, nil
	}
	return &datasetLease{lock: lock}, nil
}

func (l *datasetLease) Release(ctx context.Context) {
	if l == nil || l.lock == nil {
		return
	}
	_ = l.lock.Release(context.WithoutCancel(ctx))
}
