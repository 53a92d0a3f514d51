package scheduler

import (
	"context"

	"gorm.io/gorm"
)

// advisoryLockKey namespaces this service's scheduler lock within postgres
// advisory lock space.
const advisoryLockKey = int64(0x71757431) // "qut1"

// acquireAdvisoryLock claims the scheduler lease on the given connection so
// only one worker instance runs tasks per interval. The lock is session
// scoped: it must be released on the same connection, which is why RunOnce
// holds a dedicated connection for the cycle while the jobs themselves run
// on the pool.
func acquireAdvisoryLock(ctx context.Context, conn *gorm.DB) (bool, error) {
	var locked bool
	err := conn.WithContext(ctx).Raw(`SELECT pg_try_advisory_lock(?)`, advisoryLockKey).Scan(&locked).Error
	if err != nil {
		return false, err
	}
	return locked, nil
}

func releaseAdvisoryLock(ctx context.Context, conn *gorm.DB) error {
	return conn.WithContext(ctx).Exec(`SELECT pg_advisory_unlock(?)`, advisoryLockKey).Error
}
