package walletlock

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotHeld is returned by Release when the token no longer owns the lock,
// usually because the hold TTL expired and another caller took it.
var ErrNotHeld = errors.New("wallet lock not held")

// Locker serializes mutations of a single wallet across every server
// instance sharing the backing store.
type Locker interface {
	// Acquire blocks until the lock is held or wait elapses, in which case
	// it returns types.ErrLockTimeout.
	Acquire(ctx context.Context, walletID string, wait time.Duration) (string, error)
	Release(ctx context.Context, walletID, token string) error
}

// RunLocked runs fn while holding the wallet lock. The lock is released on
// every exit path, including panics in fn.
func RunLocked(ctx context.Context, l Locker, walletID string, wait time.Duration, fn func(ctx context.Context) error) error {
	token, err := l.Acquire(ctx, walletID, wait)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx), walletID, token); err != nil {
			logrus.WithFields(logrus.Fields{
				"wallet_id": walletID,
			}).WithError(err).Warn("fail to release wallet lock")
		}
	}()
	return fn(ctx)
}
