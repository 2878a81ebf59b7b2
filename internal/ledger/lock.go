package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

type lockMode int

const (
	lockShared lockMode = iota
	lockExclusive
)

func (m lockMode) String() string {
	if m == lockExclusive {
		return "exclusive"
	}
	return "shared"
}

// errLockBusy is returned by tryLock when another handle holds a conflicting lock.
var errLockBusy = errors.New("lock held elsewhere")

// lockPollInterval is how often a contended lock is retried.
var lockPollInterval = 10 * time.Millisecond

// acquire takes an advisory lock on f, polling non-blocking attempts so that a
// cancelled context stops the wait. The returned func releases the lock.
func acquire(ctx context.Context, f *os.File, mode lockMode) (func(), error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		err := tryLock(f, mode)
		if err == nil {
			return func() { _ = unlock(f) }, nil
		}
		if !errors.Is(err, errLockBusy) {
			return nil, storageErr("lock", f.Name(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s lock on %s: %w", mode, f.Name(), ctx.Err())
		case <-ticker.C:
		}
	}
}
