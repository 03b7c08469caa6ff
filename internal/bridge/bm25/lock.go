package bm25

import (
	"time"

	"github.com/gofrs/flock"

	"manifold/internal/bridge/bridgeerrors"
)

const (
	defaultLockTimeout    = 30 * time.Second
	defaultLockRetryDelay = 100 * time.Millisecond
)

// snapshotLock wraps the advisory lock file sibling to the snapshot, with
// non-blocking acquisition and bounded retry matching the locking
// protocol in §4.4: readers take a shared lock, writers an exclusive
// lock, both acquired non-blocking with retry up to a timeout.
type snapshotLock struct {
	flock      *flock.Flock
	timeout    time.Duration
	retryDelay time.Duration
}

func newSnapshotLock(path string) *snapshotLock {
	return &snapshotLock{
		flock:      flock.New(path + ".lock"),
		timeout:    defaultLockTimeout,
		retryDelay: defaultLockRetryDelay,
	}
}

// acquireShared takes the shared (read) lock, retrying non-blocking
// attempts until acquired or the timeout elapses.
func (l *snapshotLock) acquireShared() error {
	deadline := time.Now().Add(l.timeout)
	for {
		ok, err := l.flock.TryRLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return bridgeerrors.New(bridgeerrors.KindLockTimeout, "timed out acquiring shared bm25 snapshot lock")
		}
		time.Sleep(l.retryDelay)
	}
}

// acquireExclusive takes the exclusive (write) lock, retrying
// non-blocking attempts until acquired or the timeout elapses.
func (l *snapshotLock) acquireExclusive() error {
	deadline := time.Now().Add(l.timeout)
	for {
		ok, err := l.flock.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return bridgeerrors.New(bridgeerrors.KindLockTimeout, "timed out acquiring exclusive bm25 snapshot lock")
		}
		time.Sleep(l.retryDelay)
	}
}

func (l *snapshotLock) release() error {
	return l.flock.Unlock()
}
