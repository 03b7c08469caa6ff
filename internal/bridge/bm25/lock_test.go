package bm25

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func TestSnapshotLock_TimesOutUnderContention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	external := flock.New(path + ".lock")
	if ok, err := external.TryLock(); err != nil || !ok {
		t.Fatalf("failed to take external exclusive lock: %v", err)
	}
	defer external.Unlock()

	l := newSnapshotLock(path)
	l.timeout = 50 * time.Millisecond
	l.retryDelay = 5 * time.Millisecond

	if err := l.acquireExclusive(); err == nil {
		t.Fatal("expected LockTimeout while external process holds the lock")
	}
}

func TestSnapshotLock_SucceedsAfterRelease(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	l := newSnapshotLock(path)
	l.timeout = 500 * time.Millisecond
	l.retryDelay = 5 * time.Millisecond

	if err := l.acquireExclusive(); err != nil {
		t.Fatalf("acquireExclusive: %v", err)
	}
	if err := l.release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}
