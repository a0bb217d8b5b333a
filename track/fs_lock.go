package track

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spfs-io/spfs/rterrors"
	"github.com/spfs-io/spfs/rtlog"
)

// lockTimeout is how long PushRawTag/RemoveTag* retry acquiring a stream
// lock before giving up with rterrors.TagLocked.
const lockTimeout = 5 * time.Second

const lockPollInterval = 10 * time.Millisecond

// fsLock is a scoped resource representing an acquired stream lock: a
// sibling file created with O_EXCL. Release deletes it. Implements the
// Absent -> Locked state transition and, on release, Durable -> Absent
// (or any-failure -> Absent).
type fsLock struct {
	path string
}

// acquireLock creates lockPath exclusively, retrying on EEXIST until
// lockTimeout elapses.
func acquireLock(ctx context.Context, lockPath string) (*fsLock, error) {
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o777)
		if err == nil {
			f.Close()
			return &fsLock{path: lockPath}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, rterrors.TagLocked{Tag: lockPath}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// release deletes the lock file. Failure is logged, never surfaced --
// per the spec's propagation policy, lock cleanup failures are not fatal.
func (l *fsLock) release(ctx context.Context) {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		rtlog.GetLogger(ctx, "path", l.path).WithError(err).Warn("failed to remove tag lock file")
	}
}
