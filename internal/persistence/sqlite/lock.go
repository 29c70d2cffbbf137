package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

const lockRetryDelay = 100 * time.Millisecond

// LockPath is the advisory lock file guarding syncs against the database at path.
func LockPath(path string) string {
	return path + ".lock"
}

// LockRuns implements domain.RunLocker with an flock on LockPath. Every call opens its
// own descriptor, so two handles in one process exclude each other as well.
func (s *Store) LockRuns(ctx context.Context) (func(), error) {
	fl := flock.New(LockPath(s.path))
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRunLocked, err)
	}
	if !ok {
		return nil, domain.ErrRunLocked
	}
	return func() { _ = fl.Unlock() }, nil
}
