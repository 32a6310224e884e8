package filestore

import (
	"context"
	"os"

	"github.com/gofrs/flock"

	"github.com/agentutil/membox/internal/memory"
)

// withLock runs fn while holding an exclusive advisory lock scoped to
// the project's file. Acquisition polls at the configured retry interval
// and gives up after the configured timeout with a LockTimeout error —
// it never spins forever. Unrelated projects use distinct lock files and
// never contend.
func (s *Store) withLock(op, project string, fn func() error) error {
	fl := flock.New(s.lockPath(project))

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LockTimeout)
	defer cancel()

	ok, err := fl.TryLockContext(ctx, s.cfg.LockRetryInterval)
	if err != nil && ctx.Err() == nil {
		return memory.E(memory.KindStorage, op, "acquiring file lock", err)
	}
	if !ok {
		return memory.Ef(memory.KindLockTimeout, op,
			"lock on %q not acquired within %s", project, s.cfg.LockTimeout)
	}
	defer fl.Unlock()

	return fn()
}

// withTwoLocks locks two projects in a fixed (lexical) order so that
// concurrent rename pairs cannot deadlock.
func (s *Store) withTwoLocks(op, a, b string, fn func() error) error {
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	return s.withLock(op, first, func() error {
		return s.withLock(op, second, fn)
	})
}

// removeLockFile discards a project's lock file. Best effort; called
// after the project file itself is gone.
func (s *Store) removeLockFile(project string) {
	os.Remove(s.lockPath(project))
}
