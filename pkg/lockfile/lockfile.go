// Package lockfile provides the exclusive advisory lock both stores are
// built on: flock(2) on a sidecar <target>.lock file. The kernel drops
// the lock when the holding process exits, so a crashed holder never
// leaves the lock orphaned.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned when the lock is not acquired within the wait
// budget. Contention is expected to be brief (locks are held only for one
// read-modify-write cycle), so a timeout usually means a stuck peer.
var ErrTimeout = errors.New("lock acquisition timed out")

// DefaultTimeout bounds the wait for a contended lock.
const DefaultTimeout = 10 * time.Second

const retryInterval = 25 * time.Millisecond

// Lock is a held exclusive lock. Release it when the operation's
// read-modify-write cycle is complete; never hold it across two
// invocations.
type Lock struct {
	f *os.File
}

// Acquire takes the exclusive lock guarding target, waiting up to timeout.
// The lock file is target + ".lock", created if absent. A timeout <= 0
// means DefaultTimeout.
func Acquire(target string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	lockPath := target + ".lock"
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{f: f}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN && err != unix.EINTR {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", lockPath, err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%s: %w", lockPath, ErrTimeout)
		}
		time.Sleep(retryInterval)
	}
}

// Release unlocks and closes the lock file. Safe to call once per Acquire.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("flock unlock: %w", err)
	}
	return l.f.Close()
}
