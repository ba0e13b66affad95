package helpers

import (
	"sync"
	"time"

	"github.com/temoto/alive/v2"
)

func WithLock(l sync.Locker, f func()) {
	l.Lock()
	defer l.Unlock()
	f()
}

func WithLockError(l sync.Locker, f func() error) error {
	l.Lock()
	defer l.Unlock()
	return f()
}

// StopWait stops `a` and waits for pending tasks at most `timeout`.
// Returns false if some tasks were abandoned.
func StopWait(a *alive.Alive, timeout time.Duration) bool {
	a.Stop()
	select {
	case <-a.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
