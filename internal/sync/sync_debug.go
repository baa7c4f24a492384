//go:build deadlock

package sync

import (
	"os"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Mutex reports lock waits longer than the detection timeout.
type Mutex = deadlock.Mutex

// RWMutex reports lock waits longer than the detection timeout.
type RWMutex = deadlock.RWMutex

type Locker = sync.Locker

type Once = sync.Once

type WaitGroup = sync.WaitGroup

// EnvDisable turns detection off in a deadlock build.
const EnvDisable = "IDEREMOTE_NO_DEADLOCK_DETECT"

// Detecting reports whether deadlock detection is compiled in and active.
func Detecting() bool { return !deadlock.Opts.Disable }

func init() {
	// Longer than the slowest terminal create plus one broadcast tick.
	deadlock.Opts.DeadlockTimeout = 30 * time.Second

	if os.Getenv(EnvDisable) != "" {
		deadlock.Opts.Disable = true
		return
	}

	deadlock.Opts.PrintAllCurrentGoroutines = true
	deadlock.Opts.LogBuf = os.Stderr
}
