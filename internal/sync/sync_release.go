//go:build !deadlock

// Package sync provides the lock types used by the session registry, the
// bridge and the event hub. Default builds alias the standard library;
// building with -tags deadlock swaps in go-deadlock so lock-order bugs
// in the broadcast loops show up as reports instead of hangs.
package sync

import "sync"

type Mutex = sync.Mutex

type RWMutex = sync.RWMutex

type Locker = sync.Locker

type Once = sync.Once

type WaitGroup = sync.WaitGroup

// Detecting reports whether deadlock detection is compiled in and active.
func Detecting() bool { return false }
