package ports

import "context"

// FileWatcher defines the contract for reloading a file when it changes on
// disk.
type FileWatcher interface {
	// Start begins watching.
	Start(ctx context.Context) error

	// Stop terminates watching.
	Stop() error

	// IsRunning returns true if the watcher is active.
	IsRunning() bool
}
