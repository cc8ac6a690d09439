package pipeline

import "errors"

// Lifecycle misuse errors. These surface synchronously to the caller;
// storage failures never do.
var (
	// ErrNotRunning is returned when Observe or Stop is called before
	// Start or after Stop.
	ErrNotRunning = errors.New("pipeline is not running")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("pipeline already started")
)

// errStoreClosed is reported when a write races with a forced shutdown close.
var errStoreClosed = errors.New("detection store is closed")

