package exec

import "errors"

// Sentinel errors returned by compilation and execution. Callers match
// them with errors.Is; the wrapped message carries the specifics.
var (
	// ErrMissingFeed is returned when a reachable placeholder has no
	// entry in the feed dictionary, at compile or execution time.
	ErrMissingFeed = errors.New("missing feed")

	// ErrShapeMismatch is returned when a supplied value does not
	// satisfy a placeholder's compiled shape contract.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrAlreadyCommitted is returned by operations that require a
	// command buffer still open for encoding.
	ErrAlreadyCommitted = errors.New("command buffer already committed")

	// ErrNotCommitted is returned by WaitUntilCompleted on a command
	// buffer that was never committed.
	ErrNotCommitted = errors.New("command buffer not committed")

	// ErrBadPackage is returned when a serialized package cannot be
	// read back: missing files, corrupt data or an unknown format.
	ErrBadPackage = errors.New("bad package")
)
