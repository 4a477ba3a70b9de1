package engine

import (
	"errors"
	"fmt"
)

// Caller-input errors. Engine-level failures (probe, convert, download) are
// never surfaced through these; they are recorded as data on descriptors,
// outcomes and report records.
var (
	// ErrNotFound means the engine name is not in the registry.
	ErrNotFound = errors.New("engine not found")

	// ErrValidation means the caller's input was rejected.
	ErrValidation = errors.New("validation failed")

	// ErrNotApplicable means a download was requested for an engine that
	// does not need one.
	ErrNotApplicable = errors.New("engine does not require a download")

	// ErrDownloadInProgress means a download for this engine is already
	// running.
	ErrDownloadInProgress = errors.New("download already in progress")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
