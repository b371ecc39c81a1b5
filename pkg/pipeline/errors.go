package pipeline

import (
	"errors"
	"fmt"
)

// Fatal errors. Everything else during a run is absorbed and logged.
var (
	// ErrAuth indicates access token acquisition failed. The run aborts
	// before any fetch starts.
	ErrAuth = errors.New("access token acquisition failed")

	// ErrCountUnavailable indicates the total record count could not be
	// obtained, so no batch plan can be built.
	ErrCountUnavailable = errors.New("total record count unavailable")
)

// FetchError reports one page that failed after exhausting its retries.
// The page's contribution to the run is empty; the run continues.
type FetchError struct {
	Offset   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("page at offset %d failed after %d attempts: %v", e.Offset, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SyncWriteError reports one destination write chunk that failed. Chunks
// written before it stay applied; the write is not retried.
type SyncWriteError struct {
	Op    string // "insert" or "update"
	Count int    // records in the failed chunk
	Err   error
}

func (e *SyncWriteError) Error() string {
	return fmt.Sprintf("%s of %d records failed: %v", e.Op, e.Count, e.Err)
}

func (e *SyncWriteError) Unwrap() error {
	return e.Err
}
