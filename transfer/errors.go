package transfer

import "errors"

// ErrNotFound indicates an operation referenced an unknown job id.
var ErrNotFound = errors.New("transfer job not found")

// ErrValidation indicates the source file failed pre-transfer checks.
// Validation failures go through the same retry counter as any other
// failure, matching the uniform retry policy.
var ErrValidation = errors.New("validation failed")

// ErrChecksum indicates an I/O error while hashing the source file.
var ErrChecksum = errors.New("checksum failed")

// ErrTransport indicates an error while the bytes were moving.
var ErrTransport = errors.New("transport failed")

// ErrNotCancellable indicates a cancel request for a job that already
// reached a terminal state.
var ErrNotCancellable = errors.New("transfer cannot be cancelled in its current state")

// ErrJobActive indicates a cleanup request for a job that is still
// queued or transferring.
var ErrJobActive = errors.New("transfer job is still active")

// ErrClosed indicates the orchestrator has been shut down.
var ErrClosed = errors.New("orchestrator is closed")
