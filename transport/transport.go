// Package transport moves the bytes of a single transfer. The
// orchestration layer is agnostic to how they move: the local
// implementation copies between filesystem paths, the rclone
// implementation talks to a configured remote backend.
package transport

import "context"

// PartialSuffix marks in-flight staging files. A transfer writes to
// <destination><PartialSuffix> and renames on success, so an aborted
// run never leaves a half-written file at the destination path.
const PartialSuffix = ".part"

// Request describes one byte-movement operation.
type Request struct {
	// LocalPath and RemotePath identify the two endpoints.
	LocalPath  string
	RemotePath string
	// Upload is true when bytes move local -> remote.
	Upload bool
	// SizeBytes is the expected payload size, zero if unknown.
	SizeBytes int64
	// ChunkSize is the number of bytes per transport unit.
	ChunkSize int64
	// Overwrite allows replacing an existing destination entry.
	Overwrite bool
}

// Destination returns the path the bytes land at.
func (r Request) Destination() string {
	if r.Upload {
		return r.RemotePath
	}
	return r.LocalPath
}

// Source returns the path the bytes come from.
func (r Request) Source() string {
	if r.Upload {
		return r.LocalPath
	}
	return r.RemotePath
}

// ProgressFunc receives the total number of bytes moved so far. It is
// called from the transport's copy loop and must not block.
type ProgressFunc func(transferred int64)

// Transport moves bytes and reports byte-level progress. Transfer must
// return promptly when ctx is cancelled.
type Transport interface {
	Transfer(ctx context.Context, req Request, progress ProgressFunc) error
	// Discard removes any partial artifact a failed or cancelled
	// Transfer may have left behind. It is a no-op if none exists.
	Discard(ctx context.Context, req Request) error
}
