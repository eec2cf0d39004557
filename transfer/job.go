package transfer

import (
	"time"
)

// Status is the lifecycle state of a transfer job.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTransferring Status = "transferring"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Direction indicates which way the payload moves.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

const (
	// DefaultChunkSize is the number of bytes moved per transport unit.
	DefaultChunkSize = 1 << 20
	// DefaultRetryAttempts is the number of times a failed job is retried.
	DefaultRetryAttempts = 3
)

// Options tunes a single transfer request. Use DefaultOptions as the
// starting point; a nil *Options passed to RequestTransfer means defaults.
type Options struct {
	// ChunkSize is the number of bytes per transport unit.
	ChunkSize int64
	// RetryAttempts caps how many times a failed job is re-enqueued.
	RetryAttempts int
	// ValidateChecksum computes a SHA-256 digest of the source before
	// the bytes move. Only honored for uploads.
	ValidateChecksum bool
	// Overwrite allows replacing an existing destination entry.
	Overwrite bool
	// ExpectedSizeBytes is the payload size for downloads, where the
	// local file does not exist yet. Leave zero if unknown; progress
	// percentages are then reported as zero until completion.
	ExpectedSizeBytes int64
}

// DefaultOptions returns the option set applied when the caller passes nil.
func DefaultOptions() Options {
	return Options{
		ChunkSize:        DefaultChunkSize,
		RetryAttempts:    DefaultRetryAttempts,
		ValidateChecksum: true,
	}
}

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	return o
}

// Job is one tracked request to move a single file in one direction.
// The record store owns every Job instance; callers only ever see
// value snapshots taken under the store lock.
type Job struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Direction    Direction `json:"direction"`
	LocalPath    string    `json:"local_path"`
	RemotePath   string    `json:"remote_path"`
	Status       Status    `json:"status"`

	SizeBytes        int64 `json:"size_bytes"`
	TransferredBytes int64 `json:"transferred_bytes"`
	ProgressPercent  int   `json:"progress_percent"`

	// Checksum is the lowercase hex SHA-256 of the source, populated
	// before the bytes move. Uploads only.
	Checksum string `json:"checksum,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	LastError  string `json:"last_error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`

	opts Options
}

// Opts returns the options the job was created with.
func (j *Job) Opts() Options { return j.opts }
