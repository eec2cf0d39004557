package history

import (
	"time"

	"gorm.io/gorm"
)

// Record archives the outcome of one transfer job. The in-memory
// record store holds live jobs only; terminal outcomes land here so
// they survive process restarts.
type Record struct {
	gorm.Model
	/* JobID is the orchestrator's job identifier. */
	JobID string `gorm:"uniqueIndex;not null"`
	/* ConnectionID references the external connection the job ran over. */
	ConnectionID string
	/* Direction is "upload" or "download". */
	Direction string `gorm:"not null"`
	/* LocalPath is the path of the file on the local side. */
	LocalPath string `gorm:"not null"`
	/* RemotePath is the path of the file on the remote side. */
	RemotePath string `gorm:"not null"`
	/* Status is the terminal status of the job. */
	Status string `gorm:"not null;index"`
	/* SizeBytes is the size of the payload. */
	SizeBytes int64 `gorm:"not null"`
	/* Checksum is the SHA-256 digest of the source, if computed. */
	Checksum string
	/* RetryCount is how many retry attempts the job consumed. */
	RetryCount int `gorm:"not null"`
	/* Error is the last failure message of the job. */
	Error string `gorm:"type:text"`
	/* StartedAt and EndedAt bracket the final attempt. */
	StartedAt *time.Time
	EndedAt   *time.Time
}
