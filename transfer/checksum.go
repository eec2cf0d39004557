package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
)

// checksumChunkSize bounds the read buffer so memory use stays
// independent of file size.
const checksumChunkSize = 64 * 1024

// ComputeDigest streams the file through SHA-256 and returns the
// digest as a lowercase hex string. I/O failures (e.g. the file
// disappearing mid-read) are wrapped in ErrChecksum so the scheduler
// treats them as retryable transfer failures.
func ComputeDigest(fsys billy.Filesystem, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: unable to open %s: %v", ErrChecksum, path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrChecksum, path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
