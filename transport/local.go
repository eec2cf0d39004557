package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/machinebox/progress"
)

// Local copies files between two paths on the same filesystem in
// bounded chunks. It stands in for a real network transport and is the
// default backend for tests and the CLI's local mode.
type Local struct {
	fs billy.Filesystem

	// ChunkDelay is an optional pause after each chunk, simulating
	// network latency. Zero means full speed.
	ChunkDelay time.Duration
}

// NewLocal creates a local transport over the given filesystem.
func NewLocal(fsys billy.Filesystem) *Local {
	return &Local{fs: fsys}
}

// Transfer copies the source to a staging file next to the destination,
// reporting progress after every chunk, then renames it into place.
func (t *Local) Transfer(ctx context.Context, req Request, progressFn ProgressFunc) error {
	dest := req.Destination()

	if !req.Overwrite {
		if _, err := t.fs.Stat(dest); err == nil {
			return fmt.Errorf("destination already exists: %s", dest)
		}
	}

	src, err := t.fs.Open(req.Source())
	if err != nil {
		return fmt.Errorf("unable to open source file: %w", err)
	}
	defer src.Close()

	if dir := filepath.Dir(dest); dir != "." {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("unable to create destination directory: %w", err)
		}
	}

	stage := dest + PartialSuffix
	dst, err := t.fs.OpenFile(stage, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("unable to open staging file: %w", err)
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}

	r := progress.NewReader(src)
	var reported int64
	for {
		select {
		case <-ctx.Done():
			dst.Close()
			return ctx.Err()
		default:
		}

		_, copyErr := io.CopyN(dst, r, chunkSize)
		if n := r.N(); n > reported {
			reported = n
			if progressFn != nil {
				progressFn(n)
			}
		}
		if copyErr == io.EOF {
			break
		}
		if copyErr != nil {
			dst.Close()
			return fmt.Errorf("file copy error occurred: %w", copyErr)
		}

		if t.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				dst.Close()
				return ctx.Err()
			case <-time.After(t.ChunkDelay):
			}
		}
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("unable to close staging file: %w", err)
	}
	if err := t.fs.Rename(stage, dest); err != nil {
		return fmt.Errorf("unable to move staging file into place: %w", err)
	}
	return nil
}

// Discard removes the staging file, if any.
func (t *Local) Discard(ctx context.Context, req Request) error {
	err := t.fs.Remove(req.Destination() + PartialSuffix)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
