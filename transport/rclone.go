package transport

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/accounting"
	rsync "github.com/rclone/rclone/fs/sync"
)

// Rclone moves bytes through a configured rclone backend (S3, or
// anything else rclone can open). The remote Fs acts as the
// destination/source directory; a request's RemotePath must resolve to
// its basename inside that directory.
//
// Progress is coarser than the local transport's: rclone's accounting
// is polled at PollInterval rather than reported per chunk.
type Rclone struct {
	remote fs.Fs

	// PollInterval is how often rclone's transfer accounting is
	// sampled for progress reports.
	PollInterval time.Duration
}

// NewRclone creates a transport on top of an open rclone filesystem.
func NewRclone(remote fs.Fs) *Rclone {
	return &Rclone{remote: remote, PollInterval: time.Second}
}

// Transfer copies one file between the local directory and the remote.
func (t *Rclone) Transfer(ctx context.Context, req Request, progressFn ProgressFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx = InjectConfig(ctx)
	ctx, err := InjectFileList(ctx, []string{filepath.Base(req.Source())})
	if err != nil {
		return err
	}

	flocal, err := fs.NewFs(ctx, filepath.Dir(req.LocalPath))
	if err != nil {
		return fmt.Errorf("unable to open local directory: %w", err)
	}

	if progressFn != nil && t.PollInterval > 0 {
		go t.pollProgress(ctx, progressFn)
	}

	if req.Upload {
		return rsync.CopyDir(ctx, t.remote, flocal, false)
	}
	return rsync.CopyDir(ctx, flocal, t.remote, false)
}

// Discard is a no-op: rclone cleans up its own partial remote objects.
func (t *Rclone) Discard(ctx context.Context, req Request) error {
	return nil
}

func (t *Rclone) pollProgress(ctx context.Context, progressFn ProgressFunc) {
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			progressFn(accounting.Stats(ctx).GetBytes())
		}
	}
}
