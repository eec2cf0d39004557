package transport

import (
	"context"
	"strings"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/operations"
)

// RemoteFileInfo describes one entry on a remote backend.
type RemoteFileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ListRemote enumerates the files on an rclone remote, optionally
// restricted to names under the given prefix. Used by the status
// command to compare the remote side against the transfer history.
func ListRemote(ctx context.Context, f fs.Fs, prefix string) ([]RemoteFileInfo, error) {
	var infos []RemoteFileInfo
	err := operations.ListFn(ctx, f, func(o fs.Object) {
		name := o.Remote()
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			return
		}
		infos = append(infos, RemoteFileInfo{
			Name:    name,
			Size:    o.Size(),
			ModTime: o.ModTime(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}
