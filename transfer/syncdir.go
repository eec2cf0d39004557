package transfer

import (
	"fmt"
	"os"
	"path"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// NeedsSyncFunc decides whether a local directory entry should be
// transferred to the given remote path. The default (nil) policy is
// to always sync; a real deployment plugs in a timestamp or size
// comparison against the remote side.
type NeedsSyncFunc func(local os.FileInfo, remotePath string) bool

// SyncDirectory diffs a local directory against a remote target and
// enqueues one upload per file needing transfer, returning the created
// job ids. Hidden (dot-prefixed) entries and subdirectories are
// skipped. The policy is best-effort: a single entry's failure is
// logged and does not abort the batch.
func (o *Orchestrator) SyncDirectory(localDir, remoteDir, connectionID string) ([]string, error) {
	entries, err := o.fs.ReadDir(localDir)
	if err != nil {
		return nil, fmt.Errorf("unable to list directory %s: %w", localDir, err)
	}

	var ids []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() {
			continue
		}

		remotePath := path.Join(remoteDir, entry.Name())
		if o.needsSync != nil && !o.needsSync(entry, remotePath) {
			logger.WithField("file", entry.Name()).Debug("Skipping entry, already in sync")
			continue
		}

		localPath := o.fs.Join(localDir, entry.Name())
		id, err := o.RequestTransfer(connectionID, DirectionUpload, localPath, remotePath, nil)
		if err != nil {
			logger.WithField("file", entry.Name()).WithError(err).Warn("Failed to enqueue transfer for entry")
			continue
		}
		ids = append(ids, id)
	}

	logger.WithFields(logger.Fields{
		"dir":   localDir,
		"count": len(ids),
	}).Info("Directory sync enqueued")
	return ids, nil
}
