package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/hrz6976/relaymate/history"
	"github.com/hrz6976/relaymate/transfer"
	"github.com/hrz6976/relaymate/transport"
)

const defaultHistoryPath = "relaymate.db"

var historyHandle *history.DB

func historyPath() string {
	if p := os.Getenv("RELAYMATE_HISTORY_DB"); p != "" {
		return p
	}
	return defaultHistoryPath
}

func openHistory() (*history.DB, error) {
	if historyHandle != nil {
		return historyHandle, nil
	}
	conn, err := history.Connect(historyPath())
	if err != nil {
		return nil, err
	}
	historyHandle = history.NewDB(conn)
	return historyHandle, nil
}

// allowedExtensions reads the validator allow-list from the
// environment, falling back to the built-in image formats.
func allowedExtensions() []string {
	raw := os.Getenv("RELAYMATE_EXTENSIONS")
	if raw == "" {
		return nil
	}
	var exts []string
	for _, ext := range strings.Split(raw, ",") {
		if ext = strings.TrimSpace(ext); ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

// loadS3Config reads S3 credentials from a JSON file. An empty path
// means the local transport is used instead.
func loadS3Config(path string) (*transport.S3Credentials, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var creds transport.S3Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &creds, nil
}

// buildOrchestrator assembles the orchestrator with either the local
// or the rclone transport, and wires the history recorder to it.
func buildOrchestrator(s3cfg *transport.S3Credentials) (*transfer.Orchestrator, error) {
	fsys := osfs.New("/")

	var tr transport.Transport
	if s3cfg != nil {
		ctx := transport.InjectConfig(context.Background())
		remote, err := transport.NewS3Backend(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open remote backend: %w", err)
		}
		tr = transport.NewRclone(remote)
	} else {
		tr = transport.NewLocal(fsys)
	}

	o := transfer.New(transfer.Config{
		Transport:  tr,
		Filesystem: fsys,
		Extensions: allowedExtensions(),
	})

	if db, err := openHistory(); err == nil {
		history.NewRecorder(db).Attach(o)
	} else {
		return nil, fmt.Errorf("failed to open transfer history: %w", err)
	}
	return o, nil
}
