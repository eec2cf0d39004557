package cmd

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hrz6976/relaymate/transfer"
)

func runSync(o *transfer.Orchestrator, localDir, remoteDir, connectionID string) error {
	var mu sync.Mutex
	remaining := make(map[string]bool)
	allDone := make(chan struct{}, 1)

	settle := func(ev transfer.Event) {
		mu.Lock()
		defer mu.Unlock()
		if !remaining[ev.JobID] {
			return
		}
		delete(remaining, ev.JobID)
		if len(remaining) == 0 {
			select {
			case allDone <- struct{}{}:
			default:
			}
		}
	}
	for _, name := range []transfer.EventName{
		transfer.EventCompleted,
		transfer.EventFailed,
		transfer.EventCancelled,
	} {
		o.On(name, settle)
	}

	ids, err := o.SyncDirectory(localDir, remoteDir, connectionID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logger.Info("No files to sync")
		return nil
	}

	// Jobs may already have settled while we registered them; check
	// the store once the id set is known.
	mu.Lock()
	for _, id := range ids {
		if job, err := o.GetJob(id); err == nil && !job.Status.Terminal() {
			remaining[id] = true
		}
	}
	pending := len(remaining)
	mu.Unlock()
	if pending == 0 {
		return nil
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("Received interrupt signal, cancelling remaining transfers...")
		mu.Lock()
		for id := range remaining {
			if err := o.CancelTransfer(id); err != nil {
				logger.WithField("job", id).WithError(err).Debug("Could not cancel job")
			}
		}
		mu.Unlock()
	case <-allDone:
	}

	stats := o.Stats()
	logger.WithFields(logger.Fields{
		"completed": stats[transfer.StatusCompleted],
		"failed":    stats[transfer.StatusFailed],
		"cancelled": stats[transfer.StatusCancelled],
	}).Info("Directory sync finished")
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Enqueue one upload per file in a local directory",
	Run: func(cmd *cobra.Command, args []string) {
		localDir, _ := cmd.Flags().GetString("local-dir")
		remoteDir, _ := cmd.Flags().GetString("remote-dir")
		connectionID, _ := cmd.Flags().GetString("conn")
		configPath, _ := cmd.Flags().GetString("config")

		if localDir == "" || remoteDir == "" {
			cmd.Help()
			return
		}

		s3cfg, err := loadS3Config(configPath)
		if err != nil {
			cmd.PrintErrf("%v\n", err)
			return
		}

		o, err := buildOrchestrator(s3cfg)
		if err != nil {
			cmd.PrintErrf("Failed to build orchestrator: %v\n", err)
			return
		}
		defer o.Close()

		if err := runSync(o, localDir, remoteDir, connectionID); err != nil {
			cmd.PrintErrf("Failed to run sync: %v\n", err)
		}
	},
}

func init() {
	syncCmd.Flags().String("local-dir", "", "Local directory to sync from")
	syncCmd.Flags().String("remote-dir", "", "Remote directory to sync into")
	syncCmd.Flags().String("conn", "", "Connection identifier to run the transfers over")
	syncCmd.Flags().StringP("config", "c", "", "Path to an S3 credentials file (local transport if omitted)")
	RootCmd.AddCommand(syncCmd)
}
