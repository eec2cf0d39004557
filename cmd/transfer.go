package cmd

import (
	"os"
	"os/signal"
	"syscall"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hrz6976/relaymate/transfer"
)

func runTransfer(o *transfer.Orchestrator, connectionID string, direction transfer.Direction, localPath, remotePath string, opts *transfer.Options) error {
	done := make(chan transfer.Event, 1)
	for _, name := range []transfer.EventName{
		transfer.EventCompleted,
		transfer.EventFailed,
		transfer.EventCancelled,
	} {
		o.On(name, func(ev transfer.Event) {
			select {
			case done <- ev:
			default:
			}
		})
	}
	o.On(transfer.EventProgress, func(ev transfer.Event) {
		logger.WithFields(logger.Fields{
			"job":     ev.JobID,
			"bytes":   ev.Job.TransferredBytes,
			"percent": ev.Job.ProgressPercent,
		}).Info("Transferring...")
	})
	o.On(transfer.EventRetrying, func(ev transfer.Event) {
		logger.WithFields(logger.Fields{
			"job":     ev.JobID,
			"attempt": ev.Job.RetryCount,
			"max":     ev.Job.MaxRetries,
			"error":   ev.Job.LastError,
		}).Warn("Transfer failed, will retry")
	})

	jobID, err := o.RequestTransfer(connectionID, direction, localPath, remotePath, opts)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			logger.Info("Received interrupt signal, cancelling transfer...")
			if err := o.CancelTransfer(jobID); err != nil {
				logger.WithError(err).Warn("Failed to cancel transfer")
			}
		case ev := <-done:
			switch ev.Name {
			case transfer.EventCompleted:
				logger.WithFields(logger.Fields{
					"job":      ev.JobID,
					"size":     ev.Job.SizeBytes,
					"checksum": ev.Job.Checksum,
				}).Info("Transfer completed")
				return nil
			case transfer.EventCancelled:
				logger.WithField("job", ev.JobID).Info("Transfer cancelled")
				return nil
			default:
				logger.WithFields(logger.Fields{
					"job":   ev.JobID,
					"error": ev.Job.LastError,
				}).Error("Transfer failed")
				os.Exit(1)
			}
		}
	}
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Queue a single file transfer and follow it to completion",
	Run: func(cmd *cobra.Command, args []string) {
		localPath, _ := cmd.Flags().GetString("local")
		remotePath, _ := cmd.Flags().GetString("remote")
		connectionID, _ := cmd.Flags().GetString("conn")
		directionStr, _ := cmd.Flags().GetString("direction")
		configPath, _ := cmd.Flags().GetString("config")
		chunkSize, _ := cmd.Flags().GetInt64("chunk-size")
		retries, _ := cmd.Flags().GetInt("retries")
		noChecksum, _ := cmd.Flags().GetBool("no-checksum")
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		if localPath == "" || remotePath == "" {
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

		opts := transfer.DefaultOptions()
		if chunkSize > 0 {
			opts.ChunkSize = chunkSize
		}
		if retries >= 0 {
			opts.RetryAttempts = retries
		}
		opts.ValidateChecksum = !noChecksum
		opts.Overwrite = overwrite

		if err := runTransfer(o, connectionID, transfer.Direction(directionStr), localPath, remotePath, &opts); err != nil {
			cmd.PrintErrf("Failed to run transfer: %v\n", err)
		}
	},
}

func init() {
	transferCmd.Flags().StringP("local", "l", "", "Path of the file on the local side")
	transferCmd.Flags().StringP("remote", "r", "", "Path of the file on the remote side")
	transferCmd.Flags().String("conn", "", "Connection identifier to run the transfer over")
	transferCmd.Flags().StringP("direction", "d", "upload", "Transfer direction (upload or download)")
	transferCmd.Flags().StringP("config", "c", "", "Path to an S3 credentials file (local transport if omitted)")
	transferCmd.Flags().Int64("chunk-size", 0, "Bytes per transport unit (default 1 MiB)")
	transferCmd.Flags().Int("retries", -1, "Retry attempts for failed transfers (default 3)")
	transferCmd.Flags().Bool("no-checksum", false, "Skip the pre-transfer checksum")
	transferCmd.Flags().Bool("overwrite", false, "Overwrite an existing destination file")
	RootCmd.AddCommand(transferCmd)
}
