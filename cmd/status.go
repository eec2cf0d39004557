package cmd

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hrz6976/relaymate/history"
	"github.com/hrz6976/relaymate/transport"
)

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func runStatus(configPath, remotePrefix string) error {
	db, err := openHistory()
	if err != nil {
		return fmt.Errorf("failed to open transfer history: %w", err)
	}

	stats, err := db.Summarize()
	if err != nil {
		return fmt.Errorf("failed to summarize transfer history: %w", err)
	}

	// Optionally compare against what the remote actually holds.
	if configPath != "" {
		s3cfg, err := loadS3Config(configPath)
		if err != nil {
			return err
		}
		ctx := transport.InjectConfig(context.Background())
		remote, err := transport.NewS3Backend(ctx, s3cfg)
		if err != nil {
			fmt.Printf("Remote: error connecting - %v\n", err)
		} else {
			fileInfos, err := transport.ListRemote(ctx, remote, remotePrefix)
			if err != nil {
				fmt.Printf("Remote: error listing files - %v\n", err)
			} else {
				var totalSize int64
				for _, fileInfo := range fileInfos {
					totalSize += fileInfo.Size
				}
				stats["remote"] = history.StatusSummary{
					Count: int64(len(fileInfos)),
					Size:  totalSize,
				}
			}
		}
	}

	if len(stats) == 0 {
		logger.Info("No transfer history")
		return nil
	}

	fmt.Printf("%-12s %-8s %-12s\n", "Status", "Count", "Total Size")
	fmt.Printf("%-12s %-8s %-12s\n", "------", "-----", "----------")
	for status, stat := range stats {
		fmt.Printf("%-12s %-8d %-12s\n", status, stat.Count, formatSize(stat.Size))
	}
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show transfer history statistics",
	Long:  "Display per-status counts and byte totals from the transfer history, optionally compared against the remote backend's contents",
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		remotePrefix, _ := cmd.Flags().GetString("prefix")
		if err := runStatus(configPath, remotePrefix); err != nil {
			cmd.PrintErrf("Failed to show status: %v\n", err)
		}
	},
}

func init() {
	statusCmd.Flags().StringP("config", "c", "", "Path to an S3 credentials file to also list the remote")
	statusCmd.Flags().String("prefix", "", "Only count remote files under this prefix")
	RootCmd.AddCommand(statusCmd)
}
