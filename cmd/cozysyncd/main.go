package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cozysync/engine/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "cozysyncd",
	Short: "cozysync bidirectional file-sync daemon",
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default: search ~/.cozysync, ~/.config/cozysync)")
}

func main() {
	instanceID := uuid.NewString()
	logging.Setup(logging.Options{Level: slog.LevelInfo, InstanceID: instanceID})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func configPathFlag(cmd *cobra.Command) string {
	if cmd.Flag("config").Changed {
		v, _ := cmd.Flags().GetString("config")
		return v
	}
	return ""
}
