package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cozysync/engine/internal/config"
	"github.com/cozysync/engine/internal/store"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the last synced change-feed sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	cfg, err := config.Load(configPathFlag(cmd))
	if err != nil {
		return err
	}

	storePath := filepath.Join(cfg.DataDir, ".cozysync.db")
	st, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("status: open store: %w", err)
	}
	defer st.Close()

	seq, err := st.GetLocalSeq()
	if err != nil {
		return fmt.Errorf("status: read local seq: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "data_dir: %s\nserver: %s\nlocal_seq: %d\n", cfg.DataDir, cfg.ServerURL, seq)
	return nil
}
