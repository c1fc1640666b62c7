package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cozysync/engine/internal/config"
	"github.com/cozysync/engine/internal/engine"
	"github.com/cozysync/engine/internal/meta"
	"github.com/cozysync/engine/internal/side"
	"github.com/cozysync/engine/internal/store"
	"github.com/cozysync/engine/internal/watch"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "start the reconciliation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runDaemon(cmd)
		},
	}
	runCmd.Flags().String("data-dir", "", "override the datasite directory")
	runCmd.Flags().String("server", "", "override the cozy server URL")
	return runCmd
}

func runDaemon(cmd *cobra.Command) error {
	cfg, err := config.Load(configPathFlag(cmd))
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.ServerURL = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("run: create data dir: %w", err)
	}

	storePath := filepath.Join(cfg.DataDir, ".cozysync.db")
	st, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("run: open store: %w", err)
	}
	defer st.Close()

	platform, idMode := platformDefaults()

	localSide := side.NewLocalSide(cfg.DataDir)
	remoteSide := side.NewRemoteSide(cfg.ServerURL, cfg.Token)
	localSide.SetOpposite(remoteSide)
	remoteSide.SetOpposite(localSide)

	localWatcher := watch.NewLocalWatcher(cfg.DataDir, idMode, platform, st)
	remotePoller := watch.NewRemotePoller(remoteSide, idMode, platform, cfg.DataDir, st).
		WithPollInterval(cfg.RemotePoll)

	eng := engine.New(st, localSide, remoteSide,
		engine.WithWatchers(localWatcher, remotePoller),
		engine.WithRemoteHeartbeat(cfg.RemoteHeartbeat),
		engine.WithTrashingDelay(cfg.TrashingDelay),
	)

	go logEvents(eng)

	slog.Info("cozysyncd: starting", "data_dir", cfg.DataDir, "server", cfg.ServerURL, "watch_mode", cfg.WatchMode)
	if err := eng.Start(cmd.Context(), toEngineMode(cfg.WatchMode)); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run: engine stopped: %w", err)
	}
	return nil
}

// platformDefaults picks the id-derivation mode and platform
// restriction table matching the host this daemon runs on.
func platformDefaults() (meta.PlatformFamily, meta.IDMode) {
	switch runtime.GOOS {
	case "windows":
		return meta.PlatformWindows, meta.IDModeNTFS
	case "darwin":
		return meta.PlatformUnix, meta.IDModeHFS
	default:
		return meta.PlatformUnix, meta.IDModeCaseSensitive
	}
}

func toEngineMode(m config.WatchMode) engine.Mode {
	switch m {
	case config.WatchModePull:
		return engine.ModePull
	case config.WatchModePush:
		return engine.ModePush
	default:
		return engine.ModeFull
	}
}

func logEvents(eng *engine.Engine) {
	for ev := range eng.Events() {
		switch ev.Kind {
		case engine.EventSyncCurrent:
			slog.Debug("cozysyncd: synced", "seq", ev.Seq)
		case engine.EventOffline:
			slog.Warn("cozysyncd: offline")
		case engine.EventOnline:
			slog.Info("cozysyncd: online")
		default:
			slog.Debug("cozysyncd: event", "kind", ev.Kind.String())
		}
	}
}
