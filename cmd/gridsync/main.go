package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gridsync/gridsync/pkg/api"
	"github.com/gridsync/gridsync/pkg/auth"
	"github.com/gridsync/gridsync/pkg/config"
	"github.com/gridsync/gridsync/pkg/log"
	"github.com/gridsync/gridsync/pkg/manager"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gridsync",
	Short: "Gridsync - incremental sync for spreadsheet-backed datasets",
	Long: `Gridsync mirrors spreadsheet-backed tabular data through a versioned
change log: clients fetch only what changed since their last known
version, detect when incremental catch-up is no longer possible, and
fall back safely to a full resync, on top of a tiered cache that
serves data immediately and survives provider outages.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Gridsync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(truncateCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		File:       cfg.Log.File,
	})
	return cfg, nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the gridsync API server",
	Long: `Run the API server that owns the authoritative sheet data and the
change log, serving snapshot and delta requests. Sheets bound to CSV
sources in the config are loaded and watched for edits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mgr, err := manager.NewManager(&manager.Config{
			DataDir:          cfg.Server.DataDir,
			DefaultKeyColumn: cfg.Server.DefaultKeyColumn,
		})
		if err != nil {
			return fmt.Errorf("failed to create manager: %w", err)
		}
		defer mgr.Close()

		for _, src := range cfg.Server.Sources {
			if err := mgr.BindSource(src); err != nil {
				return fmt.Errorf("failed to bind source %s: %w", src.Sheet, err)
			}
		}

		policy := auth.FromSecret(cfg.Server.Secret)
		srv := api.NewServer(mgr, policy)
		srv.Version = Version

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(cfg.Server.Listen)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		}
	},
}

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Apply a row edit directly to the data directory",
	Long: `Apply a single row edit against the server's data directory. For
maintenance use while the server is stopped; normal edits flow through
bound CSV sources.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sheet, _ := cmd.Flags().GetString("sheet")
		row, _ := cmd.Flags().GetInt("row")
		key, _ := cmd.Flags().GetString("key")
		rawValues, _ := cmd.Flags().GetString("values")

		mgr, err := manager.NewManager(&manager.Config{
			DataDir:          cfg.Server.DataDir,
			DefaultKeyColumn: cfg.Server.DefaultKeyColumn,
		})
		if err != nil {
			return err
		}
		defer mgr.Close()

		id, err := mgr.ApplyEdit(sheet, row, key, strings.Split(rawValues, ","))
		if err != nil {
			return err
		}
		if id == 0 {
			fmt.Println("Edit not tracked (no key, header row, or no change)")
			return nil
		}
		fmt.Printf("Edit recorded as change %d\n", id)
		return nil
	},
}

var truncateCmd = &cobra.Command{
	Use:   "truncate-log",
	Short: "Clear a sheet's change log (clients will resync)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sheet, _ := cmd.Flags().GetString("sheet")

		mgr, err := manager.NewManager(&manager.Config{
			DataDir:          cfg.Server.DataDir,
			DefaultKeyColumn: cfg.Server.DefaultKeyColumn,
		})
		if err != nil {
			return err
		}
		defer mgr.Close()

		if err := mgr.TruncateLog(sheet); err != nil {
			return err
		}
		fmt.Printf("Change log for %s cleared\n", sheet)
		return nil
	},
}

func init() {
	editCmd.Flags().String("sheet", "", "sheet name")
	editCmd.Flags().Int("row", 2, "spreadsheet row index (1 is the header row)")
	editCmd.Flags().String("key", "", "business key of the row")
	editCmd.Flags().String("values", "", "comma-separated cell values aligned to headers")
	_ = editCmd.MarkFlagRequired("sheet")
	_ = editCmd.MarkFlagRequired("key")

	truncateCmd.Flags().String("sheet", "", "sheet name")
	_ = truncateCmd.MarkFlagRequired("sheet")
}
