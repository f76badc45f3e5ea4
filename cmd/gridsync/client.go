package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridsync/gridsync/pkg/cache"
	"github.com/gridsync/gridsync/pkg/client"
	"github.com/gridsync/gridsync/pkg/config"
	"github.com/gridsync/gridsync/pkg/events"
	"github.com/gridsync/gridsync/pkg/sync"
	"github.com/spf13/cobra"
)

func newClient(cfg *config.Config) *client.Client {
	return client.New(cfg.Client.ServerURL, cfg.Client.Token,
		client.WithTimeout(cfg.Client.CallTimeout))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <sheet>",
	Short: "Fetch and print a sheet's full snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		snap, err := newClient(cfg).Snapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes <sheet>",
	Short: "Fetch and print changes since a version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		since, _ := cmd.Flags().GetUint64("since")
		delta, err := newClient(cfg).Changes(cmd.Context(), args[0], since)
		if err != nil {
			return err
		}
		return printJSON(delta)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the sync client for the configured views",
	Long: `Run the sync client until interrupted: bootstrap each configured view
from the tiered cache or a snapshot, then reconcile on every poll tick,
printing state transitions as they happen.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Client.Views) == 0 {
			return fmt.Errorf("no views configured")
		}

		tiered, err := openTieredCache(cfg)
		if err != nil {
			return err
		}
		defer tiered.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		sub := broker.Subscribe()

		syncer := sync.New(newClient(cfg), tiered, broker, sync.Config{
			PollInterval: cfg.Client.PollInterval,
			CallTimeout:  cfg.Client.CallTimeout,
		})
		for _, view := range cfg.Client.Views {
			if err := syncer.Register(view.ID, view.Sheet); err != nil {
				return err
			}
		}
		syncer.Start()
		defer syncer.Stop()

		// First pass right away instead of waiting a full interval.
		for _, view := range cfg.Client.Views {
			if err := syncer.RequestRefresh(view.ID); err != nil {
				fmt.Fprintf(os.Stderr, "initial sync of %s failed: %v\n", view.ID, err)
			}
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case ev := <-sub:
				fmt.Printf("[%s] %s view=%s sheet=%s version=%d %s\n",
					ev.Timestamp.Format(time.RFC3339), ev.Type, ev.ViewID, ev.Sheet, ev.Version, ev.Message)
			case <-sigCh:
				return nil
			}
		}
	},
}

func openTieredCache(cfg *config.Config) (*cache.Layered, error) {
	local, err := cache.NewBoltCache(cfg.Client.LocalCachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}

	var shared cache.Cache
	if cfg.Client.SharedCacheDSN != "" {
		shared, err = cache.Open(cfg.Client.SharedCacheDSN)
		if err != nil {
			local.Close()
			return nil, fmt.Errorf("failed to open shared cache: %w", err)
		}
	} else {
		// No shared tier configured; the local file is tier 2 and an
		// in-process map stands in for tier 1.
		shared = cache.NewMemoryCache()
	}

	return cache.NewLayered(shared, local), nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the server's event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		ch, err := newClient(cfg).Watch(ctx)
		if err != nil {
			return err
		}
		for ev := range ch {
			fmt.Printf("[%s] %s sheet=%s view=%s version=%d %s\n",
				ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Sheet, ev.ViewID, ev.Version, ev.Message)
		}
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local view cache",
}

var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rename cached view keys from one prefix to another (one-shot)",
	Long: `Rename every cached view whose id starts with --from-prefix to use
--to-prefix instead. Guarded by a marker: running the same migration
twice is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from-prefix")
		to, _ := cmd.Flags().GetString("to-prefix")

		local, err := cache.NewBoltCache(cfg.Client.LocalCachePath)
		if err != nil {
			return err
		}
		defer local.Close()

		moved, err := local.MigrateKeys(from, to)
		if err != nil {
			return err
		}
		fmt.Printf("Migrated %d cached views\n", moved)
		return nil
	},
}

func init() {
	changesCmd.Flags().Uint64("since", 0, "last known version (0 means no prior state)")

	cacheMigrateCmd.Flags().String("from-prefix", "", "old view id prefix")
	cacheMigrateCmd.Flags().String("to-prefix", "", "new view id prefix")
	_ = cacheMigrateCmd.MarkFlagRequired("from-prefix")
	_ = cacheMigrateCmd.MarkFlagRequired("to-prefix")

	cacheCmd.AddCommand(cacheMigrateCmd)
}
