package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coldwine/intelwatch/internal/annotate"
	"github.com/coldwine/intelwatch/internal/chat"
	cfgpkg "github.com/coldwine/intelwatch/internal/config"
	"github.com/coldwine/intelwatch/internal/dedup"
	"github.com/coldwine/intelwatch/internal/esi"
	"github.com/coldwine/intelwatch/internal/feed"
	logpkg "github.com/coldwine/intelwatch/internal/log"
	"github.com/coldwine/intelwatch/internal/storage"
	"github.com/coldwine/intelwatch/internal/universe"
	"github.com/coldwine/intelwatch/internal/watcher"
)

var version = "0.1.0-dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "intelwatch",
		Short:   "Tail EVE chat logs and maintain live intel state",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion daemon",
		RunE:  runDaemon,
	}

	recentCmd := &cobra.Command{
		Use:   "recent [count]",
		Short: "Print recent intel from the history database",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRecent,
	}

	neighboursCmd := &cobra.Command{
		Use:   "neighbours <system>",
		Short: "List systems within jump range on the configured map",
		Args:  cobra.ExactArgs(1),
		RunE:  runNeighbours,
	}
	neighboursCmd.Flags().Int("jumps", 2, "Maximum jump distance")

	roomsCmd := &cobra.Command{
		Use:   "rooms",
		Short: "List the monitored room names from config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			for _, room := range cfg.Rooms {
				fmt.Fprintln(cmd.OutOrStdout(), room)
			}
			return nil
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history older than the configured retention",
		RunE:  runPrune,
	}

	rootCmd.AddCommand(runCmd, recentCmd, neighboursCmd, roomsCmd, pruneCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return err
	}
	graph, err := cfg.BuildGraph()
	if err != nil {
		return fmt.Errorf("build region graph: %w", err)
	}

	var store *storage.Store
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return err
		}
		store, err = storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open history db: %w", err)
		}
	}
	events := logpkg.NewEventLog(filepath.Dir(cfg.DBPath))

	esiCfg := esi.DefaultConfig()
	esiCfg.BaseURL = cfg.ESIBaseURL
	esiCfg.ShipDataURL = cfg.ShipDataURL
	lookup := esi.New(esiCfg)
	if cfg.ShipParser && cfg.ShipDataURL != "" {
		if err := lookup.LoadShipIndex(context.Background()); err != nil {
			log.Printf("warning: ship index unavailable: %v (ship links disabled)", err)
			cfg.ShipParser = false
		}
	}

	settings := chat.NewSettings(graph)
	settings.SetMaxAge(cfg.MaxMessageAge)
	settings.SetFreshness(cfg.Freshness)
	settings.SetShipParser(cfg.ShipParser)
	settings.SetCharacterParser(cfg.CharacterParser)

	sink := feed.New(settings, feed.Options{
		Store:         store,
		Events:        events,
		Out:           os.Stdout,
		AlarmDistance: cfg.AlarmDistance,
	})
	queue := annotate.NewQueue(0)
	super := chat.NewSupervisor(settings, dedup.NewRegistry(), lookup, queue, sink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The supervisor outlives the signal context so the final offsets
	// snapshot can still be served after shutdown begins.
	superCtx, superCancel := context.WithCancel(context.Background())
	defer superCancel()
	superDone := make(chan struct{})
	go func() {
		super.Start(superCtx)
		close(superDone)
	}()
	go queue.Start(superCtx)
	super.SetEventLog(events)

	super.UpdateRoomNames(cfg.Rooms)
	if offsets, err := chat.LoadOffsets(cfg.OffsetsPath); err != nil {
		log.Printf("warning: could not load offsets: %v", err)
	} else if len(offsets) > 0 {
		super.RestoreOffsets(offsets)
	}

	watch, err := watcher.New(cfg.LogDir, super)
	if err != nil {
		return fmt.Errorf("watch %s: %w", cfg.LogDir, err)
	}
	defer watch.Close()
	go func() {
		if err := watch.Start(ctx); err != nil {
			log.Printf("watcher failed: %v", err)
		}
		stop()
	}()

	log.Printf("intelwatch %s watching %s (%d rooms, %d systems)",
		version, cfg.LogDir, len(cfg.Rooms), graph.Len())

	saveOffsets := func() {
		if err := chat.SaveOffsets(cfg.OffsetsPath, super.Offsets()); err != nil {
			log.Printf("warning: could not save offsets: %v", err)
		}
	}

	offsetTick := time.NewTicker(30 * time.Second)
	defer offsetTick.Stop()
	pruneTick := time.NewTicker(time.Hour)
	defer pruneTick.Stop()

	for {
		select {
		case <-ctx.Done():
			saveOffsets()
			superCancel()
			<-superDone
			return nil
		case <-offsetTick.C:
			saveOffsets()
		case <-pruneTick.C:
			if store == nil || cfg.HistoryMaxAge <= 0 {
				continue
			}
			n, err := store.PruneBefore(time.Now().Add(-cfg.HistoryMaxAge))
			if err != nil {
				log.Printf("warning: prune failed: %v", err)
			} else if n > 0 {
				log.Printf("pruned %d history rows", n)
			}
		}
	}
}

func runRecent(cmd *cobra.Command, args []string) error {
	count := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("bad count %q", args[0])
		}
		count = n
	}

	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	rows, err := store.RecentMessages(count)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, row := range rows {
		line := fmt.Sprintf("%s [%s] %s> %s (%s)",
			row.Posted.Format("2006-01-02 15:04:05"), row.Room, row.User, row.Text, row.Status)
		if row.Status == "alarm" {
			if tier, ok := universe.DefaultAlarmColors.TierFor(now.Sub(row.Posted)); ok {
				line += " " + tier.Color
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

func runNeighbours(cmd *cobra.Command, args []string) error {
	jumps, err := cmd.Flags().GetInt("jumps")
	if err != nil {
		return err
	}

	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return err
	}
	graph, err := cfg.BuildGraph()
	if err != nil {
		return fmt.Errorf("build region graph: %w", err)
	}
	hops, err := graph.Neighbours(args[0], jumps)
	if err != nil {
		return err
	}

	sort.Slice(hops, func(i, j int) bool {
		if hops[i].Distance != hops[j].Distance {
			return hops[i].Distance < hops[j].Distance
		}
		return hops[i].System.Name < hops[j].System.Name
	})
	for _, hop := range hops {
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", hop.Distance, hop.System.Name)
	}
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	n, err := store.PruneBefore(time.Now().Add(-cfg.HistoryMaxAge))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d rows\n", n)
	return nil
}
