package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gyanpath/gyanpath-agent/pkg/api"
	"github.com/gyanpath/gyanpath-agent/pkg/config"
	"github.com/gyanpath/gyanpath-agent/pkg/connectivity"
	"github.com/gyanpath/gyanpath-agent/pkg/downloader"
	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/gateway"
	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/outbox"
	"github.com/gyanpath/gyanpath-agent/pkg/progress"
	"github.com/gyanpath/gyanpath-agent/pkg/remote"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the offline agent",
	Long: `Run the full agent: the caching gateway the browser points at, the
local control API the GyanPath pages talk to, the connectivity prober, and
the outbox drain loop. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runAgent(cfg)
	},
}

func runAgent(cfg *config.Config) error {
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := log.WithComponent("agent")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	client := remote.NewClient(cfg.RemoteBaseURL, cfg.AuthToken)

	dl := downloader.New(store, client, broker, cfg.DataDir)

	ob := outbox.New(store, client, broker, cfg.SyncInterval)

	proberCfg := connectivity.DefaultConfig()
	proberCfg.Interval = cfg.ProbeInterval
	prober := connectivity.NewProber(client.Health, broker, proberCfg)
	ob.SetOnlineCheck(prober.Online)

	tracker := progress.NewTracker(store, ob, cfg.FlushInterval)

	// The manifest's generation is the shell build's content hash; when
	// present it wins over the configured generation.
	generation := cfg.CacheGeneration
	var manifest *gateway.Manifest
	if cfg.PrecacheManifest != "" {
		manifest, err = gateway.LoadManifest(cfg.PrecacheManifest)
		if err != nil {
			return err
		}
		if manifest.Generation != "" {
			generation = manifest.Generation
		}
	}

	cache, err := gateway.NewCache(store, cfg.DataDir, generation, cfg.RuntimeQuotaBytes)
	if err != nil {
		return err
	}
	if pruned, err := cache.Prune(); err != nil {
		logger.Warn().Err(err).Msg("cache prune failed")
	} else if pruned > 0 {
		logger.Info().Int("entries", pruned).Msg("pruned stale cache generations")
	}

	upstream := cfg.UpstreamURL
	if upstream == "" {
		upstream = cfg.RemoteBaseURL
	}
	gw, err := gateway.New(gateway.Config{
		Addr:        cfg.GatewayAddr,
		UpstreamURL: upstream,
		OfflinePage: cfg.OfflinePage,
	}, cache, broker)
	if err != nil {
		return err
	}
	gw.SetOnlineCheck(prober.Online)

	apiServer := api.NewServer(cfg.APIAddr, api.Deps{
		Store:      store,
		Downloader: dl,
		Tracker:    tracker,
		Outbox:     ob,
		Gateway:    gw,
		Prober:     prober,
		Broker:     broker,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prober.Start()
	defer prober.Stop()
	ob.Start()
	defer ob.Stop()
	tracker.Start()
	defer tracker.Stop()

	errCh := make(chan error, 2)
	go func() {
		if err := gw.Start(ctx); err != nil {
			errCh <- fmt.Errorf("gateway: %w", err)
		}
	}()
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("control API: %w", err)
		}
	}()

	if manifest != nil {
		go gw.Warm(ctx, manifest)
	}

	// Reconnects trigger an immediate drain instead of waiting for the
	// next outbox tick.
	go drainOnReconnect(ctx, broker, ob)

	logger.Info().
		Str("gateway", cfg.GatewayAddr).
		Str("api", cfg.APIAddr).
		Str("generation", generation).
		Msg("agent running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		cancel()
		return err
	}

	cancel()
	return nil
}

func drainOnReconnect(ctx context.Context, broker *events.Broker, ob *outbox.Outbox) {
	logger := log.WithComponent("agent")
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for {
		select {
		case ev, open := <-sub:
			if !open {
				return
			}
			if ev.Type != types.EventNetworkOnline {
				continue
			}
			if _, _, err := ob.DrainOnce(ctx); err != nil {
				logger.Warn().Err(err).Msg("drain after reconnect failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
