// Package main provides the town server binary: the websocket session hub, the
// REST town API and the gRPC health endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/admin"
	"github.com/cory-johannsen/covey/internal/config"
	"github.com/cory-johannsen/covey/internal/economy"
	"github.com/cory-johannsen/covey/internal/game/world"
	"github.com/cory-johannsen/covey/internal/gateway"
	"github.com/cory-johannsen/covey/internal/importer"
	"github.com/cory-johannsen/covey/internal/observability"
	"github.com/cory-johannsen/covey/internal/scripting"
	"github.com/cory-johannsen/covey/internal/server"
	"github.com/cory-johannsen/covey/internal/storage/backend"
	"github.com/cory-johannsen/covey/internal/town"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	healthInterval := flag.Duration("health-interval", 10*time.Second, "store health check interval")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting town server",
		zap.String("mode", cfg.Server.Mode),
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.String("admin_addr", cfg.Admin.Addr()),
	)

	// Load maps
	mapStart := time.Now()
	maps, err := world.LoadMapsFromDir(cfg.Town.MapDir)
	if err != nil {
		logger.Fatal("loading maps", zap.Error(err))
	}
	mapMgr, err := world.NewManager(maps)
	if err != nil {
		logger.Fatal("creating map manager", zap.Error(err))
	}
	logger.Info("maps loaded",
		zap.Strings("maps", mapMgr.MapNames()),
		zap.Duration("elapsed", time.Since(mapStart)),
	)

	store, err := backend.Open(ctx, cfg.Store, cfg.Database, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer store.Close()

	if cfg.Town.CatalogPath != "" {
		entries, err := importer.LoadCatalog(cfg.Town.CatalogPath)
		if err != nil {
			logger.Fatal("loading pet catalog", zap.Error(err))
		}
		n, err := importer.SeedCatalog(ctx, store, entries)
		if err != nil {
			logger.Fatal("seeding pet catalog", zap.Error(err))
		}
		logger.Info("pet catalog seeded", zap.Int("entries", n))
	}

	scriptMgr := scripting.NewManager(logger)
	defer scriptMgr.Close()
	var hooks town.Hooks
	var rewardHook economy.RewardHook
	if cfg.Town.ScriptDir != "" {
		if err := scriptMgr.LoadGlobal(cfg.Town.ScriptDir, cfg.Town.ScriptInstructionLimit); err != nil {
			logger.Fatal("loading town scripts", zap.Error(err))
		}
		hooks = scriptMgr
		rewardHook = scriptMgr
		logger.Info("town scripts loaded", zap.String("dir", cfg.Town.ScriptDir))
	}

	awards, err := economy.NewPolicy(store, economy.Options{
		Rewards:         cfg.Town.Rewards,
		Attempts:        cfg.Town.AwardAttempts,
		InitialInterval: cfg.Town.AwardInitialInterval,
		Hook:            rewardHook,
	}, logger)
	if err != nil {
		logger.Fatal("creating award policy", zap.Error(err))
	}

	towns := town.NewManager(mapMgr, town.Options{
		Capacity:        cfg.Town.Capacity,
		ChatCapacity:    cfg.Town.ChatCapacity,
		EmoteDuration:   cfg.Town.EmoteDuration,
		StartingBalance: cfg.Town.StartingBalance,
		InboxSize:       cfg.Town.InboxSize,
		SendBuffer:      cfg.HTTP.SendBuffer,
		StoreTimeout:    cfg.Store.Timeout,

		LeaderboardSize:       cfg.Town.LeaderboardSize,
		BroadcastLeaderboards: cfg.Town.BroadcastLeaderboards,
	}, town.Deps{
		Store:       store,
		Awards:      awards,
		Hooks:       hooks,
		Logger:      logger,
		Scripts:     scriptMgr,
		ScriptDir:   cfg.Town.ScriptDir,
		ScriptLimit: cfg.Town.ScriptInstructionLimit,
	})

	for _, dt := range cfg.Town.DefaultTowns {
		created, err := towns.Create(ctx, dt.FriendlyName, dt.IsPubliclyListed, dt.Map)
		if err != nil {
			logger.Fatal("creating default town", zap.String("name", dt.FriendlyName), zap.Error(err))
		}
		logger.Info("default town ready",
			zap.String("town", created.TownID),
			zap.String("name", dt.FriendlyName),
			zap.String("update_password", created.TownUpdatePassword),
		)
	}

	storeHealth := func(ctx context.Context) error {
		return store.Health(ctx, cfg.Store.Timeout)
	}

	gw := gateway.New(gateway.Options{
		HTTP:      cfg.HTTP,
		AnyOrigin: cfg.Server.Mode == "development",
		Health:    storeHealth,
	}, towns, logger)

	adminSrv := admin.New(cfg.Admin.Addr(), logger)

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("admin", adminSrv)
	lifecycle.Add("gateway", gw)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	lifecycle.Add("health-monitor", &server.FuncService{
		StartFn: func() error {
			adminSrv.Monitor(monitorCtx, *healthInterval, cfg.Store.Timeout, storeHealth)
			return nil
		},
		StopFn: stopMonitor,
	})

	lifecycle.OnShutdown(func() {
		stopMonitor()
		adminSrv.Drain()
		towns.Close()
	})

	logger.Info("town server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("http_addr", cfg.HTTP.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
