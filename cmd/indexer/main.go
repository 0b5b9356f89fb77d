// Package main provides the entry point for the auction indexer: the sync
// worker and the query API in one process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/api"
	"github.com/auction-indexer/internal/clock"
	"github.com/auction-indexer/internal/config"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/metadata"
	"github.com/auction-indexer/internal/metrics"
	"github.com/auction-indexer/internal/retry"
	"github.com/auction-indexer/internal/service"
	"github.com/auction-indexer/internal/storage"
	"github.com/auction-indexer/internal/storage/memstore"
	"github.com/auction-indexer/internal/worker"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Indexer stopped with error")
		os.Exit(1)
	}
	logger.Info("Indexer stopped")
}

// closers run in reverse order on shutdown
type closers []func()

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	var cleanup closers
	defer cleanup.closeAll()

	checks := make(map[string]api.HealthCheck)

	// Store
	var store storage.Store
	switch cfg.Database.Driver {
	case "postgres":
		if err := storage.RunMigrations(cfg.Database.Postgres.URL(), cfg.Database.Postgres.MigrationsPath); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		cleanup = append(cleanup, db.Close)
		checks["postgres"] = db.Ping
		store = storage.NewPostgresStore(db)
	case "memory":
		logger.Warn("Using in-memory store; indexed state is lost on restart")
		store = memstore.New()
	}

	// Response cache
	var cacheService *storage.CacheService
	var invalidator service.CacheInvalidator
	if cfg.Database.Redis.Enabled {
		redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		cleanup = append(cleanup, func() { _ = redisCache.Close() })
		checks["redis"] = redisCache.Ping
		cacheService = storage.NewCacheService(redisCache, cfg.Cache.TTL)
		invalidator = cacheService
	}

	// Event archive
	var archive storage.EventArchive
	if cfg.Database.ClickHouse.Enabled {
		ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		cleanup = append(cleanup, func() { _ = ch.Close() })
		checks["clickhouse"] = ch.Ping
		if err := storage.RunClickHouseMigrations(ctx, ch, cfg.Database.ClickHouse.MigrationsPath); err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		archive = storage.NewClickHouseEventArchive(ch)
	}

	// Ledger
	contracts, err := adapter.LoadContracts(adapter.ContractPaths{
		Factory:      cfg.Ledger.FactoryABIPath,
		Auction:      cfg.Ledger.AuctionABIPath,
		DutchAuction: cfg.Ledger.DutchAuctionABIPath,
	})
	if err != nil {
		return fmt.Errorf("load contract ABIs: %w", err)
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Ledger.RetryAttempts
	policy.Delay = cfg.Ledger.RetryDelay

	dialCtx, cancelDial := context.WithTimeout(ctx, 15*time.Second)
	ledger, err := adapter.NewEthereumAdapter(dialCtx, adapter.EthereumAdapterConfig{
		RPCURL: cfg.Ledger.RPCURL,
		MaxRPS: cfg.Ledger.MaxRPS,
		Retry:  policy,
	})
	cancelDial()
	if err != nil {
		return fmt.Errorf("connect ledger: %w", err)
	}
	cleanup = append(cleanup, ledger.Close)
	checks["ledger"] = ledger.Ping

	factory, err := adapter.NormalizeAddress(cfg.Ledger.FactoryAddress)
	if err != nil {
		return fmt.Errorf("factory address: %w", err)
	}

	// Services
	metadataMetrics := metrics.NewMetadataCache()
	fetcher := metadata.NewHTTPClient(metadata.HTTPConfig{
		Timeout:         cfg.Metadata.HTTPTimeout,
		MaxRPS:          cfg.Metadata.MaxRPS,
		BreakerFailures: cfg.Metadata.BreakerFails,
		BreakerCooldown: cfg.Metadata.BreakerPeriod,
	}, metadataMetrics)
	checks["metadata"] = fetcher.Check
	metadataCache := metadata.NewCache(store, ledger, contracts, fetcher, metadata.Config{
		TTL:          cfg.Metadata.TTL,
		IPFSGateway:  cfg.Metadata.IPFSGateway,
		LogoBaseURL:  cfg.Metadata.LogoBaseURL,
		NativeSymbol: cfg.Ledger.NativeSymbol,
		NativeName:   cfg.Ledger.NativeName,
	}, metadataMetrics)

	resolver := service.NewAuctionResolver(ledger, contracts, cfg.Ledger.NativeSymbol, clock.System)
	reconciler := service.NewEventReconciler(store, ledger, resolver, metadataCache, invalidator)
	updater := service.NewStatusUpdater(store, resolver, invalidator, clock.System)
	queryService := service.NewQueryService(store, cacheService)

	syncWorker, err := worker.NewSyncWorker(worker.SyncWorkerConfig{
		Ledger:            ledger,
		Contracts:         contracts,
		FactoryAddress:    common.HexToAddress(factory),
		Store:             store,
		Reconciler:        reconciler,
		Sweeper:           updater,
		Archive:           archive,
		Metrics:           metrics.NewSyncWorker(),
		PollInterval:      cfg.Sync.PollInterval,
		LookbackBlocks:    cfg.Sync.LookbackBlocks,
		BackfillBatchSize: cfg.Sync.BackfillBatchSize,
		MaxBlockRange:     cfg.Sync.MaxBlockRange,
		BackfillInterval:  cfg.Sync.BackfillInterval,
		Now:               clock.System,
	})
	if err != nil {
		return fmt.Errorf("create sync worker: %w", err)
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RequestsPerSec:  cfg.Server.RequestsRPS,
		RequestBurst:    cfg.Server.RequestBurst,
	}
	server := api.NewServer(serverConfig, queryService, syncWorker, checks, logger)

	logger.WithFields(map[string]interface{}{
		"factory":  factory,
		"store":    cfg.Database.Driver,
		"redis":    cfg.Database.Redis.Enabled,
		"archive":  cfg.Database.ClickHouse.Enabled,
		"interval": cfg.Sync.PollInterval.String(),
	}).Info("Auction indexer starting")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return syncWorker.Run(gctx)
	})

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
