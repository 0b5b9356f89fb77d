// Package worker drives the ledger sync pipeline: factory backfill, event
// polling, bid scanning and the expired-auction sweep.
package worker

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/clock"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/metrics"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/service"
	"github.com/auction-indexer/internal/storage"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventHandler applies decoded events to the store
type EventHandler interface {
	HandleAuctionCreated(ctx context.Context, ev *adapter.AuctionCreatedEvent) (bool, error)
	HandleBidPlaced(ctx context.Context, ev *adapter.BidPlacedEvent) (bool, error)
	ImportAuction(ctx context.Context, origin service.AuctionOrigin) (bool, error)
}

// StatusSweeper closes out expired auctions
type StatusSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SyncStore is the persistence the worker reads and advances
type SyncStore interface {
	AuctionIDExists(ctx context.Context, auctionID string) (bool, error)
	ListAuctionRefs(ctx context.Context) ([]models.AuctionRef, error)
	MaxCreatedAt(ctx context.Context) (uint64, error)
	storage.SyncStateStore
}

// SyncWorkerConfig holds configuration for the sync worker
type SyncWorkerConfig struct {
	Ledger         adapter.Ledger
	Contracts      *adapter.Contracts
	FactoryAddress common.Address
	Store          SyncStore
	Reconciler     EventHandler
	Sweeper        StatusSweeper
	Archive        storage.EventArchive // optional
	Metrics        *metrics.SyncWorker  // optional

	PollInterval      time.Duration // default 30s
	LookbackBlocks    uint64        // default 1000
	BackfillBatchSize int           // default 50
	MaxBlockRange     uint64        // 0 = one eth_getLogs per range
	BackfillInterval  time.Duration // 0 = startup only
	Now               clock.NowFunc
}

// SyncWorker polls the ledger on an interval and reconciles what it finds.
// One goroutine runs the pipeline; every step inside a cycle is sequential.
type SyncWorker struct {
	ledger     adapter.Ledger
	contracts  *adapter.Contracts
	factory    common.Address
	store      SyncStore
	reconciler EventHandler
	sweeper    StatusSweeper
	archive    storage.EventArchive
	archiving  bool
	metrics    *metrics.SyncWorker
	now        clock.NowFunc

	pollInterval      time.Duration
	lookbackBlocks    uint64
	backfillBatchSize int
	maxBlockRange     uint64
	backfillInterval  time.Duration

	mu                 sync.RWMutex
	running            bool
	stopCh             chan struct{}
	doneCh             chan struct{}
	checkpointLoaded   bool
	lastBlockProcessed uint64
	headBlock          uint64
	lastPollAt         *time.Time
	lastBackfillAt     *time.Time
	lastError          string
	cycles             uint64
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(cfg SyncWorkerConfig) (*SyncWorker, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Contracts == nil {
		return nil, fmt.Errorf("contracts cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Reconciler == nil {
		return nil, fmt.Errorf("reconciler cannot be nil")
	}
	if cfg.Sweeper == nil {
		return nil, fmt.Errorf("status sweeper cannot be nil")
	}
	if cfg.FactoryAddress == (common.Address{}) {
		return nil, fmt.Errorf("factory address cannot be zero")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.LookbackBlocks == 0 {
		cfg.LookbackBlocks = 1000
	}
	if cfg.BackfillBatchSize <= 0 {
		cfg.BackfillBatchSize = 50
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewSyncWorker()
	}
	if cfg.Now == nil {
		cfg.Now = clock.System
	}
	archiving := cfg.Archive != nil
	if !archiving {
		cfg.Archive = storage.NopEventArchive{}
	}

	return &SyncWorker{
		ledger:            cfg.Ledger,
		contracts:         cfg.Contracts,
		factory:           cfg.FactoryAddress,
		store:             cfg.Store,
		reconciler:        cfg.Reconciler,
		sweeper:           cfg.Sweeper,
		archive:           cfg.Archive,
		archiving:         archiving,
		metrics:           cfg.Metrics,
		now:               cfg.Now,
		pollInterval:      cfg.PollInterval,
		lookbackBlocks:    cfg.LookbackBlocks,
		backfillBatchSize: cfg.BackfillBatchSize,
		maxBlockRange:     cfg.MaxBlockRange,
		backfillInterval:  cfg.BackfillInterval,
	}, nil
}

// Start runs the startup backfill and then polls every interval until Stop
// is called or ctx is cancelled. Cycle errors are logged and never end the
// loop.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"factory":      w.factory.Hex(),
		"pollInterval": w.pollInterval.String(),
	}).Info("Starting sync worker")

	go w.pollLoop(ctx)
	return nil
}

// Stop signals the loop and waits for the current cycle to finish
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is not running")
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		logging.FromContext(ctx).Info("Sync worker stopped gracefully")
	case <-ctx.Done():
		logging.FromContext(ctx).Warn("Sync worker stop timed out")
		return ctx.Err()
	}
	return nil
}

// Run starts the worker and blocks until the loop exits after ctx is
// cancelled.
func (w *SyncWorker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	w.mu.RLock()
	done := w.doneCh
	w.mu.RUnlock()
	<-done
	return nil
}

func (w *SyncWorker) pollLoop(ctx context.Context) {
	log := logging.FromContext(ctx)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if _, err := w.Backfill(ctx); err != nil {
		log.WithError(err).Error("Startup backfill failed")
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := w.PollOnce(ctx); err != nil {
			log.WithError(err).Error("Poll cycle failed")
		}
		if w.backfillDue() {
			if _, err := w.Backfill(ctx); err != nil {
				log.WithError(err).Error("Periodic backfill failed")
			}
		}

		select {
		case <-ctx.Done():
			log.Info("Sync worker context cancelled")
			return
		case <-w.stopCh:
			log.Info("Sync worker stop signal received")
			return
		case <-ticker.C:
		}
	}
}

func (w *SyncWorker) backfillDue() bool {
	if w.backfillInterval <= 0 {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastBackfillAt == nil || w.now().Sub(*w.lastBackfillAt) >= w.backfillInterval
}

// PollOnce runs one sync cycle: factory logs from checkpoint+1 to head, bids
// of every known auction from its watermark, the checkpoint write and the
// status sweep.
func (w *SyncWorker) PollOnce(ctx context.Context) error {
	started := time.Now()
	err := w.poll(ctx)
	w.metrics.ObservePoll(err, started)

	now := w.now()
	w.mu.Lock()
	w.lastPollAt = &now
	w.cycles++
	if err != nil {
		w.lastError = err.Error()
	} else {
		w.lastError = ""
	}
	w.mu.Unlock()
	return err
}

func (w *SyncWorker) poll(ctx context.Context) error {
	log := logging.FromContext(ctx)

	last, err := w.checkpoint(ctx)
	if err != nil {
		return err
	}
	head, err := w.ledger.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get head block: %w", err)
	}
	w.mu.Lock()
	w.headBlock = head
	w.mu.Unlock()

	if head <= last {
		log.Debug("No new blocks to process")
		return nil
	}
	log.Infof("Processing blocks %d to %d", last+1, head)

	var archived []storage.ArchivedEvent
	times := make(map[uint64]time.Time)

	created, err := w.processFactoryLogs(ctx, last+1, head, &archived, times)
	if err != nil {
		return err
	}

	bids, err := w.processBids(ctx, head, &archived, times)
	if err != nil {
		return err
	}

	if err := w.advanceCheckpoint(ctx, head); err != nil {
		return err
	}

	if w.archiving && len(archived) > 0 {
		if err := w.archive.Archive(ctx, archived); err != nil {
			log.WithError(err).Warn("Failed to archive events")
		}
	}

	swept, err := w.sweeper.Sweep(ctx)
	w.metrics.ObserveSweep(swept)
	if err != nil {
		return fmt.Errorf("status sweep failed: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"head":     head,
		"auctions": created,
		"bids":     bids,
		"swept":    swept,
	}).Info("Poll cycle completed")
	return nil
}

func (w *SyncWorker) processFactoryLogs(ctx context.Context, from, to uint64, archived *[]storage.ArchivedEvent, times map[uint64]time.Time) (int, error) {
	log := logging.FromContext(ctx)
	logs, err := w.filterLogs(ctx, w.factory, w.contracts.AuctionCreatedTopic(), from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch AuctionCreated logs: %w", err)
	}
	w.metrics.ObserveEvents(adapter.EventAuctionCreated, len(logs))

	created := 0
	for _, l := range logs {
		ev, err := w.contracts.DecodeAuctionCreated(l)
		if err != nil {
			log.WithError(err).WithField("tx", l.TxHash.Hex()).Warn("Skipping undecodable AuctionCreated log")
			continue
		}
		inserted, err := w.reconciler.HandleAuctionCreated(ctx, ev)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
			w.metrics.ObserveAuctionCreated()
		}
		w.collect(ctx, archived, times, storage.ArchivedEvent{
			EventName:       storage.ArchiveAuctionCreated,
			ContractAddress: l.Address.Hex(),
			AuctionAddress:  ev.AuctionAddress.Hex(),
			AuctionID:       ev.AuctionID.String(),
			Actor:           ev.Seller.Hex(),
			BlockNumber:     ev.BlockNumber,
			LogIndex:        ev.LogIndex,
			TxHash:          ev.TxHash.Hex(),
		})
	}
	return created, nil
}

// processBids scans each known auction from its own watermark. A failed log
// fetch leaves that auction's watermark in place for the next cycle.
func (w *SyncWorker) processBids(ctx context.Context, head uint64, archived *[]storage.ArchivedEvent, times map[uint64]time.Time) (int, error) {
	log := logging.FromContext(ctx)
	refs, err := w.store.ListAuctionRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list auctions: %w", err)
	}

	applied := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		from := ref.CreatedAt
		mark, ok, err := w.store.GetWatermark(ctx, ref.AuctionAddress)
		if err != nil {
			return applied, fmt.Errorf("failed to read watermark of %s: %w", ref.AuctionAddress, err)
		}
		if ok {
			from = mark + 1
		}
		if from > head {
			continue
		}

		auction := common.HexToAddress(ref.AuctionAddress)
		logs, err := w.filterLogs(ctx, auction, w.contracts.BidPlacedTopic(), from, head)
		if err != nil {
			log.WithError(err).WithField("auction", ref.AuctionAddress).Error("Failed to fetch bid logs")
			continue
		}
		w.metrics.ObserveEvents(adapter.EventBidPlaced, len(logs))

		for _, l := range logs {
			ev, err := w.contracts.DecodeBidPlaced(l)
			if err != nil {
				log.WithError(err).WithField("tx", l.TxHash.Hex()).Warn("Skipping undecodable BidPlaced log")
				continue
			}
			ok, err := w.reconciler.HandleBidPlaced(ctx, ev)
			if err != nil {
				return applied, err
			}
			if ok {
				applied++
			}
			w.collect(ctx, archived, times, storage.ArchivedEvent{
				EventName:       storage.ArchiveBidPlaced,
				ContractAddress: l.Address.Hex(),
				AuctionAddress:  ref.AuctionAddress,
				Actor:           ev.Bidder.Hex(),
				Amount:          ev.Amount.String(),
				BlockNumber:     ev.BlockNumber,
				LogIndex:        ev.LogIndex,
				TxHash:          ev.TxHash.Hex(),
			})
		}

		if err := w.store.SaveWatermark(ctx, ref.AuctionAddress, head); err != nil {
			return applied, fmt.Errorf("failed to save watermark of %s: %w", ref.AuctionAddress, err)
		}
	}
	return applied, nil
}

// filterLogs fetches logs of one emitter and topic, chunked by maxBlockRange
func (w *SyncWorker) filterLogs(ctx context.Context, address common.Address, topic common.Hash, from, to uint64) ([]types.Log, error) {
	var out []types.Log
	for _, r := range blockRanges(from, to, w.maxBlockRange) {
		logs, err := w.ledger.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(r[0]),
			ToBlock:   new(big.Int).SetUint64(r[1]),
			Addresses: []common.Address{address},
			Topics:    [][]common.Hash{{topic}},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, logs...)
	}
	return out, nil
}

// collect queues an event for the archive, stamping it with its block time
func (w *SyncWorker) collect(ctx context.Context, archived *[]storage.ArchivedEvent, times map[uint64]time.Time, ev storage.ArchivedEvent) {
	if !w.archiving {
		return
	}
	ts, ok := times[ev.BlockNumber]
	if !ok {
		secs, err := w.ledger.BlockTime(ctx, ev.BlockNumber)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("block", ev.BlockNumber).Warn("Not archiving event without block time")
			return
		}
		ts = time.Unix(int64(secs), 0).UTC() // #nosec G115 - block timestamps fit in int64
		times[ev.BlockNumber] = ts
	}
	ev.BlockTime = ts
	*archived = append(*archived, ev)
}

// Status reports progress for the health endpoint
func (w *SyncWorker) Status() models.SyncStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return models.SyncStatus{
		Running:        w.running,
		Checkpoint:     w.lastBlockProcessed,
		HeadBlock:      w.headBlock,
		LastPollAt:     w.lastPollAt,
		LastBackfillAt: w.lastBackfillAt,
		LastError:      w.lastError,
		Cycles:         w.cycles,
	}
}
