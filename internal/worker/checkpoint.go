package worker

import (
	"context"
	"fmt"

	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/storage"
)

// loadCheckpoint recovers the last processed factory block. A persisted
// checkpoint wins; otherwise the newest auction's origin block; otherwise
// head minus the lookback window, clamped at zero.
func (w *SyncWorker) loadCheckpoint(ctx context.Context) (uint64, error) {
	log := logging.FromContext(ctx)

	block, ok, err := w.store.GetCheckpoint(ctx, storage.CheckpointFactory)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if ok {
		log.Infof("Resuming from saved checkpoint %d", block)
		return block, nil
	}

	maxCreated, err := w.store.MaxCreatedAt(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read newest auction block: %w", err)
	}
	if maxCreated > 0 {
		log.Infof("Resuming from newest auction block %d", maxCreated)
		return maxCreated, nil
	}

	head, err := w.ledger.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get head block: %w", err)
	}
	start := uint64(0)
	if head > w.lookbackBlocks {
		start = head - w.lookbackBlocks
	}
	log.Infof("No saved progress, starting %d blocks behind head at %d", head-start, start)
	return start, nil
}

// checkpoint returns the in-memory checkpoint, loading it on first use
func (w *SyncWorker) checkpoint(ctx context.Context) (uint64, error) {
	w.mu.RLock()
	block, loaded := w.lastBlockProcessed, w.checkpointLoaded
	w.mu.RUnlock()
	if loaded {
		return block, nil
	}

	block, err := w.loadCheckpoint(ctx)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	w.lastBlockProcessed = block
	w.checkpointLoaded = true
	w.mu.Unlock()
	return block, nil
}

// advanceCheckpoint persists block and keeps the in-memory copy monotonic
func (w *SyncWorker) advanceCheckpoint(ctx context.Context, block uint64) error {
	if err := w.store.SaveCheckpoint(ctx, storage.CheckpointFactory, block); err != nil {
		return fmt.Errorf("failed to save checkpoint %d: %w", block, err)
	}
	w.mu.Lock()
	if block > w.lastBlockProcessed {
		w.lastBlockProcessed = block
	}
	w.mu.Unlock()
	w.metrics.SetCheckpoint(block)
	return nil
}

// blockRanges splits [from, to] into inclusive chunks of at most size blocks.
// A zero size yields the whole range.
func blockRanges(from, to, size uint64) [][2]uint64 {
	if from > to {
		return nil
	}
	if size == 0 {
		return [][2]uint64{{from, to}}
	}
	var out [][2]uint64
	for start := from; start <= to; {
		end := start + size - 1
		if end > to || end < start {
			end = to
		}
		out = append(out, [2]uint64{start, end})
		if end == to {
			break
		}
		start = end + 1
	}
	return out
}
