package worker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/service"
	"github.com/ethereum/go-ethereum/common"
)

// Backfill imports every auction the factory knows about that is not yet
// stored, walking ids 1..auctionCount() in batches. A failing id is logged
// and skipped. It returns the number of auctions inserted.
func (w *SyncWorker) Backfill(ctx context.Context) (int, error) {
	inserted, err := w.backfill(ctx)
	w.metrics.ObserveBackfill(err, inserted)

	now := w.now()
	w.mu.Lock()
	w.lastBackfillAt = &now
	w.mu.Unlock()
	return inserted, err
}

func (w *SyncWorker) backfill(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx).WithField("component", "backfill")

	out, err := w.ledger.Call(ctx, w.factory, w.contracts.Factory, adapter.MethodAuctionCount)
	if err != nil {
		return 0, fmt.Errorf("failed to read auction count: %w", err)
	}
	count, ok := firstBig(out)
	if !ok || !count.IsUint64() {
		return 0, fmt.Errorf("unexpected auctionCount output %v", out)
	}
	total := count.Uint64()
	log.Infof("Factory reports %d auctions", total)

	inserted := 0
	batch := uint64(w.backfillBatchSize) // #nosec G115 - validated positive
	for start := uint64(1); start <= total; start += batch {
		end := start + batch - 1
		if end > total {
			end = total
		}
		log.Debugf("Syncing auctions %d to %d", start, end)

		for id := start; id <= end; id++ {
			if err := ctx.Err(); err != nil {
				return inserted, err
			}
			ok, err := w.backfillOne(ctx, id)
			if err != nil {
				log.WithError(err).WithField("auctionId", id).Error("Failed to backfill auction")
				continue
			}
			if ok {
				inserted++
			}
		}
	}

	if inserted > 0 {
		log.Infof("Backfill inserted %d auctions", inserted)
	}
	return inserted, nil
}

func (w *SyncWorker) backfillOne(ctx context.Context, id uint64) (bool, error) {
	auctionID := strconv.FormatUint(id, 10)
	exists, err := w.store.AuctionIDExists(ctx, auctionID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	out, err := w.ledger.Call(ctx, w.factory, w.contracts.Factory, adapter.MethodAuctions, new(big.Int).SetUint64(id))
	if err != nil {
		return false, fmt.Errorf("auctions(%d): %w", id, err)
	}
	if len(out) == 0 {
		return false, fmt.Errorf("auctions(%d) returned no address", id)
	}
	address, ok := out[0].(common.Address)
	if !ok || address == (common.Address{}) {
		return false, fmt.Errorf("auctions(%d) returned %v", id, out[0])
	}

	inserted, err := w.reconciler.ImportAuction(ctx, service.AuctionOrigin{
		AuctionID: auctionID,
		Address:   address,
	})
	if errors.Is(err, service.ErrAuctionUnresolvable) {
		logging.FromContext(ctx).WithError(err).WithField("auctionId", auctionID).Warn("Skipping unresolvable auction")
		return false, nil
	}
	return inserted, err
}

func firstBig(out []interface{}) (*big.Int, bool) {
	if len(out) == 0 {
		return nil, false
	}
	v, ok := out[0].(*big.Int)
	return v, ok && v != nil
}
