package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/auction-indexer/internal/clock"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

// StatusUpdater closes out auctions whose end time has passed
type StatusUpdater struct {
	store    storage.AuctionStore
	resolver SnapshotResolver
	cache    CacheInvalidator
	now      clock.NowFunc
}

// NewStatusUpdater creates a status updater. cache may be nil.
func NewStatusUpdater(store storage.AuctionStore, resolver SnapshotResolver, cache CacheInvalidator, now clock.NowFunc) *StatusUpdater {
	if now == nil {
		now = clock.System
	}
	return &StatusUpdater{store: store, resolver: resolver, cache: cache, now: now}
}

// Sweep refreshes every active auction past its end time. The ledger's view
// wins when readable; otherwise the auction is marked ended on time alone.
// It returns the number of auctions updated.
func (u *StatusUpdater) Sweep(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx)
	expired, err := u.store.ListExpiredActive(ctx, u.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired auctions: %w", err)
	}

	updated := 0
	for _, a := range expired {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		update := storage.AuctionStateUpdate{Status: models.StatusEnded}
		snap, err := u.resolver.Resolve(ctx, common.HexToAddress(a.AuctionAddress))
		switch {
		case err == nil:
			bidder := snap.HighestBidder.Hex()
			bid := bigString(snap.HighestBid)
			update = storage.AuctionStateUpdate{
				Status:        snap.Status,
				Ended:         &snap.Ended,
				HighestBidder: &bidder,
				HighestBid:    &bid,
				CurrentPrice:  optionalBig(snap.CurrentPrice),
			}
		case ctx.Err() != nil:
			return updated, ctx.Err()
		case errors.Is(err, ErrAuctionUnresolvable):
			log.WithError(err).WithField("auction", a.AuctionAddress).Warn("Marking auction ended without ledger confirmation")
		default:
			return updated, err
		}

		if err := u.store.UpdateAuctionState(ctx, a.AuctionAddress, update); err != nil {
			return updated, fmt.Errorf("failed to update auction %s: %w", a.AuctionAddress, err)
		}
		updated++
		if u.cache != nil {
			if err := u.cache.InvalidateAuction(ctx, a.AuctionID); err != nil {
				log.WithError(err).Warn("Failed to invalidate cached responses")
			}
		}
	}

	if updated > 0 {
		log.Infof("Updated statuses for %d expired auctions", updated)
	}
	return updated, nil
}
