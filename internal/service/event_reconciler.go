package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

// SnapshotResolver reads an auction's current on-chain state
type SnapshotResolver interface {
	Resolve(ctx context.Context, address common.Address) (*AuctionSnapshot, error)
}

// MetadataResolver resolves asset and currency metadata; it never fails
type MetadataResolver interface {
	ResolveNFT(ctx context.Context, assetAddress, assetID string) *models.NFTMetadata
	ResolveToken(ctx context.Context, tokenAddress string) *models.TokenMetadata
}

// CacheInvalidator drops cached API responses that embed an auction
type CacheInvalidator interface {
	InvalidateAuction(ctx context.Context, auctionID string) error
}

// ReconcilerStore is the persistence the reconciler writes to
type ReconcilerStore interface {
	storage.AuctionStore
	storage.BidStore
}

// AuctionOrigin identifies a newly discovered auction. DeclaredType and
// Seller come from the creation event and are absent for back-filled ids.
type AuctionOrigin struct {
	AuctionID    string
	Address      common.Address
	DeclaredType *models.AuctionType
	Seller       common.Address
	CreatedAt    uint64
}

// EventReconciler applies decoded ledger events to the store. Applying the
// same event twice leaves the store unchanged.
type EventReconciler struct {
	store    ReconcilerStore
	ledger   adapter.Ledger
	resolver SnapshotResolver
	metadata MetadataResolver
	cache    CacheInvalidator
}

// NewEventReconciler creates a reconciler. cache may be nil.
func NewEventReconciler(store ReconcilerStore, ledger adapter.Ledger, resolver SnapshotResolver, metadata MetadataResolver, cache CacheInvalidator) *EventReconciler {
	return &EventReconciler{
		store:    store,
		ledger:   ledger,
		resolver: resolver,
		metadata: metadata,
		cache:    cache,
	}
}

// HandleAuctionCreated stores the auction announced by a factory log. An
// auction whose details cannot be read is skipped with a warning; a later
// backfill picks it up.
func (r *EventReconciler) HandleAuctionCreated(ctx context.Context, ev *adapter.AuctionCreatedEvent) (bool, error) {
	origin := AuctionOrigin{
		AuctionID: ev.AuctionID.String(),
		Address:   ev.AuctionAddress,
		Seller:    ev.Seller,
		CreatedAt: ev.BlockNumber,
	}
	if t := models.AuctionType(ev.AuctionType); t.Valid() {
		origin.DeclaredType = &t
	}

	inserted, err := r.ImportAuction(ctx, origin)
	if errors.Is(err, ErrAuctionUnresolvable) {
		logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"auctionId": origin.AuctionID,
			"block":     ev.BlockNumber,
		}).Warn("Skipping AuctionCreated for unresolvable auction")
		return false, nil
	}
	return inserted, err
}

// ImportAuction resolves and stores one auction, then warms the metadata of
// its asset and payment token. Already known ids are a no-op.
func (r *EventReconciler) ImportAuction(ctx context.Context, origin AuctionOrigin) (bool, error) {
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"auctionId": origin.AuctionID,
		"auction":   origin.Address.Hex(),
	})

	exists, err := r.store.AuctionIDExists(ctx, origin.AuctionID)
	if err != nil {
		return false, err
	}
	if exists {
		log.Debug("Auction already indexed")
		return false, nil
	}

	snap, err := r.resolver.Resolve(ctx, origin.Address)
	if err != nil {
		return false, err
	}

	auction := snap.ToAuction(origin.AuctionID, origin.CreatedAt)
	if origin.DeclaredType != nil {
		auction.AuctionType = *origin.DeclaredType
		if auction.AuctionType != models.AuctionTypeDutch {
			auction.ReservePrice, auction.CurrentPrice, auction.Duration = nil, nil, nil
		}
	}
	if origin.Seller != (common.Address{}) {
		auction.Seller = origin.Seller.Hex()
	}

	inserted, err := r.store.InsertAuction(ctx, auction)
	if err != nil {
		return false, fmt.Errorf("failed to store auction %s: %w", origin.AuctionID, err)
	}
	if !inserted {
		return false, nil
	}
	log.WithField("type", auction.AuctionType.String()).Info("Indexed new auction")

	if auction.IsNFT() {
		r.metadata.ResolveNFT(ctx, auction.AssetAddress, auction.AssetID)
	} else {
		r.metadata.ResolveToken(ctx, auction.AssetAddress)
	}
	r.metadata.ResolveToken(ctx, auction.PaymentToken)

	r.invalidate(ctx, auction.AuctionID)
	return true, nil
}

// HandleBidPlaced records a bid and makes it the auction's highest bid. Bids
// for unknown auctions are dropped with a warning.
func (r *EventReconciler) HandleBidPlaced(ctx context.Context, ev *adapter.BidPlacedEvent) (bool, error) {
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"auction": ev.Auction.Hex(),
		"block":   ev.BlockNumber,
		"index":   ev.LogIndex,
	})

	auction, err := r.store.GetAuctionByAddress(ctx, ev.Auction.Hex())
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("Received bid for unknown auction")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ts, err := r.ledger.BlockTime(ctx, ev.BlockNumber)
	if err != nil {
		return false, fmt.Errorf("failed to read timestamp of block %d: %w", ev.BlockNumber, err)
	}

	bid := &models.Bid{
		AuctionAddress: auction.AuctionAddress,
		Bidder:         ev.Bidder.Hex(),
		Amount:         bigString(ev.Amount),
		BlockNumber:    ev.BlockNumber,
		LogIndex:       ev.LogIndex,
		TxHash:         ev.TxHash.Hex(),
		Timestamp:      int64(ts), // #nosec G115 - block timestamps fit in int64
	}
	applied, err := r.store.ApplyBid(ctx, bid)
	if err != nil {
		return false, fmt.Errorf("failed to apply bid: %w", err)
	}
	if !applied {
		log.Debug("Bid already recorded")
		return false, nil
	}

	log.WithFields(map[string]interface{}{
		"bidder": bid.Bidder,
		"amount": bid.Amount,
	}).Info("Recorded bid")
	r.invalidate(ctx, auction.AuctionID)
	return true, nil
}

func (r *EventReconciler) invalidate(ctx context.Context, auctionID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateAuction(ctx, auctionID); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("auctionId", auctionID).Warn("Failed to invalidate cached responses")
	}
}
