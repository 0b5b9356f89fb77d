package storage

import (
	"context"
	"errors"

	"github.com/auction-indexer/internal/models"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("record not found")

// CheckpointFactory is the sync_state key of the factory log checkpoint
const CheckpointFactory = "factory"

// AuctionStateUpdate carries the mutable fields refreshed from the ledger.
// Nil pointers leave the column untouched.
type AuctionStateUpdate struct {
	Status        models.AuctionStatus
	Ended         *bool
	HighestBidder *string
	HighestBid    *string
	CurrentPrice  *string
}

// AuctionStore persists auctions
type AuctionStore interface {
	// InsertAuction stores a new auction. It reports false without error when
	// the auction id or address is already present.
	InsertAuction(ctx context.Context, auction *models.Auction) (bool, error)
	GetAuctionByID(ctx context.Context, auctionID string) (*models.Auction, error)
	GetAuctionByAddress(ctx context.Context, address string) (*models.Auction, error)
	AuctionIDExists(ctx context.Context, auctionID string) (bool, error)
	ListAuctionRefs(ctx context.Context) ([]models.AuctionRef, error)
	// ListExpiredActive returns active, not ended auctions with end_time < now
	ListExpiredActive(ctx context.Context, now int64) ([]*models.Auction, error)
	UpdateAuctionState(ctx context.Context, address string, update AuctionStateUpdate) error
	// MaxCreatedAt returns the highest origin block among auctions, 0 when empty
	MaxCreatedAt(ctx context.Context) (uint64, error)
	ListAuctions(ctx context.Context, query models.AuctionQuery) ([]*models.Auction, int, error)
	CountAuctions(ctx context.Context) (models.AuctionCounts, error)
}

// BidStore persists bids
type BidStore interface {
	// ApplyBid inserts the bid and overwrites the auction's highest bid in one
	// transaction. A bid already stored under its natural key is a no-op and
	// reports false.
	ApplyBid(ctx context.Context, bid *models.Bid) (bool, error)
	ListBids(ctx context.Context, auctionAddress string, limit, offset int) ([]*models.Bid, error)
	CountBids(ctx context.Context, auctionAddresses []string) (map[string]int, error)
}

// MetadataStore persists NFT and token metadata
type MetadataStore interface {
	GetNFTMetadata(ctx context.Context, assetAddress, assetID string) (*models.NFTMetadata, error)
	UpsertNFTMetadata(ctx context.Context, meta *models.NFTMetadata) error
	ListNFTMetadata(ctx context.Context) ([]*models.NFTMetadata, error)
	GetTokenMetadata(ctx context.Context, tokenAddress string) (*models.TokenMetadata, error)
	UpsertTokenMetadata(ctx context.Context, meta *models.TokenMetadata) error
	ListTokenMetadata(ctx context.Context) ([]*models.TokenMetadata, error)
}

// SyncStateStore persists the checkpoint and the per-auction bid watermarks.
// Both only move forward.
type SyncStateStore interface {
	GetCheckpoint(ctx context.Context, key string) (uint64, bool, error)
	SaveCheckpoint(ctx context.Context, key string, block uint64) error
	GetWatermark(ctx context.Context, auctionAddress string) (uint64, bool, error)
	SaveWatermark(ctx context.Context, auctionAddress string, block uint64) error
}

// Store is everything the indexer persists
type Store interface {
	AuctionStore
	BidStore
	MetadataStore
	SyncStateStore
}
