package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/adapter/adaptertest"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage/memstore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	rec      *EventReconciler
	store    *memstore.Store
	ledger   *adaptertest.FakeLedger
	metadata *recordingMetadata
	cache    *recordingInvalidator
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		store:    memstore.New(),
		ledger:   adaptertest.NewFakeLedger(),
		metadata: &recordingMetadata{},
		cache:    &recordingInvalidator{},
	}
	f.rec = NewEventReconciler(f.store, f.ledger, newTestResolver(f.ledger), f.metadata, f.cache)
	return f
}

func createdEvent(id int64, auctionType uint8, block uint64) *adapter.AuctionCreatedEvent {
	return &adapter.AuctionCreatedEvent{
		AuctionID:      big.NewInt(id),
		AuctionAddress: auctionAddr,
		AuctionType:    auctionType,
		Seller:         sellerAddr,
		BlockNumber:    block,
	}
}

func bidEvent(block uint64, index uint, amount *big.Int) *adapter.BidPlacedEvent {
	return &adapter.BidPlacedEvent{
		Auction:     auctionAddr,
		Bidder:      bidderAddr,
		Amount:      amount,
		BlockNumber: block,
		LogIndex:    index,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func TestEventReconciler_AuctionCreatedIsIdempotent(t *testing.T) {
	f := newReconcilerFixture(t)
	scriptAuction(f.ledger, auctionAddr, nftDetails(testNow.Unix()+3600))
	ctx := context.Background()

	inserted, err := f.rec.HandleAuctionCreated(ctx, createdEvent(1, 0, 100))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = f.rec.HandleAuctionCreated(ctx, createdEvent(1, 0, 100))
	require.NoError(t, err)
	assert.False(t, inserted)

	counts, err := f.store.CountAuctions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 1, f.ledger.Calls(auctionAddr, adapter.MethodGetAuctionDetails))

	a, err := f.store.GetAuctionByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), a.CreatedAt)
	assert.Equal(t, models.StatusActive, a.Status)
}

func TestEventReconciler_DeclaredTypeAndSellerWin(t *testing.T) {
	f := newReconcilerFixture(t)
	d := nftDetails(testNow.Unix() + 3600)
	d.Seller = bidderAddr
	scriptAuction(f.ledger, auctionAddr, d)
	ctx := context.Background()

	_, err := f.rec.HandleAuctionCreated(ctx, createdEvent(2, 1, 10))
	require.NoError(t, err)

	a, err := f.store.GetAuctionByID(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionTypeDutch, a.AuctionType)
	assert.Equal(t, sellerAddr.Hex(), a.Seller)
}

func TestEventReconciler_DeclaredEnglishDropsDutchFields(t *testing.T) {
	f := newReconcilerFixture(t)
	scriptAuction(f.ledger, auctionAddr, nftDetails(testNow.Unix()+3600))
	scriptDutch(f.ledger, auctionAddr, 1, 2, 3)
	f.ledger.Return(auctionAddr, adapter.MethodAuctionType, uint8(9))
	ctx := context.Background()

	_, err := f.rec.HandleAuctionCreated(ctx, createdEvent(3, 0, 10))
	require.NoError(t, err)

	a, err := f.store.GetAuctionByID(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionTypeEnglish, a.AuctionType)
	assert.Nil(t, a.ReservePrice)
	assert.Nil(t, a.CurrentPrice)
}

func TestEventReconciler_UnresolvableIsSkipped(t *testing.T) {
	f := newReconcilerFixture(t)

	inserted, err := f.rec.HandleAuctionCreated(context.Background(), createdEvent(4, 0, 10))
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err := f.store.AuctionIDExists(context.Background(), "4")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, f.metadata.nfts)
}

func TestEventReconciler_StoreErrorPropagates(t *testing.T) {
	f := newReconcilerFixture(t)
	scriptAuction(f.ledger, auctionAddr, nftDetails(testNow.Unix()+3600))
	boom := errors.New("connection refused")
	f.store.FailOn("InsertAuction", boom)

	_, err := f.rec.HandleAuctionCreated(context.Background(), createdEvent(5, 0, 10))
	assert.ErrorIs(t, err, boom)
}

func TestEventReconciler_MetadataPaths(t *testing.T) {
	t.Run("nft asset", func(t *testing.T) {
		f := newReconcilerFixture(t)
		scriptAuction(f.ledger, auctionAddr, nftDetails(testNow.Unix()+3600))

		_, err := f.rec.HandleAuctionCreated(context.Background(), createdEvent(1, 0, 10))
		require.NoError(t, err)
		assert.Equal(t, []string{nftAddr.Hex() + "/42"}, f.metadata.nfts)
		assert.Equal(t, []string{common.Address{}.Hex()}, f.metadata.tokens)
		assert.Equal(t, []string{"1"}, f.cache.ids)
	})

	t.Run("fungible asset", func(t *testing.T) {
		f := newReconcilerFixture(t)
		d := nftDetails(testNow.Unix() + 3600)
		d.AssetAddress = usdcAddr
		d.Amount = big.NewInt(5_000_000)
		d.PaymentToken = usdcAddr
		scriptAuction(f.ledger, auctionAddr, d)

		_, err := f.rec.HandleAuctionCreated(context.Background(), createdEvent(1, 0, 10))
		require.NoError(t, err)
		assert.Empty(t, f.metadata.nfts)
		assert.Equal(t, []string{usdcAddr.Hex(), usdcAddr.Hex()}, f.metadata.tokens)
	})
}

func TestEventReconciler_ImportWithoutOrigin(t *testing.T) {
	f := newReconcilerFixture(t)
	scriptAuction(f.ledger, auctionAddr, nftDetails(testNow.Unix()+3600))
	scriptDutch(f.ledger, auctionAddr, 100, 250, 60)
	ctx := context.Background()

	inserted, err := f.rec.ImportAuction(ctx, AuctionOrigin{AuctionID: "8", Address: auctionAddr})
	require.NoError(t, err)
	assert.True(t, inserted)

	a, err := f.store.GetAuctionByID(ctx, "8")
	require.NoError(t, err)
	assert.Equal(t, models.AuctionTypeDutch, a.AuctionType)
	assert.Equal(t, uint64(0), a.CreatedAt)
	require.NotNil(t, a.CurrentPrice)
	assert.Equal(t, "250", *a.CurrentPrice)
}

func TestEventReconciler_BidsOverwriteHighestBid(t *testing.T) {
	f := newReconcilerFixture(t)
	scriptAuction(f.ledger, auctionAddr, nftDetails(testNow.Unix()+3600))
	ctx := context.Background()
	_, err := f.rec.HandleAuctionCreated(ctx, createdEvent(1, 0, 10))
	require.NoError(t, err)
	f.ledger.SetBlockTime(12, 1_700_000_500)

	applied, err := f.rec.HandleBidPlaced(ctx, bidEvent(12, 0, adaptertest.Wei(3)))
	require.NoError(t, err)
	assert.True(t, applied)

	// a lower later bid still overwrites; the ledger enforces ordering
	applied, err = f.rec.HandleBidPlaced(ctx, bidEvent(13, 1, adaptertest.Wei(1)))
	require.NoError(t, err)
	assert.True(t, applied)

	a, err := f.store.GetAuctionByAddress(ctx, auctionAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, adaptertest.Wei(1).String(), a.HighestBid)
	assert.Equal(t, bidderAddr.Hex(), a.HighestBidder)

	bids, err := f.store.ListBids(ctx, auctionAddr.Hex(), 10, 0)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, int64(1_700_000_500), bids[1].Timestamp)
}

func TestEventReconciler_DuplicateBidIsNoop(t *testing.T) {
	f := newReconcilerFixture(t)
	scriptAuction(f.ledger, auctionAddr, nftDetails(testNow.Unix()+3600))
	ctx := context.Background()
	_, err := f.rec.HandleAuctionCreated(ctx, createdEvent(1, 0, 10))
	require.NoError(t, err)

	ev := bidEvent(12, 0, adaptertest.Wei(3))
	_, err = f.rec.HandleBidPlaced(ctx, ev)
	require.NoError(t, err)
	invalidations := len(f.cache.ids)

	applied, err := f.rec.HandleBidPlaced(ctx, ev)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, f.cache.ids, invalidations)

	counts, err := f.store.CountBids(ctx, []string{auctionAddr.Hex()})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[auctionAddr.Hex()])
}

func TestEventReconciler_BidForUnknownAuctionIsDropped(t *testing.T) {
	f := newReconcilerFixture(t)

	applied, err := f.rec.HandleBidPlaced(context.Background(), bidEvent(12, 0, big.NewInt(1)))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestEventReconciler_CacheFailureIsNotFatal(t *testing.T) {
	f := newReconcilerFixture(t)
	f.cache.err = errors.New("redis down")
	scriptAuction(f.ledger, auctionAddr, nftDetails(testNow.Unix()+3600))

	inserted, err := f.rec.HandleAuctionCreated(context.Background(), createdEvent(1, 0, 10))
	require.NoError(t, err)
	assert.True(t, inserted)
}
