package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auction(id, addr string, endTime int64, bid string) *models.Auction {
	return &models.Auction{
		AuctionID:      id,
		AuctionAddress: addr,
		Seller:         "0xSeller" + id,
		HighestBid:     bid,
		EndTime:        endTime,
		Amount:         "0",
		Status:         models.StatusActive,
		CreatedAt:      uint64(len(id) * 10),
	}
}

func TestStore_InsertIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.InsertAuction(ctx, auction("1", "0xa", 100, "0"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertAuction(ctx, auction("1", "0xb", 100, "0"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.InsertAuction(ctx, auction("2", "0xa", 100, "0"))
	require.NoError(t, err)
	assert.False(t, ok)

	counts, err := s.CountAuctions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.InsertAuction(ctx, auction("1", "0xa", 100, "0"))

	got, err := s.GetAuctionByID(ctx, "1")
	require.NoError(t, err)
	got.HighestBid = "999"

	again, err := s.GetAuctionByAddress(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, "0", again.HighestBid)

	_, err = s.GetAuctionByID(ctx, "2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ListAuctions(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.InsertAuction(ctx, auction("1", "0xa", 300, "30"))
	_, _ = s.InsertAuction(ctx, auction("2", "0xb", 100, "1000000000000000000000"))
	_, _ = s.InsertAuction(ctx, auction("3", "0xc", 200, "5"))

	items, total, err := s.ListAuctions(ctx, models.AuctionQuery{SortBy: models.SortByHighestBid, SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"2", "1", "3"}, ids(items))

	items, total, err = s.ListAuctions(ctx, models.AuctionQuery{SortBy: models.SortByEndTime, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"3", "1"}, ids(items))

	items, _, err = s.ListAuctions(ctx, models.AuctionQuery{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, _, err = s.ListAuctions(ctx, models.AuctionQuery{SortBy: models.SortByEndTime, Limit: 1, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(items))

	items, total, err = s.ListAuctions(ctx, models.AuctionQuery{Seller: "sellER2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"2"}, ids(items))
}

func TestStore_ApplyBid(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.InsertAuction(ctx, auction("1", "0xa", 300, "0"))

	bid := &models.Bid{AuctionAddress: "0xa", Bidder: "0xb1", Amount: "10", BlockNumber: 5, LogIndex: 1}
	applied, err := s.ApplyBid(ctx, bid)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.ApplyBid(ctx, bid)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = s.ApplyBid(ctx, &models.Bid{AuctionAddress: "0xzz", BlockNumber: 1})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.ApplyBid(ctx, &models.Bid{AuctionAddress: "0xa", Bidder: "0xb2", Amount: "20", BlockNumber: 7})
	require.NoError(t, err)

	bids, err := s.ListBids(ctx, "0xa", 10, 0)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, uint64(7), bids[0].BlockNumber)

	bids, err = s.ListBids(ctx, "0xa", 10, -3)
	require.NoError(t, err)
	assert.Len(t, bids, 2)

	a, _ := s.GetAuctionByID(ctx, "1")
	assert.Equal(t, "20", a.HighestBid)
	assert.Equal(t, "0xb2", a.HighestBidder)

	counts, err := s.CountBids(ctx, []string{"0xa", "0xnone"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"0xa": 2}, counts)
}

func TestStore_SyncStateMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, storage.CheckpointFactory, 10))
	require.NoError(t, s.SaveCheckpoint(ctx, storage.CheckpointFactory, 5))
	cp, ok, err := s.GetCheckpoint(ctx, storage.CheckpointFactory)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), cp)

	_, ok, _ = s.GetWatermark(ctx, "0xa")
	assert.False(t, ok)
	require.NoError(t, s.SaveWatermark(ctx, "0xa", 3))
	require.NoError(t, s.SaveWatermark(ctx, "0xa", 2))
	wm, _, _ := s.GetWatermark(ctx, "0xa")
	assert.Equal(t, uint64(3), wm)
}

func TestStore_ExpiredAndUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.InsertAuction(ctx, auction("1", "0xa", 100, "0"))
	_, _ = s.InsertAuction(ctx, auction("2", "0xb", 300, "0"))

	expired, err := s.ListExpiredActive(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(expired))

	require.NoError(t, s.UpdateAuctionState(ctx, "0xa", storage.AuctionStateUpdate{Status: models.StatusEnded}))
	expired, _ = s.ListExpiredActive(ctx, 200)
	assert.Empty(t, expired)

	assert.ErrorIs(t, s.UpdateAuctionState(ctx, "0xzz", storage.AuctionStateUpdate{}), storage.ErrNotFound)
}

func TestStore_FailOn(t *testing.T) {
	s := New()
	boom := errors.New("disk full")
	s.FailOn("InsertAuction", boom)

	_, err := s.InsertAuction(context.Background(), auction("1", "0xa", 1, "0"))
	assert.ErrorIs(t, err, boom)

	s.FailOn("InsertAuction", nil)
	_, err = s.InsertAuction(context.Background(), auction("1", "0xa", 1, "0"))
	assert.NoError(t, err)
}

func ids(items []*models.Auction) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.AuctionID)
	}
	return out
}
