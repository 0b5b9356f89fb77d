package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	apperrors "github.com/auction-indexer/internal/errors"
	"github.com/auction-indexer/internal/metadata"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage"
	"github.com/auction-indexer/internal/storage/memstore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedQueryAuction(t *testing.T, store *memstore.Store, id int, mutate func(a *models.Auction)) *models.Auction {
	t.Helper()
	a := &models.Auction{
		AuctionID:      fmt.Sprint(id),
		AuctionAddress: common.BigToAddress(big.NewInt(int64(0x1000 + id))).Hex(),
		Seller:         sellerAddr.Hex(),
		HighestBidder:  common.Address{}.Hex(),
		HighestBid:     "0",
		EndTime:        testNow.Unix() + int64(id),
		AssetAddress:   nftAddr.Hex(),
		AssetID:        fmt.Sprint(id),
		Amount:         "0",
		PaymentToken:   common.Address{}.Hex(),
		Status:         models.StatusActive,
		TokenSymbol:    "ETH",
		CreatedAt:      uint64(id),
	}
	if mutate != nil {
		mutate(a)
	}
	_, err := store.InsertAuction(context.Background(), a)
	require.NoError(t, err)
	return a
}

func TestQueryService_EnrichesNFTAuction(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	seedQueryAuction(t, store, 1, nil)
	require.NoError(t, store.UpsertNFTMetadata(ctx, &models.NFTMetadata{
		AssetAddress: nftAddr.Hex(), AssetID: "1",
		ImageURL: "https://ipfs.io/ipfs/img.png", Name: "Punk", Description: "A punk",
	}))
	require.NoError(t, store.UpsertTokenMetadata(ctx, &models.TokenMetadata{
		TokenAddress: common.Address{}.Hex(), Symbol: "ETH", Name: "Ether", Decimals: 18,
	}))

	view, err := NewQueryService(store, nil).GetAuction(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Punk", view.Title)
	assert.Equal(t, "https://ipfs.io/ipfs/img.png", view.ImageURL)
	assert.Equal(t, "A punk", view.Description)
	assert.Equal(t, "Ether", view.CurrencyName)
	require.NotNil(t, view.CurrencyDecimals)
	assert.Equal(t, uint8(18), *view.CurrencyDecimals)
}

func TestQueryService_NFTWithoutMetadata(t *testing.T) {
	store := memstore.New()
	seedQueryAuction(t, store, 7, nil)

	view, err := NewQueryService(store, nil).GetAuction(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "NFT #7", view.Title)
	assert.Equal(t, metadata.NFTPlaceholderImage("7"), view.ImageURL)
	assert.Equal(t, metadata.MissingDescription, view.Description)
	assert.Nil(t, view.CurrencyDecimals)
}

func TestQueryService_FungibleAsset(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	seedQueryAuction(t, store, 2, func(a *models.Auction) {
		a.AssetAddress = usdcAddr.Hex()
		a.Amount = "1500000000000000000"
	})

	svc := NewQueryService(store, nil)
	view, err := svc.GetAuction(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "Unknown Token", view.Title)
	assert.Equal(t, "1.5 tokens", view.Description)
	assert.Equal(t, tokenAssetPlaceholderImage, view.ImageURL)

	require.NoError(t, store.UpsertTokenMetadata(ctx, &models.TokenMetadata{
		TokenAddress: usdcAddr.Hex(), Symbol: "USDC", Name: "USD Coin", ImageURL: "https://logos/usdc.png", Decimals: 6,
	}))
	view, err = svc.GetAuction(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "1.5 USD Coin (USDC)", view.Title)
	assert.Equal(t, "1.5 USDC tokens", view.Description)
	assert.Equal(t, "https://logos/usdc.png", view.ImageURL)
}

func TestQueryService_ListAuctionsPagination(t *testing.T) {
	store := memstore.New()
	for i := 1; i <= 5; i++ {
		seedQueryAuction(t, store, i, nil)
	}
	svc := NewQueryService(store, nil)

	res, err := svc.ListAuctions(context.Background(), AuctionListInput{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, res.Auctions, 2)
	assert.Equal(t, "3", res.Auctions[0].AuctionID)
	assert.Equal(t, "4", res.Auctions[1].AuctionID)
	assert.Equal(t, 5, res.Pagination.Total)
	assert.True(t, res.Pagination.HasMore)

	res, err = svc.ListAuctions(context.Background(), AuctionListInput{Page: 2, PageSize: 2, SortDesc: true})
	require.NoError(t, err)
	require.Len(t, res.Auctions, 1)
	assert.Equal(t, "1", res.Auctions[0].AuctionID)
	assert.False(t, res.Pagination.HasMore)
}

func TestQueryService_ListAuctionsDefaults(t *testing.T) {
	store := memstore.New()
	for i := 1; i <= 12; i++ {
		seedQueryAuction(t, store, i, nil)
	}

	res, err := NewQueryService(store, nil).ListAuctions(context.Background(), AuctionListInput{})
	require.NoError(t, err)
	assert.Len(t, res.Auctions, defaultPageSize)
	assert.Equal(t, defaultPageSize, res.Pagination.PageSize)
}

func TestQueryService_InvalidInput(t *testing.T) {
	svc := NewQueryService(memstore.New(), nil)
	bad := models.AuctionStatus("paused")
	badType := models.AuctionType(3)

	tests := []struct {
		name  string
		input AuctionListInput
	}{
		{"negative page", AuctionListInput{Page: -1}},
		{"huge page size", AuctionListInput{PageSize: maxPageSize + 1}},
		{"unknown sort", AuctionListInput{SortBy: "seller"}},
		{"unknown status", AuctionListInput{Status: &bad}},
		{"unknown type", AuctionListInput{AuctionType: &badType}},
		{"page overflows offset", AuctionListInput{Page: math.MaxInt / 10, PageSize: 10}},
		{"page overflows default size", AuctionListInput{Page: 1e18}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ListAuctions(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsUserError(err))
		})
	}

	_, err := svc.GetAuction(context.Background(), "abc")
	assert.True(t, apperrors.IsUserError(err))
}

func TestQueryService_ListBidsPageOverflow(t *testing.T) {
	store := memstore.New()
	seedQueryAuction(t, store, 1, nil)
	svc := NewQueryService(store, nil)

	_, err := svc.ListBids(context.Background(), "1", 1e18, 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsUserError(err))
}

func TestQueryService_NotFound(t *testing.T) {
	svc := NewQueryService(memstore.New(), nil)

	_, err := svc.GetAuction(context.Background(), "99")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.ListBids(context.Background(), "99", 0, 10)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestQueryService_StoreErrorIsDatabaseError(t *testing.T) {
	store := memstore.New()
	store.FailOn("CountAuctions", errors.New("too many connections"))

	_, err := NewQueryService(store, nil).CountAuctions(context.Background())
	require.Error(t, err)
	cat := apperrors.Categorize(err)
	assert.Equal(t, apperrors.CategoryDatabase, cat.Category)
}

func TestQueryService_ListBids(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	a := seedQueryAuction(t, store, 1, nil)
	for i := 0; i < 3; i++ {
		_, err := store.ApplyBid(ctx, &models.Bid{
			AuctionAddress: a.AuctionAddress,
			Bidder:         bidderAddr.Hex(),
			Amount:         fmt.Sprint(100 + i),
			BlockNumber:    uint64(10 + i),
			TxHash:         common.BigToHash(common.Big1).Hex(),
		})
		require.NoError(t, err)
	}

	svc := NewQueryService(store, nil)
	res, err := svc.ListBids(ctx, "1", 0, 2)
	require.NoError(t, err)
	require.Len(t, res.Bids, 2)
	assert.Equal(t, "102", res.Bids[0].Amount)
	assert.Equal(t, 3, res.Pagination.Total)
	assert.True(t, res.Pagination.HasMore)

	view, err := svc.GetAuction(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 3, view.BidCount)
	assert.Equal(t, "102", view.HighestBid)
}

func TestQueryService_ResponsesAreCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cacheService := storage.NewCacheService(storage.NewRedisCacheFromClient(client), time.Minute)

	store := memstore.New()
	ctx := context.Background()
	seedQueryAuction(t, store, 1, nil)
	svc := NewQueryService(store, cacheService)

	first, err := svc.ListAuctions(ctx, AuctionListInput{})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	seedQueryAuction(t, store, 2, nil)
	second, err := svc.ListAuctions(ctx, AuctionListInput{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Len(t, second.Auctions, 1)

	require.NoError(t, cacheService.InvalidateAuction(ctx, "2"))
	third, err := svc.ListAuctions(ctx, AuctionListInput{})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Len(t, third.Auctions, 2)
}

func TestFromWei(t *testing.T) {
	assert.Equal(t, "0", FromWei("0"))
	assert.Equal(t, "1", FromWei("1000000000000000000"))
	assert.Equal(t, "0.000000000000000001", FromWei("1"))
	assert.Equal(t, "12.25", FromWei("12250000000000000000"))
	assert.Equal(t, "n/a", FromWei("n/a"))
}

func TestFromWei_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("whole units render without a fraction", prop.ForAll(
		func(n uint32) bool {
			return FromWei(fmt.Sprintf("%d%s", n, strings.Repeat("0", 18))) == fmt.Sprint(n)
		},
		gen.UInt32(),
	))

	properties.Property("scaling back by 18 decimals restores the amount", prop.ForAll(
		func(n uint64) bool {
			amount := strconv.FormatUint(n, 10)
			back, err := decimal.NewFromString(FromWei(amount))
			return err == nil && back.Shift(18).String() == amount
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
