package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/adapter/adaptertest"
	"github.com/auction-indexer/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

var (
	auctionAddr = common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9")
	sellerAddr  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bidderAddr  = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	nftAddr     = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	usdcAddr    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	testNow = time.Unix(1_700_000_000, 0)
)

// scriptAuction installs getAuctionDetails on the fake ledger
func scriptAuction(l *adaptertest.FakeLedger, addr common.Address, d adaptertest.Details) {
	l.Return(addr, adapter.MethodGetAuctionDetails, d.Values()...)
}

// scriptDutch makes addr answer like a Dutch auction contract
func scriptDutch(l *adaptertest.FakeLedger, addr common.Address, reserve, current, duration int64) {
	l.Return(addr, adapter.MethodAuctionType, uint8(models.AuctionTypeDutch))
	l.Return(addr, adapter.MethodGetCurrentPrice, big.NewInt(current))
	l.Return(addr, adapter.MethodReservePrice, big.NewInt(reserve))
	l.Return(addr, adapter.MethodDuration, big.NewInt(duration))
}

func nftDetails(endTime int64) adaptertest.Details {
	return adaptertest.Details{
		Seller:       sellerAddr,
		EndTime:      endTime,
		AssetAddress: nftAddr,
		AssetID:      big.NewInt(42),
		Amount:       big.NewInt(0),
	}
}

// recordingMetadata remembers which lookups the reconciler asked for
type recordingMetadata struct {
	mu     sync.Mutex
	nfts   []string
	tokens []string
}

func (r *recordingMetadata) ResolveNFT(_ context.Context, assetAddress, assetID string) *models.NFTMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nfts = append(r.nfts, assetAddress+"/"+assetID)
	return &models.NFTMetadata{AssetAddress: assetAddress, AssetID: assetID}
}

func (r *recordingMetadata) ResolveToken(_ context.Context, tokenAddress string) *models.TokenMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, tokenAddress)
	return &models.TokenMetadata{TokenAddress: tokenAddress}
}

// recordingInvalidator remembers invalidated auction ids
type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingInvalidator) InvalidateAuction(_ context.Context, auctionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, auctionID)
	return r.err
}
