package adaptertest

import (
	"math/big"

	"github.com/auction-indexer/internal/adapter"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AuctionCreatedLog builds a factory log with every field in the data section
func AuctionCreatedLog(c *adapter.Contracts, factory common.Address, block uint64, index uint, id int64, auction common.Address, auctionType uint8, seller common.Address) types.Log {
	ev := c.Factory.Events[adapter.EventAuctionCreated]
	data, err := ev.Inputs.Pack(big.NewInt(id), auction, auctionType, seller)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address:     factory,
		Topics:      []common.Hash{ev.ID},
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(big.NewInt(int64(block)*1000 + int64(index))),
	}
}

// BidPlacedLog builds an auction log with every field in the data section
func BidPlacedLog(c *adapter.Contracts, auction common.Address, block uint64, index uint, bidder common.Address, amount *big.Int) types.Log {
	ev := c.Auction.Events[adapter.EventBidPlaced]
	data, err := ev.Inputs.Pack(bidder, amount)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address:     auction,
		Topics:      []common.Hash{ev.ID},
		Data:        data,
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(big.NewInt(int64(block)*1000 + int64(index))),
	}
}

// Wei returns n * 10^18
func Wei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}
