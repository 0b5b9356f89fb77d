package adapter

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	factoryAddr = common.HexToAddress("0x04b7ab1a9f98225f2d93c336a24c52e0fc718a49")
	auctionAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	sellerAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	bidderAddr  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestDecodeAuctionCreated_DataLayout(t *testing.T) {
	c := DefaultContracts()
	ev := c.Factory.Events[EventAuctionCreated]
	data, err := ev.Inputs.Pack(big.NewInt(7), auctionAddr, uint8(1), sellerAddr)
	require.NoError(t, err)

	got, err := c.DecodeAuctionCreated(types.Log{
		Address:     factoryAddr,
		Topics:      []common.Hash{ev.ID},
		Data:        data,
		BlockNumber: 120,
		Index:       3,
	})
	require.NoError(t, err)
	assert.Equal(t, "7", got.AuctionID.String())
	assert.Equal(t, auctionAddr, got.AuctionAddress)
	assert.Equal(t, uint8(1), got.AuctionType)
	assert.Equal(t, sellerAddr, got.Seller)
	assert.Equal(t, uint64(120), got.BlockNumber)
	assert.Equal(t, uint(3), got.LogIndex)
}

func TestDecodeAuctionCreated_IndexedLayout(t *testing.T) {
	c := DefaultContracts()
	ev := c.Factory.Events[EventAuctionCreated]

	// auctionId and auctionAddress indexed, the rest in data
	data, err := ev.Inputs[2:].Pack(uint8(0), sellerAddr)
	require.NoError(t, err)

	got, err := c.DecodeAuctionCreated(types.Log{
		Address: factoryAddr,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(42)),
			common.BytesToHash(auctionAddr.Bytes()),
		},
		Data: data,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", got.AuctionID.String())
	assert.Equal(t, auctionAddr, got.AuctionAddress)
	assert.Equal(t, uint8(0), got.AuctionType)
	assert.Equal(t, sellerAddr, got.Seller)
}

func TestDecodeBidPlaced(t *testing.T) {
	c := DefaultContracts()
	ev := c.Auction.Events[EventBidPlaced]
	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	data, err := ev.Inputs.Pack(bidderAddr, amount)
	require.NoError(t, err)

	got, err := c.DecodeBidPlaced(types.Log{
		Address:     auctionAddr,
		Topics:      []common.Hash{ev.ID},
		Data:        data,
		BlockNumber: 130,
		Index:       1,
		TxHash:      common.HexToHash("0xabc"),
	})
	require.NoError(t, err)
	assert.Equal(t, auctionAddr, got.Auction)
	assert.Equal(t, bidderAddr, got.Bidder)
	assert.Equal(t, 0, amount.Cmp(got.Amount))
	assert.Equal(t, common.HexToHash("0xabc"), got.TxHash)
}

func TestDecode_WrongSignature(t *testing.T) {
	c := DefaultContracts()
	_, err := c.DecodeBidPlaced(types.Log{Topics: []common.Hash{c.AuctionCreatedTopic()}})
	assert.ErrorIs(t, err, ErrUnexpectedEvent)

	_, err = c.DecodeAuctionCreated(types.Log{})
	assert.ErrorIs(t, err, ErrUnexpectedEvent)
}

func TestDecode_TruncatedData(t *testing.T) {
	c := DefaultContracts()
	_, err := c.DecodeBidPlaced(types.Log{Topics: []common.Hash{c.BidPlacedTopic()}, Data: []byte{0x01}})
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	c := DefaultContracts()
	assert.NotEqual(t, c.AuctionCreatedTopic(), c.BidPlacedTopic())
	// Dutch auctions emit the same bid event
	assert.Equal(t, c.BidPlacedTopic(), c.DutchAuction.Events[EventBidPlaced].ID)
}
