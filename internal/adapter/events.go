package adapter

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnexpectedEvent is returned when a log does not carry the requested event
var ErrUnexpectedEvent = errors.New("log does not match event signature")

// AuctionCreatedEvent is a decoded factory AuctionCreated log
type AuctionCreatedEvent struct {
	AuctionID      *big.Int
	AuctionAddress common.Address
	AuctionType    uint8
	Seller         common.Address
	BlockNumber    uint64
	LogIndex       uint
	TxHash         common.Hash
}

// BidPlacedEvent is a decoded auction BidPlaced log
type BidPlacedEvent struct {
	Auction     common.Address
	Bidder      common.Address
	Amount      *big.Int
	BlockNumber uint64
	LogIndex    uint
	TxHash      common.Hash
}

// AuctionCreatedTopic returns topic0 of the factory's creation event
func (c *Contracts) AuctionCreatedTopic() common.Hash {
	return c.Factory.Events[EventAuctionCreated].ID
}

// BidPlacedTopic returns topic0 of the auction's bid event
func (c *Contracts) BidPlacedTopic() common.Hash {
	return c.Auction.Events[EventBidPlaced].ID
}

// DecodeAuctionCreated decodes a factory log
func (c *Contracts) DecodeAuctionCreated(log types.Log) (*AuctionCreatedEvent, error) {
	fields, err := decodeEvent(c.Factory.Events[EventAuctionCreated], log)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", EventAuctionCreated, err)
	}

	ev := &AuctionCreatedEvent{
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		TxHash:      log.TxHash,
	}
	if ev.AuctionID, err = asBigInt(fields["auctionId"]); err != nil {
		return nil, fmt.Errorf("decode %s auctionId: %w", EventAuctionCreated, err)
	}
	if ev.AuctionAddress, err = asAddress(fields["auctionAddress"]); err != nil {
		return nil, fmt.Errorf("decode %s auctionAddress: %w", EventAuctionCreated, err)
	}
	if ev.AuctionType, err = asUint8(fields["auctionType"]); err != nil {
		return nil, fmt.Errorf("decode %s auctionType: %w", EventAuctionCreated, err)
	}
	if ev.Seller, err = asAddress(fields["seller"]); err != nil {
		return nil, fmt.Errorf("decode %s seller: %w", EventAuctionCreated, err)
	}
	return ev, nil
}

// DecodeBidPlaced decodes an auction log. The auction is the log's emitter.
func (c *Contracts) DecodeBidPlaced(log types.Log) (*BidPlacedEvent, error) {
	fields, err := decodeEvent(c.Auction.Events[EventBidPlaced], log)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", EventBidPlaced, err)
	}

	ev := &BidPlacedEvent{
		Auction:     log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		TxHash:      log.TxHash,
	}
	if ev.Bidder, err = asAddress(fields["bidder"]); err != nil {
		return nil, fmt.Errorf("decode %s bidder: %w", EventBidPlaced, err)
	}
	if ev.Amount, err = asBigInt(fields["amount"]); err != nil {
		return nil, fmt.Errorf("decode %s amount: %w", EventBidPlaced, err)
	}
	return ev, nil
}

// decodeEvent unpacks data and topics of log into a name-keyed map. Deployed
// contracts disagree on which fields are indexed, so when the topic count
// does not match the ABI the leading inputs are taken as the indexed ones.
func decodeEvent(event abi.Event, log types.Log) (map[string]interface{}, error) {
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, ErrUnexpectedEvent
	}

	topics := log.Topics[1:]
	if len(topics) > len(event.Inputs) {
		return nil, fmt.Errorf("log has %d topics, event declares %d inputs", len(topics), len(event.Inputs))
	}

	declared := 0
	for _, in := range event.Inputs {
		if in.Indexed {
			declared++
		}
	}

	relayout := declared != len(topics)

	var indexed, data abi.Arguments
	for i, in := range event.Inputs {
		if relayout {
			in.Indexed = i < len(topics)
		}
		if in.Indexed {
			indexed = append(indexed, in)
		} else {
			data = append(data, in)
		}
	}

	out := make(map[string]interface{}, len(event.Inputs))
	if len(data) > 0 {
		if err := data.UnpackIntoMap(out, log.Data); err != nil {
			return nil, fmt.Errorf("unpack data: %w", err)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(out, indexed, topics); err != nil {
			return nil, fmt.Errorf("parse topics: %w", err)
		}
	}
	return out, nil
}

func asBigInt(v interface{}) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, errors.New("nil integer")
		}
		return x, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case common.Hash:
		return new(big.Int).SetBytes(x[:]), nil
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
}

func asAddress(v interface{}) (common.Address, error) {
	switch x := v.(type) {
	case common.Address:
		return x, nil
	case common.Hash:
		return common.BytesToAddress(x[:]), nil
	default:
		return common.Address{}, fmt.Errorf("unexpected type %T", v)
	}
}

func asUint8(v interface{}) (uint8, error) {
	switch x := v.(type) {
	case uint8:
		return x, nil
	case *big.Int:
		if x == nil || !x.IsUint64() || x.Uint64() > 255 {
			return 0, fmt.Errorf("value %v out of uint8 range", x)
		}
		return uint8(x.Uint64()), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
