package models

import (
	"fmt"
	"time"
)

// AuctionType identifies the auction variant. Values match the factory's
// on-chain uint8 encoding.
type AuctionType uint8

const (
	AuctionTypeEnglish AuctionType = 0
	AuctionTypeDutch   AuctionType = 1
)

// Valid reports whether t is one of the known variants
func (t AuctionType) Valid() bool {
	return t == AuctionTypeEnglish || t == AuctionTypeDutch
}

func (t AuctionType) String() string {
	switch t {
	case AuctionTypeEnglish:
		return "english"
	case AuctionTypeDutch:
		return "dutch"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// AuctionStatus is derived from the ended flag and the end time
type AuctionStatus string

const (
	StatusActive AuctionStatus = "active"
	StatusEnded  AuctionStatus = "ended"
)

// Valid reports whether s is a known status
func (s AuctionStatus) Valid() bool {
	return s == StatusActive || s == StatusEnded
}

// DeriveStatus returns active iff the auction is not ended and its end time
// is strictly in the future.
func DeriveStatus(ended bool, endTime int64, now time.Time) AuctionStatus {
	if !ended && endTime > now.Unix() {
		return StatusActive
	}
	return StatusEnded
}

// Auction is the off-chain mirror of one auction contract
type Auction struct {
	AuctionID      string        `json:"auctionId" db:"auction_id"`
	AuctionAddress string        `json:"auctionAddress" db:"auction_address"`
	AuctionType    AuctionType   `json:"auctionType" db:"auction_type"`
	Seller         string        `json:"seller" db:"seller"`
	HighestBidder  string        `json:"highestBidder" db:"highest_bidder"`
	HighestBid     string        `json:"highestBid" db:"highest_bid"`
	EndTime        int64         `json:"endTime" db:"end_time"`
	Ended          bool          `json:"ended" db:"ended"`
	AssetAddress   string        `json:"assetAddress" db:"asset_address"`
	AssetID        string        `json:"assetId" db:"asset_id"`
	Amount         string        `json:"amount" db:"amount"`
	PaymentToken   string        `json:"paymentToken" db:"payment_token"`
	CreatedAt      uint64        `json:"blockNumber" db:"created_at"` // origin block, 0 when back-filled
	Status         AuctionStatus `json:"status" db:"status"`
	TokenSymbol    string        `json:"currency" db:"token_symbol"`
	ReservePrice   *string       `json:"reservePrice,omitempty" db:"reserve_price"`
	CurrentPrice   *string       `json:"currentPrice,omitempty" db:"current_price"`
	Duration       *string       `json:"duration,omitempty" db:"duration"`
	UpdatedAt      time.Time     `json:"-" db:"updated_at"`
}

// IsNFT reports whether the auctioned asset is non-fungible (amount == 0)
func (a *Auction) IsNFT() bool {
	return a.Amount == "0" || a.Amount == ""
}

// AuctionCounts summarizes the store by status
type AuctionCounts struct {
	Active int `json:"active"`
	Ended  int `json:"ended"`
	Total  int `json:"total"`
}

// AuctionSort names a sortable column of the listing endpoint
type AuctionSort string

const (
	SortByEndTime    AuctionSort = "endTime"
	SortByHighestBid AuctionSort = "highestBid"
	SortByCreated    AuctionSort = "created"
)

// Valid reports whether s is a supported sort key
func (s AuctionSort) Valid() bool {
	switch s {
	case SortByEndTime, SortByHighestBid, SortByCreated:
		return true
	}
	return false
}

// AuctionQuery filters and pages an auction listing
type AuctionQuery struct {
	Status      *AuctionStatus
	AuctionType *AuctionType
	Seller      string // case-insensitive substring
	SortBy      AuctionSort
	SortDesc    bool
	Limit       int
	Offset      int
}

// AuctionRef is the minimum the bid scanner needs per auction
type AuctionRef struct {
	AuctionAddress string
	CreatedAt      uint64
}
