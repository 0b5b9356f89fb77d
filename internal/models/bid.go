package models

// Bid is one BidPlaced log applied to an auction. Bids are append-only and
// keyed by (auction_address, block_number, log_index).
type Bid struct {
	AuctionAddress string `json:"auctionAddress" db:"auction_address"`
	Bidder         string `json:"bidder" db:"bidder"`
	Amount         string `json:"amount" db:"amount"`
	BlockNumber    uint64 `json:"blockNumber" db:"block_number"`
	LogIndex       uint   `json:"logIndex" db:"log_index"`
	TxHash         string `json:"txHash" db:"tx_hash"`
	Timestamp      int64  `json:"timestamp" db:"block_time"`
}

// BidView is the external representation of a bid
type BidView struct {
	Bidder      string `json:"bidder"`
	Amount      string `json:"amount"`
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"`
	TxHash      string `json:"txHash,omitempty"`
}

// View returns the external representation
func (b *Bid) View() BidView {
	return BidView{
		Bidder:      b.Bidder,
		Amount:      b.Amount,
		BlockNumber: b.BlockNumber,
		Timestamp:   b.Timestamp,
		TxHash:      b.TxHash,
	}
}
