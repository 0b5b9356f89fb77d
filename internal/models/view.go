package models

// AuctionView is the flat external representation served by the query API.
// Asset and currency fields are filled from the metadata tables.
type AuctionView struct {
	ID             string        `json:"id"`
	AuctionID      string        `json:"auctionId"`
	AuctionAddress string        `json:"auctionAddress"`
	AuctionType    AuctionType   `json:"auctionType"`
	Seller         string        `json:"seller"`
	HighestBidder  string        `json:"highestBidder"`
	HighestBid     string        `json:"highestBid"`
	EndTime        int64         `json:"endTime"`
	Ended          bool          `json:"ended"`
	AssetAddress   string        `json:"assetAddress"`
	AssetID        string        `json:"assetId"`
	Amount         string        `json:"amount"`
	PaymentToken   string        `json:"paymentToken"`
	BlockNumber    uint64        `json:"blockNumber"`
	Status         AuctionStatus `json:"status"`
	BidCount       int           `json:"bidCount"`
	Currency       string        `json:"currency"`
	ReservePrice   *string       `json:"reservePrice,omitempty"`
	CurrentPrice   *string       `json:"currentPrice,omitempty"`

	ImageURL         string `json:"imageUrl,omitempty"`
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	CurrencySymbol   string `json:"currencySymbol,omitempty"`
	CurrencyName     string `json:"currencyName,omitempty"`
	CurrencyImageURL string `json:"currencyImageUrl,omitempty"`
	CurrencyDecimals *uint8 `json:"currencyDecimals,omitempty"`
}

// View returns the external representation of a. Dutch-only prices are
// dropped for English auctions.
func (a *Auction) View(bidCount int) AuctionView {
	v := AuctionView{
		ID:             a.AuctionID,
		AuctionID:      a.AuctionID,
		AuctionAddress: a.AuctionAddress,
		AuctionType:    a.AuctionType,
		Seller:         a.Seller,
		HighestBidder:  a.HighestBidder,
		HighestBid:     a.HighestBid,
		EndTime:        a.EndTime,
		Ended:          a.Ended,
		AssetAddress:   a.AssetAddress,
		AssetID:        a.AssetID,
		Amount:         a.Amount,
		PaymentToken:   a.PaymentToken,
		BlockNumber:    a.CreatedAt,
		Status:         a.Status,
		BidCount:       bidCount,
		Currency:       a.TokenSymbol,
	}
	if a.AuctionType == AuctionTypeDutch {
		if a.ReservePrice != nil && *a.ReservePrice != "" {
			v.ReservePrice = a.ReservePrice
		}
		if a.CurrentPrice != nil && *a.CurrentPrice != "" {
			v.CurrentPrice = a.CurrentPrice
		}
	}
	return v
}

// WithCurrency copies payment token metadata into the view
func (v *AuctionView) WithCurrency(token *TokenMetadata) {
	if token == nil {
		return
	}
	decimals := token.Decimals
	v.CurrencySymbol = token.Symbol
	v.CurrencyName = token.Name
	v.CurrencyImageURL = token.ImageURL
	v.CurrencyDecimals = &decimals
}
