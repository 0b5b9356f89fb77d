package models

import "time"

// NFTMetadata caches descriptive data for one (asset_address, asset_id)
type NFTMetadata struct {
	AssetAddress string `json:"assetAddress" db:"asset_address"`
	AssetID      string `json:"assetId" db:"asset_id"`
	ImageURL     string `json:"imageUrl" db:"image_url"`
	Name         string `json:"name" db:"name"`
	Description  string `json:"description" db:"description"`
	LastUpdated  int64  `json:"-" db:"last_updated"`
}

// IsFresh reports whether the record is younger than ttl at now
func (m *NFTMetadata) IsFresh(now time.Time, ttl time.Duration) bool {
	return isFresh(m.LastUpdated, now, ttl)
}

// TokenMetadata caches ERC-20 descriptive data for one token address. The
// zero address stands for the chain's native currency.
type TokenMetadata struct {
	TokenAddress string `json:"tokenAddress" db:"token_address"`
	Symbol       string `json:"symbol" db:"symbol"`
	Name         string `json:"name" db:"name"`
	ImageURL     string `json:"imageUrl" db:"image_url"`
	Decimals     uint8  `json:"decimals" db:"decimals"`
	LastUpdated  int64  `json:"-" db:"last_updated"`
}

// IsFresh reports whether the record is younger than ttl at now
func (m *TokenMetadata) IsFresh(now time.Time, ttl time.Duration) bool {
	return isFresh(m.LastUpdated, now, ttl)
}

func isFresh(lastUpdated int64, now time.Time, ttl time.Duration) bool {
	return now.Unix()-lastUpdated < int64(ttl/time.Second)
}
