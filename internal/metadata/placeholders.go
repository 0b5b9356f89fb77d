package metadata

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/auction-indexer/internal/models"
)

// Defaults used when a source omits a field or cannot be reached
const (
	UnknownSymbol      = "Unknown"
	UnknownTokenName   = "Unknown Token"
	DefaultDecimals    = 18
	NoDescription      = "No description available"
	MissingDescription = "Metadata not available"

	tokenPlaceholderImage = "https://via.placeholder.com/128x128?text=?"
)

// NFTName is the fallback display name of a token id
func NFTName(assetID string) string {
	return fmt.Sprintf("NFT #%s", assetID)
}

// NFTPlaceholderImage is the fallback image of a token id
func NFTPlaceholderImage(assetID string) string {
	return fmt.Sprintf("https://via.placeholder.com/300x200?text=NFT+%s", url.QueryEscape(assetID))
}

// LogoPlaceholder is the fallback logo of a token symbol
func LogoPlaceholder(symbol string) string {
	return "https://via.placeholder.com/128x128?text=" + url.QueryEscape(symbol)
}

// PlaceholderNFT is returned when an NFT's metadata cannot be fetched
func PlaceholderNFT(assetAddress, assetID string, now int64) *models.NFTMetadata {
	return &models.NFTMetadata{
		AssetAddress: assetAddress,
		AssetID:      assetID,
		ImageURL:     NFTPlaceholderImage(assetID),
		Name:         NFTName(assetID),
		Description:  MissingDescription,
		LastUpdated:  now,
	}
}

// PlaceholderToken is returned when a token's metadata cannot be resolved
func PlaceholderToken(tokenAddress string, now int64) *models.TokenMetadata {
	return &models.TokenMetadata{
		TokenAddress: tokenAddress,
		Symbol:       UnknownSymbol,
		Name:         UnknownTokenName,
		ImageURL:     tokenPlaceholderImage,
		Decimals:     DefaultDecimals,
		LastUpdated:  now,
	}
}

// ResolveIPFS rewrites ipfs:// URIs onto an HTTP gateway prefix. Other URIs
// are returned unchanged.
func ResolveIPFS(uri, gateway string) string {
	const scheme = "ipfs://"
	if !strings.HasPrefix(uri, scheme) {
		return uri
	}
	path := strings.TrimPrefix(uri[len(scheme):], "ipfs/")
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return gateway + path
}
