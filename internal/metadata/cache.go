// Package metadata resolves and caches NFT and ERC-20 descriptive data.
// Lookups never fail: anything that cannot be fetched degrades into a
// placeholder record.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/clock"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/metrics"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage"
	"github.com/ethereum/go-ethereum/common"
)

// Lookup kinds and outcomes reported to metrics
const (
	kindNFT   = "nft"
	kindToken = "token"

	resultHit         = "hit"
	resultFetched     = "fetched"
	resultPlaceholder = "placeholder"
	resultStale       = "stale"
)

// Config configures the cache
type Config struct {
	TTL          time.Duration
	IPFSGateway  string
	LogoBaseURL  string
	NativeSymbol string
	NativeName   string
}

// Fetcher is the HTTP access the cache needs
type Fetcher interface {
	GetJSON(ctx context.Context, url string, dest interface{}) error
	Exists(ctx context.Context, url string) (bool, error)
}

// Cache resolves metadata through the store, refreshing records older than
// the TTL from the ledger and HTTP.
type Cache struct {
	store     storage.MetadataStore
	ledger    adapter.Ledger
	contracts *adapter.Contracts
	fetcher   Fetcher
	cfg       Config
	metrics   *metrics.MetadataCache
	now       clock.NowFunc
}

// NewCache creates a metadata cache
func NewCache(store storage.MetadataStore, ledger adapter.Ledger, contracts *adapter.Contracts, fetcher Fetcher, cfg Config, m *metrics.MetadataCache) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.IPFSGateway == "" {
		cfg.IPFSGateway = "https://ipfs.io/ipfs/"
	}
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "ETH"
	}
	if cfg.NativeName == "" {
		cfg.NativeName = "Ether"
	}
	return &Cache{
		store:     store,
		ledger:    ledger,
		contracts: contracts,
		fetcher:   fetcher,
		cfg:       cfg,
		metrics:   m,
		now:       clock.System,
	}
}

type nftDocument struct {
	Image       *string `json:"image"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ResolveNFT returns metadata for one (asset, id) pair
func (c *Cache) ResolveNFT(ctx context.Context, assetAddress, assetID string) *models.NFTMetadata {
	log := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"asset":   assetAddress,
		"assetId": assetID,
	})
	now := c.now()

	existing, err := c.store.GetNFTMetadata(ctx, assetAddress, assetID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithError(err).Warn("Failed to read cached NFT metadata")
		existing = nil
	}
	if existing != nil && existing.IsFresh(now, c.cfg.TTL) {
		c.observe(kindNFT, resultHit)
		return existing
	}

	fetched, err := c.fetchNFT(ctx, assetAddress, assetID, now.Unix())
	if err != nil {
		log.WithError(err).Warn("Failed to fetch NFT metadata")
		if existing != nil {
			c.observe(kindNFT, resultStale)
			return existing
		}
		placeholder := PlaceholderNFT(assetAddress, assetID, now.Unix())
		if err := c.store.UpsertNFTMetadata(ctx, placeholder); err != nil {
			log.WithError(err).Warn("Failed to store NFT placeholder")
		}
		c.observe(kindNFT, resultPlaceholder)
		return placeholder
	}

	if err := c.store.UpsertNFTMetadata(ctx, fetched); err != nil {
		log.WithError(err).Warn("Failed to store NFT metadata")
	}
	c.observe(kindNFT, resultFetched)
	log.WithField("name", fetched.Name).Debug("Refreshed NFT metadata")
	return fetched
}

func (c *Cache) fetchNFT(ctx context.Context, assetAddress, assetID string, now int64) (*models.NFTMetadata, error) {
	if c.fetcher == nil {
		return nil, errors.New("no metadata fetcher configured")
	}
	id, ok := new(big.Int).SetString(assetID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid asset id %q", assetID)
	}

	out, err := c.ledger.Call(ctx, common.HexToAddress(assetAddress), c.contracts.ERC721, adapter.MethodTokenURI, id)
	if err != nil {
		return nil, fmt.Errorf("tokenURI: %w", err)
	}
	uri, ok := firstString(out)
	if !ok || strings.TrimSpace(uri) == "" {
		return nil, errors.New("tokenURI returned no uri")
	}

	var doc nftDocument
	if err := c.fetcher.GetJSON(ctx, ResolveIPFS(uri, c.cfg.IPFSGateway), &doc); err != nil {
		return nil, err
	}

	meta := &models.NFTMetadata{
		AssetAddress: assetAddress,
		AssetID:      assetID,
		Name:         NFTName(assetID),
		Description:  NoDescription,
		LastUpdated:  now,
	}
	if doc.Image != nil {
		meta.ImageURL = ResolveIPFS(*doc.Image, c.cfg.IPFSGateway)
	}
	if doc.Name != nil {
		meta.Name = *doc.Name
	}
	if doc.Description != nil {
		meta.Description = *doc.Description
	}
	return meta, nil
}

// ResolveToken returns metadata for a payment or auctioned ERC-20 token. The
// zero address resolves to the native currency.
func (c *Cache) ResolveToken(ctx context.Context, tokenAddress string) *models.TokenMetadata {
	log := logging.FromContext(ctx).WithField("token", tokenAddress)
	now := c.now()

	existing, err := c.store.GetTokenMetadata(ctx, tokenAddress)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithError(err).Warn("Failed to read cached token metadata")
		existing = nil
	}
	if existing != nil && existing.IsFresh(now, c.cfg.TTL) {
		c.observe(kindToken, resultHit)
		return existing
	}

	var meta *models.TokenMetadata
	var fetchErr error
	if adapter.IsZeroAddress(tokenAddress) {
		meta = c.nativeToken(tokenAddress, now.Unix())
	} else {
		meta, fetchErr = c.fetchToken(ctx, tokenAddress, now.Unix())
	}
	if fetchErr != nil {
		log.WithError(fetchErr).Warn("Failed to fetch token metadata")
		if existing != nil {
			c.observe(kindToken, resultStale)
			return existing
		}
		meta = PlaceholderToken(tokenAddress, now.Unix())
		if err := c.store.UpsertTokenMetadata(ctx, meta); err != nil {
			log.WithError(err).Warn("Failed to store token placeholder")
		}
		c.observe(kindToken, resultPlaceholder)
		return meta
	}

	if err := c.store.UpsertTokenMetadata(ctx, meta); err != nil {
		log.WithError(err).Warn("Failed to store token metadata")
	}
	c.observe(kindToken, resultFetched)
	return meta
}

func (c *Cache) nativeToken(address string, now int64) *models.TokenMetadata {
	return &models.TokenMetadata{
		TokenAddress: address,
		Symbol:       c.cfg.NativeSymbol,
		Name:         c.cfg.NativeName,
		ImageURL:     LogoPlaceholder(c.cfg.NativeSymbol),
		Decimals:     DefaultDecimals,
		LastUpdated:  now,
	}
}

// fetchToken reads symbol, name and decimals independently so one missing
// accessor does not discard the others. It fails only when all three fail.
func (c *Cache) fetchToken(ctx context.Context, tokenAddress string, now int64) (*models.TokenMetadata, error) {
	log := logging.FromContext(ctx).WithField("token", tokenAddress)
	contract := common.HexToAddress(tokenAddress)
	meta := &models.TokenMetadata{
		TokenAddress: tokenAddress,
		Symbol:       UnknownSymbol,
		Name:         UnknownTokenName,
		Decimals:     DefaultDecimals,
		LastUpdated:  now,
	}

	var lastErr error
	failed := 0
	if out, err := c.ledger.Call(ctx, contract, c.contracts.ERC20, adapter.MethodSymbol); err != nil {
		log.WithError(err).Debug("Token symbol() failed")
		lastErr, failed = err, failed+1
	} else if s, ok := firstString(out); ok {
		meta.Symbol = s
	}
	if out, err := c.ledger.Call(ctx, contract, c.contracts.ERC20, adapter.MethodName); err != nil {
		log.WithError(err).Debug("Token name() failed")
		lastErr, failed = err, failed+1
	} else if s, ok := firstString(out); ok {
		meta.Name = s
	}
	if out, err := c.ledger.Call(ctx, contract, c.contracts.ERC20, adapter.MethodDecimals); err != nil {
		log.WithError(err).Debug("Token decimals() failed")
		lastErr, failed = err, failed+1
	} else if len(out) > 0 {
		if d, ok := out[0].(uint8); ok {
			meta.Decimals = d
		}
	}
	if failed == 3 {
		return nil, fmt.Errorf("token accessors unavailable: %w", lastErr)
	}

	meta.ImageURL = c.tokenLogo(ctx, tokenAddress, meta.Symbol)
	return meta, nil
}

func (c *Cache) tokenLogo(ctx context.Context, tokenAddress, symbol string) string {
	fallback := LogoPlaceholder(symbol)
	if c.fetcher == nil || c.cfg.LogoBaseURL == "" {
		return fallback
	}
	logo := fmt.Sprintf("%s/%s/logo.png", strings.TrimSuffix(c.cfg.LogoBaseURL, "/"), tokenAddress)
	ok, err := c.fetcher.Exists(ctx, logo)
	if err != nil || !ok {
		return fallback
	}
	return logo
}

func (c *Cache) observe(kind, result string) {
	if c.metrics != nil {
		c.metrics.ObserveLookup(kind, result)
	}
}

func firstString(out []interface{}) (string, bool) {
	if len(out) == 0 {
		return "", false
	}
	s, ok := out[0].(string)
	return s, ok
}
