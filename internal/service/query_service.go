package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	apperrors "github.com/auction-indexer/internal/errors"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/metadata"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100

	tokenAssetPlaceholderImage = "https://via.placeholder.com/128x128?text=Token"
	weiDecimals                = 18
)

// QueryStore is the read access the query service needs
type QueryStore interface {
	storage.AuctionStore
	storage.BidStore
	storage.MetadataStore
}

// QueryService serves auctions, bids and cached metadata to the API. Auction
// views are enriched from the metadata tables; nothing here touches the ledger.
type QueryService struct {
	store        QueryStore
	cacheService *storage.CacheService // nil disables response caching
}

// NewQueryService creates a new query service
func NewQueryService(store QueryStore, cacheService *storage.CacheService) *QueryService {
	return &QueryService{store: store, cacheService: cacheService}
}

// AuctionListInput filters, sorts and pages the auction listing. Page is
// zero-based.
type AuctionListInput struct {
	Status      *models.AuctionStatus `json:"status,omitempty"`
	AuctionType *models.AuctionType   `json:"auctionType,omitempty"`
	Seller      string                `json:"seller,omitempty"`
	Page        int                   `json:"page"`
	PageSize    int                   `json:"pageSize"`
	SortBy      models.AuctionSort    `json:"sortBy,omitempty"`
	SortDesc    bool                  `json:"sortDesc"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasMore  bool `json:"hasMore"`
}

// AuctionListResult is one page of enriched auctions
type AuctionListResult struct {
	Auctions   []models.AuctionView `json:"auctions"`
	Pagination PaginationInfo       `json:"pagination"`
	Cached     bool                 `json:"cached"`
}

// BidListResult is one page of an auction's bids, newest first
type BidListResult struct {
	AuctionID  string           `json:"auctionId"`
	Bids       []models.BidView `json:"bids"`
	Pagination PaginationInfo   `json:"pagination"`
}

// ListAuctions returns one page of auctions matching input
func (s *QueryService) ListAuctions(ctx context.Context, input AuctionListInput) (*AuctionListResult, error) {
	if err := validateListInput(&input); err != nil {
		return nil, err
	}

	key := s.listCacheKey(input)
	var cached AuctionListResult
	if s.fromCache(ctx, key, &cached) {
		cached.Cached = true
		return &cached, nil
	}

	query := models.AuctionQuery{
		Status:      input.Status,
		AuctionType: input.AuctionType,
		Seller:      input.Seller,
		SortBy:      input.SortBy,
		SortDesc:    input.SortDesc,
		Limit:       input.PageSize,
		Offset:      input.Page * input.PageSize,
	}
	auctions, total, err := s.store.ListAuctions(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list auctions", err)
	}

	views, err := s.enrich(ctx, auctions)
	if err != nil {
		return nil, err
	}

	result := &AuctionListResult{
		Auctions: views,
		Pagination: PaginationInfo{
			Total:    total,
			Page:     input.Page,
			PageSize: input.PageSize,
			HasMore:  query.Offset+len(views) < total,
		},
	}
	s.toCache(ctx, key, result)
	return result, nil
}

// GetAuction returns one enriched auction by its factory id
func (s *QueryService) GetAuction(ctx context.Context, auctionID string) (*models.AuctionView, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return nil, err
	}

	var view models.AuctionView
	key := s.key(storage.CacheKeyAuction, auctionID)
	if s.fromCache(ctx, key, &view) {
		return &view, nil
	}

	auction, err := s.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	views, err := s.enrich(ctx, []*models.Auction{auction})
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, key, views[0])
	return &views[0], nil
}

// CountAuctions summarizes auctions by status
func (s *QueryService) CountAuctions(ctx context.Context) (*models.AuctionCounts, error) {
	var counts models.AuctionCounts
	key := s.key(storage.CacheKeyAuctionCount)
	if s.fromCache(ctx, key, &counts) {
		return &counts, nil
	}

	counts, err := s.store.CountAuctions(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("count auctions", err)
	}
	s.toCache(ctx, key, counts)
	return &counts, nil
}

// ListBids returns one page of an auction's bids, newest first. Page is
// zero-based.
func (s *QueryService) ListBids(ctx context.Context, auctionID string, page, pageSize int) (*BidListResult, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return nil, err
	}
	if err := validatePage(&page, &pageSize); err != nil {
		return nil, err
	}

	var result BidListResult
	key := s.key(storage.CacheKeyBids, auctionID, strconv.Itoa(page), strconv.Itoa(pageSize))
	if s.fromCache(ctx, key, &result) {
		return &result, nil
	}

	auction, err := s.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	bids, err := s.store.ListBids(ctx, auction.AuctionAddress, pageSize, page*pageSize)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list bids", err)
	}
	counts, err := s.store.CountBids(ctx, []string{auction.AuctionAddress})
	if err != nil {
		return nil, apperrors.NewDatabaseError("count bids", err)
	}

	total := counts[auction.AuctionAddress]
	result = BidListResult{
		AuctionID: auction.AuctionID,
		Bids:      make([]models.BidView, 0, len(bids)),
		Pagination: PaginationInfo{
			Total:    total,
			Page:     page,
			PageSize: pageSize,
			HasMore:  page*pageSize+len(bids) < total,
		},
	}
	for _, b := range bids {
		result.Bids = append(result.Bids, b.View())
	}
	s.toCache(ctx, key, result)
	return &result, nil
}

// ListTokens returns every cached token metadata record
func (s *QueryService) ListTokens(ctx context.Context) ([]*models.TokenMetadata, error) {
	tokens, err := s.store.ListTokenMetadata(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list token metadata", err)
	}
	if tokens == nil {
		tokens = []*models.TokenMetadata{}
	}
	return tokens, nil
}

// ListNFTs returns every cached NFT metadata record
func (s *QueryService) ListNFTs(ctx context.Context) ([]*models.NFTMetadata, error) {
	nfts, err := s.store.ListNFTMetadata(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list nft metadata", err)
	}
	if nfts == nil {
		nfts = []*models.NFTMetadata{}
	}
	return nfts, nil
}

func (s *QueryService) getAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	auction, err := s.store.GetAuctionByID(ctx, auctionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("auction", auctionID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get auction", err)
	}
	return auction, nil
}

// enrich builds views with bid counts, asset metadata and currency details
func (s *QueryService) enrich(ctx context.Context, auctions []*models.Auction) ([]models.AuctionView, error) {
	views := make([]models.AuctionView, 0, len(auctions))
	if len(auctions) == 0 {
		return views, nil
	}

	addresses := make([]string, 0, len(auctions))
	for _, a := range auctions {
		addresses = append(addresses, a.AuctionAddress)
	}
	bidCounts, err := s.store.CountBids(ctx, addresses)
	if err != nil {
		return nil, apperrors.NewDatabaseError("count bids", err)
	}

	for _, a := range auctions {
		view := a.View(bidCounts[a.AuctionAddress])
		if err := s.describeAsset(ctx, a, &view); err != nil {
			return nil, err
		}
		currency, err := s.tokenMetadata(ctx, a.PaymentToken)
		if err != nil {
			return nil, err
		}
		view.WithCurrency(currency)
		views = append(views, view)
	}
	return views, nil
}

func (s *QueryService) describeAsset(ctx context.Context, a *models.Auction, view *models.AuctionView) error {
	if a.IsNFT() {
		nft, err := s.store.GetNFTMetadata(ctx, a.AssetAddress, a.AssetID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return apperrors.NewDatabaseError("get nft metadata", err)
		}
		if nft == nil {
			view.ImageURL = metadata.NFTPlaceholderImage(a.AssetID)
			view.Title = metadata.NFTName(a.AssetID)
			view.Description = metadata.MissingDescription
			return nil
		}
		view.ImageURL = nft.ImageURL
		view.Title = nft.Name
		view.Description = nft.Description
		return nil
	}

	amount := FromWei(a.Amount)
	token, err := s.tokenMetadata(ctx, a.AssetAddress)
	if err != nil {
		return err
	}
	if token == nil {
		view.ImageURL = tokenAssetPlaceholderImage
		view.Title = metadata.UnknownTokenName
		view.Description = fmt.Sprintf("%s tokens", amount)
		return nil
	}
	view.ImageURL = token.ImageURL
	view.Title = fmt.Sprintf("%s %s (%s)", amount, token.Name, token.Symbol)
	view.Description = fmt.Sprintf("%s %s tokens", amount, token.Symbol)
	return nil
}

func (s *QueryService) tokenMetadata(ctx context.Context, address string) (*models.TokenMetadata, error) {
	token, err := s.store.GetTokenMetadata(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get token metadata", err)
	}
	return token, nil
}

// FromWei renders a base-unit integer string in whole units of 18 decimals,
// without trailing zeros. Unparseable input is returned unchanged.
func FromWei(amount string) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return amount
	}
	return d.Shift(-weiDecimals).String()
}

func (s *QueryService) key(keyType storage.CacheKeyType, params ...string) string {
	if s.cacheService == nil {
		return ""
	}
	return s.cacheService.GenerateCacheKey(keyType, params...)
}

func (s *QueryService) listCacheKey(input AuctionListInput) string {
	status, auctionType := "any", "any"
	if input.Status != nil {
		status = string(*input.Status)
	}
	if input.AuctionType != nil {
		auctionType = strconv.Itoa(int(*input.AuctionType))
	}
	return s.key(storage.CacheKeyAuctionList,
		status,
		auctionType,
		input.Seller,
		string(input.SortBy),
		strconv.FormatBool(input.SortDesc),
		strconv.Itoa(input.Page),
		strconv.Itoa(input.PageSize),
	)
}

func (s *QueryService) fromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cacheService == nil || key == "" {
		return false
	}
	hit, err := s.cacheService.Get(ctx, key, dest)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Cache read failed")
		return false
	}
	return hit
}

func (s *QueryService) toCache(ctx context.Context, key string, value interface{}) {
	if s.cacheService == nil || key == "" {
		return
	}
	if err := s.cacheService.Set(ctx, key, value); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

func validateListInput(input *AuctionListInput) error {
	if input.Status != nil && !input.Status.Valid() {
		return apperrors.NewInvalidParameterError("status", "must be active or ended")
	}
	if input.AuctionType != nil && !input.AuctionType.Valid() {
		return apperrors.NewInvalidParameterError("auction_type", "must be 0 (English) or 1 (Dutch)")
	}
	if input.SortBy == "" {
		input.SortBy = models.SortByEndTime
	}
	if !input.SortBy.Valid() {
		return apperrors.NewInvalidParameterError("sort_by", "must be endTime, highestBid or created")
	}
	return validatePage(&input.Page, &input.PageSize)
}

func validatePage(page, pageSize *int) error {
	if *page < 0 {
		return apperrors.NewInvalidParameterError("page", "must not be negative")
	}
	if *pageSize == 0 {
		*pageSize = defaultPageSize
	}
	if *pageSize < 0 || *pageSize > maxPageSize {
		return apperrors.NewInvalidParameterError("page_size", fmt.Sprintf("must be between 1 and %d", maxPageSize))
	}
	if *page > math.MaxInt/(*pageSize) {
		return apperrors.NewInvalidParameterError("page", "is too large")
	}
	return nil
}

func validateAuctionID(id string) error {
	if id == "" {
		return apperrors.NewInvalidParameterError("id", "must not be empty")
	}
	if v, ok := new(big.Int).SetString(id, 10); !ok || v.Sign() < 0 {
		return apperrors.NewInvalidParameterError("id", "must be a decimal auction id")
	}
	return nil
}
