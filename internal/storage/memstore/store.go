// Package memstore is an in-memory storage.Store. It backs STORE_DRIVER=memory
// and the service and worker tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage"
	"github.com/shopspring/decimal"
)

type bidKey struct {
	address  string
	block    uint64
	logIndex uint
}

type nftKey struct {
	asset string
	id    string
}

// Store keeps every table in maps guarded by one mutex
type Store struct {
	mu sync.RWMutex

	auctions  []*models.Auction // insertion order
	byID      map[string]*models.Auction
	byAddress map[string]*models.Auction
	bids      map[string][]*models.Bid
	bidKeys   map[bidKey]struct{}
	nfts      map[nftKey]*models.NFTMetadata
	tokens    map[string]*models.TokenMetadata
	checks    map[string]uint64
	marks     map[string]uint64
	failures  map[string]error
}

// New returns an empty store
func New() *Store {
	return &Store{
		byID:      make(map[string]*models.Auction),
		byAddress: make(map[string]*models.Auction),
		bids:      make(map[string][]*models.Bid),
		bidKeys:   make(map[bidKey]struct{}),
		nfts:      make(map[nftKey]*models.NFTMetadata),
		tokens:    make(map[string]*models.TokenMetadata),
		checks:    make(map[string]uint64),
		marks:     make(map[string]uint64),
		failures:  make(map[string]error),
	}
}

// FailOn makes every call to the named method return err until cleared
// with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

func cloneAuction(a *models.Auction) *models.Auction {
	c := *a
	c.ReservePrice = clonePtr(a.ReservePrice)
	c.CurrentPrice = clonePtr(a.CurrentPrice)
	c.Duration = clonePtr(a.Duration)
	return &c
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// InsertAuction implements storage.AuctionStore
func (s *Store) InsertAuction(_ context.Context, a *models.Auction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertAuction"); err != nil {
		return false, err
	}
	if _, ok := s.byID[a.AuctionID]; ok {
		return false, nil
	}
	if _, ok := s.byAddress[a.AuctionAddress]; ok {
		return false, nil
	}
	c := cloneAuction(a)
	c.UpdatedAt = time.Now()
	s.auctions = append(s.auctions, c)
	s.byID[c.AuctionID] = c
	s.byAddress[c.AuctionAddress] = c
	return true, nil
}

// GetAuctionByID implements storage.AuctionStore
func (s *Store) GetAuctionByID(_ context.Context, auctionID string) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetAuctionByID"); err != nil {
		return nil, err
	}
	a, ok := s.byID[auctionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneAuction(a), nil
}

// GetAuctionByAddress implements storage.AuctionStore
func (s *Store) GetAuctionByAddress(_ context.Context, address string) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetAuctionByAddress"); err != nil {
		return nil, err
	}
	a, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneAuction(a), nil
}

// AuctionIDExists implements storage.AuctionStore
func (s *Store) AuctionIDExists(_ context.Context, auctionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("AuctionIDExists"); err != nil {
		return false, err
	}
	_, ok := s.byID[auctionID]
	return ok, nil
}

// ListAuctionRefs implements storage.AuctionStore
func (s *Store) ListAuctionRefs(_ context.Context) ([]models.AuctionRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListAuctionRefs"); err != nil {
		return nil, err
	}
	refs := make([]models.AuctionRef, 0, len(s.auctions))
	for _, a := range s.auctions {
		refs = append(refs, models.AuctionRef{AuctionAddress: a.AuctionAddress, CreatedAt: a.CreatedAt})
	}
	return refs, nil
}

// ListExpiredActive implements storage.AuctionStore
func (s *Store) ListExpiredActive(_ context.Context, now int64) ([]*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListExpiredActive"); err != nil {
		return nil, err
	}
	var out []*models.Auction
	for _, a := range s.auctions {
		if a.Status == models.StatusActive && !a.Ended && a.EndTime < now {
			out = append(out, cloneAuction(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndTime < out[j].EndTime })
	return out, nil
}

// UpdateAuctionState implements storage.AuctionStore
func (s *Store) UpdateAuctionState(_ context.Context, address string, u storage.AuctionStateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateAuctionState"); err != nil {
		return err
	}
	a, ok := s.byAddress[address]
	if !ok {
		return storage.ErrNotFound
	}
	if u.Status != "" {
		a.Status = u.Status
	}
	if u.Ended != nil {
		a.Ended = *u.Ended
	}
	if u.HighestBidder != nil {
		a.HighestBidder = *u.HighestBidder
	}
	if u.HighestBid != nil {
		a.HighestBid = *u.HighestBid
	}
	if u.CurrentPrice != nil {
		a.CurrentPrice = clonePtr(u.CurrentPrice)
	}
	a.UpdatedAt = time.Now()
	return nil
}

// MaxCreatedAt implements storage.AuctionStore
func (s *Store) MaxCreatedAt(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("MaxCreatedAt"); err != nil {
		return 0, err
	}
	var maxBlock uint64
	for _, a := range s.auctions {
		if a.CreatedAt > maxBlock {
			maxBlock = a.CreatedAt
		}
	}
	return maxBlock, nil
}

// ListAuctions implements storage.AuctionStore
func (s *Store) ListAuctions(_ context.Context, q models.AuctionQuery) ([]*models.Auction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListAuctions"); err != nil {
		return nil, 0, err
	}

	type row struct {
		a   *models.Auction
		seq int
	}
	var rows []row
	seller := strings.ToLower(q.Seller)
	for i, a := range s.auctions {
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		if q.AuctionType != nil && a.AuctionType != *q.AuctionType {
			continue
		}
		if seller != "" && !strings.Contains(strings.ToLower(a.Seller), seller) {
			continue
		}
		rows = append(rows, row{a: a, seq: i})
	}

	less := func(x, y row) int {
		switch q.SortBy {
		case models.SortByEndTime:
			return compareInt64(x.a.EndTime, y.a.EndTime)
		case models.SortByHighestBid:
			return decimalOrZero(x.a.HighestBid).Cmp(decimalOrZero(y.a.HighestBid))
		case models.SortByCreated:
			return compareInt64(int64(x.a.CreatedAt), int64(y.a.CreatedAt)) // #nosec G115 - block numbers fit in int64
		}
		return 0
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := less(rows[i], rows[j])
		if c == 0 {
			c = compareInt64(int64(rows[i].seq), int64(rows[j].seq))
		}
		if q.SortDesc {
			return c > 0
		}
		return c < 0
	})

	total := len(rows)
	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	out := make([]*models.Auction, 0, end-start)
	for _, r := range rows[start:end] {
		out = append(out, cloneAuction(r.a))
	}
	return out, total, nil
}

// CountAuctions implements storage.AuctionStore
func (s *Store) CountAuctions(_ context.Context) (models.AuctionCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c models.AuctionCounts
	if err := s.fail("CountAuctions"); err != nil {
		return c, err
	}
	for _, a := range s.auctions {
		switch a.Status {
		case models.StatusActive:
			c.Active++
		case models.StatusEnded:
			c.Ended++
		}
		c.Total++
	}
	return c, nil
}

// ApplyBid implements storage.BidStore
func (s *Store) ApplyBid(_ context.Context, bid *models.Bid) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ApplyBid"); err != nil {
		return false, err
	}
	key := bidKey{address: bid.AuctionAddress, block: bid.BlockNumber, logIndex: bid.LogIndex}
	if _, dup := s.bidKeys[key]; dup {
		return false, nil
	}
	a, ok := s.byAddress[bid.AuctionAddress]
	if !ok {
		return false, storage.ErrNotFound
	}
	c := *bid
	s.bidKeys[key] = struct{}{}
	s.bids[bid.AuctionAddress] = append(s.bids[bid.AuctionAddress], &c)
	a.HighestBidder = bid.Bidder
	a.HighestBid = bid.Amount
	a.UpdatedAt = time.Now()
	return true, nil
}

// ListBids implements storage.BidStore
func (s *Store) ListBids(_ context.Context, auctionAddress string, limit, offset int) ([]*models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListBids"); err != nil {
		return nil, err
	}
	all := append([]*models.Bid(nil), s.bids[auctionAddress]...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].BlockNumber != all[j].BlockNumber {
			return all[i].BlockNumber > all[j].BlockNumber
		}
		return all[i].LogIndex > all[j].LogIndex
	})
	if offset < 0 {
		offset = 0
	}
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]*models.Bid, 0, len(all))
	for _, b := range all {
		c := *b
		out = append(out, &c)
	}
	return out, nil
}

// CountBids implements storage.BidStore
func (s *Store) CountBids(_ context.Context, auctionAddresses []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("CountBids"); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(auctionAddresses))
	for _, addr := range auctionAddresses {
		if n := len(s.bids[addr]); n > 0 {
			counts[addr] = n
		}
	}
	return counts, nil
}

// GetNFTMetadata implements storage.MetadataStore
func (s *Store) GetNFTMetadata(_ context.Context, assetAddress, assetID string) (*models.NFTMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetNFTMetadata"); err != nil {
		return nil, err
	}
	m, ok := s.nfts[nftKey{asset: assetAddress, id: assetID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *m
	return &c, nil
}

// UpsertNFTMetadata implements storage.MetadataStore
func (s *Store) UpsertNFTMetadata(_ context.Context, m *models.NFTMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertNFTMetadata"); err != nil {
		return err
	}
	c := *m
	s.nfts[nftKey{asset: m.AssetAddress, id: m.AssetID}] = &c
	return nil
}

// ListNFTMetadata implements storage.MetadataStore
func (s *Store) ListNFTMetadata(_ context.Context) ([]*models.NFTMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListNFTMetadata"); err != nil {
		return nil, err
	}
	out := make([]*models.NFTMetadata, 0, len(s.nfts))
	for _, m := range s.nfts {
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetAddress != out[j].AssetAddress {
			return out[i].AssetAddress < out[j].AssetAddress
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out, nil
}

// GetTokenMetadata implements storage.MetadataStore
func (s *Store) GetTokenMetadata(_ context.Context, tokenAddress string) (*models.TokenMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetTokenMetadata"); err != nil {
		return nil, err
	}
	m, ok := s.tokens[tokenAddress]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *m
	return &c, nil
}

// UpsertTokenMetadata implements storage.MetadataStore
func (s *Store) UpsertTokenMetadata(_ context.Context, m *models.TokenMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertTokenMetadata"); err != nil {
		return err
	}
	c := *m
	s.tokens[m.TokenAddress] = &c
	return nil
}

// ListTokenMetadata implements storage.MetadataStore
func (s *Store) ListTokenMetadata(_ context.Context) ([]*models.TokenMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("ListTokenMetadata"); err != nil {
		return nil, err
	}
	out := make([]*models.TokenMetadata, 0, len(s.tokens))
	for _, m := range s.tokens {
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenAddress < out[j].TokenAddress })
	return out, nil
}

// GetCheckpoint implements storage.SyncStateStore
func (s *Store) GetCheckpoint(_ context.Context, key string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetCheckpoint"); err != nil {
		return 0, false, err
	}
	v, ok := s.checks[key]
	return v, ok, nil
}

// SaveCheckpoint implements storage.SyncStateStore
func (s *Store) SaveCheckpoint(_ context.Context, key string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveCheckpoint"); err != nil {
		return err
	}
	if cur, ok := s.checks[key]; !ok || block > cur {
		s.checks[key] = block
	}
	return nil
}

// GetWatermark implements storage.SyncStateStore
func (s *Store) GetWatermark(_ context.Context, auctionAddress string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail("GetWatermark"); err != nil {
		return 0, false, err
	}
	v, ok := s.marks[auctionAddress]
	return v, ok, nil
}

// SaveWatermark implements storage.SyncStateStore
func (s *Store) SaveWatermark(_ context.Context, auctionAddress string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveWatermark"); err != nil {
		return err
	}
	if cur, ok := s.marks[auctionAddress]; !ok || block > cur {
		s.marks[auctionAddress] = block
	}
	return nil
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var _ storage.Store = (*Store)(nil)
