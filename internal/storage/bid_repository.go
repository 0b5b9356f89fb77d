package storage

import (
	"context"
	"fmt"

	"github.com/auction-indexer/internal/models"
)

// BidRepository handles bid persistence
type BidRepository struct {
	db *PostgresDB
}

// NewBidRepository creates a new bid repository
func NewBidRepository(db *PostgresDB) *BidRepository {
	return &BidRepository{db: db}
}

// ApplyBid inserts a bid and, when it is new, records it as the auction's
// highest bid. Both writes share one transaction.
func (r *BidRepository) ApplyBid(ctx context.Context, bid *models.Bid) (bool, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	tag, err := tx.Exec(ctx, `
		INSERT INTO bids (auction_address, bidder, amount, block_number, log_index, tx_hash, block_time)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		ON CONFLICT (auction_address, block_number, log_index) DO NOTHING
	`,
		bid.AuctionAddress,
		bid.Bidder,
		bid.Amount,
		int64(bid.BlockNumber), // #nosec G115 - block numbers fit in int64
		int32(bid.LogIndex),    // #nosec G115 - log index per block is small
		bid.TxHash,
		bid.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE auctions
		SET highest_bidder = $2, highest_bid = $3::numeric, updated_at = NOW()
		WHERE auction_address = $1
	`, bid.AuctionAddress, bid.Bidder, bid.Amount)
	if err != nil {
		return false, fmt.Errorf("failed to update highest bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit bid: %w", err)
	}
	return true, nil
}

// ListBids returns bids of one auction, newest block first
func (r *BidRepository) ListBids(ctx context.Context, auctionAddress string, limit, offset int) ([]*models.Bid, error) {
	query := `
		SELECT auction_address, bidder, amount::text, block_number, log_index, tx_hash, block_time
		FROM bids
		WHERE auction_address = $1
		ORDER BY block_number DESC, log_index DESC
	`
	args := []interface{}{auctionAddress}
	if limit > 0 {
		args = append(args, limit, offset)
		query += ` LIMIT $2 OFFSET $3`
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var bids []*models.Bid
	for rows.Next() {
		var b models.Bid
		var block int64
		var logIndex int32
		if err := rows.Scan(&b.AuctionAddress, &b.Bidder, &b.Amount, &block, &logIndex, &b.TxHash, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		b.BlockNumber = uint64(block) // #nosec G115 - non-negative
		b.LogIndex = uint(logIndex)   // #nosec G115 - non-negative
		bids = append(bids, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return bids, nil
}

// CountBids returns the number of bids per auction address. Addresses
// without bids are absent from the map.
func (r *BidRepository) CountBids(ctx context.Context, auctionAddresses []string) (map[string]int, error) {
	counts := make(map[string]int, len(auctionAddresses))
	if len(auctionAddresses) == 0 {
		return counts, nil
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT auction_address, COUNT(*)
		FROM bids
		WHERE auction_address = ANY($1)
		GROUP BY auction_address
	`, auctionAddresses)
	if err != nil {
		return nil, fmt.Errorf("failed to count bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		var n int
		if err := rows.Scan(&addr, &n); err != nil {
			return nil, fmt.Errorf("failed to scan bid count: %w", err)
		}
		counts[addr] = n
	}
	return counts, rows.Err()
}
