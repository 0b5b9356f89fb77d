package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SyncStateRepository stores the factory checkpoint and per-auction bid
// watermarks. Writes never move a value backwards.
type SyncStateRepository struct {
	db *PostgresDB
}

// NewSyncStateRepository creates a new sync state repository
func NewSyncStateRepository(db *PostgresDB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// GetCheckpoint returns the last processed block for key
func (r *SyncStateRepository) GetCheckpoint(ctx context.Context, key string) (uint64, bool, error) {
	return r.getBlock(ctx, `SELECT last_block FROM sync_state WHERE key = $1`, key)
}

// SaveCheckpoint advances the checkpoint for key to block
func (r *SyncStateRepository) SaveCheckpoint(ctx context.Context, key string, block uint64) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO sync_state (key, last_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			last_block = GREATEST(sync_state.last_block, EXCLUDED.last_block),
			updated_at = NOW()
	`, key, int64(block)) // #nosec G115 - block numbers fit in int64
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", key, err)
	}
	return nil
}

// GetWatermark returns the last block scanned for bids of one auction
func (r *SyncStateRepository) GetWatermark(ctx context.Context, auctionAddress string) (uint64, bool, error) {
	return r.getBlock(ctx, `SELECT last_scanned_block FROM auction_scan_state WHERE auction_address = $1`, auctionAddress)
}

// SaveWatermark advances the bid watermark of one auction
func (r *SyncStateRepository) SaveWatermark(ctx context.Context, auctionAddress string, block uint64) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO auction_scan_state (auction_address, last_scanned_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (auction_address) DO UPDATE SET
			last_scanned_block = GREATEST(auction_scan_state.last_scanned_block, EXCLUDED.last_scanned_block),
			updated_at = NOW()
	`, auctionAddress, int64(block)) // #nosec G115 - block numbers fit in int64
	if err != nil {
		return fmt.Errorf("failed to save watermark %s: %w", auctionAddress, err)
	}
	return nil
}

func (r *SyncStateRepository) getBlock(ctx context.Context, query, key string) (uint64, bool, error) {
	var block int64
	err := r.db.Pool().QueryRow(ctx, query, key).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read sync state %s: %w", key, err)
	}
	return uint64(block), true, nil // #nosec G115 - non-negative
}
