package storage

import (
	"context"
	"fmt"
	"time"
)

// Archived event names
const (
	ArchiveAuctionCreated = "AuctionCreated"
	ArchiveBidPlaced      = "BidPlaced"
)

// ArchivedEvent is one decoded log mirrored into the analytics archive
type ArchivedEvent struct {
	EventName       string
	ContractAddress string // emitting contract
	AuctionAddress  string
	AuctionID       string // empty for bids
	Actor           string // seller or bidder
	Amount          string // bid amount, empty for creations
	BlockNumber     uint64
	LogIndex        uint
	TxHash          string
	BlockTime       time.Time
}

// EventArchive receives decoded events after they were reconciled. The
// archive is write-only and never read back by the indexer.
type EventArchive interface {
	Archive(ctx context.Context, events []ArchivedEvent) error
}

// NopEventArchive discards events. Used when ClickHouse is disabled.
type NopEventArchive struct{}

// Archive implements EventArchive
func (NopEventArchive) Archive(context.Context, []ArchivedEvent) error { return nil }

// ClickHouseEventArchive appends events to the auction_events table
type ClickHouseEventArchive struct {
	db *ClickHouseDB
}

// NewClickHouseEventArchive creates an archive over db
func NewClickHouseEventArchive(db *ClickHouseDB) *ClickHouseEventArchive {
	return &ClickHouseEventArchive{db: db}
}

// Archive writes events in one batch. ReplacingMergeTree collapses replays
// of the same (auction, block, log index, event).
func (a *ClickHouseEventArchive) Archive(ctx context.Context, events []ArchivedEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := a.db.Conn().PrepareBatch(ctx, `
		INSERT INTO auction_events (
			event_name, contract_address, auction_address, auction_id, actor,
			amount, block_number, log_index, tx_hash, block_time
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		err := batch.Append(
			e.EventName,
			e.ContractAddress,
			e.AuctionAddress,
			e.AuctionID,
			e.Actor,
			e.Amount,
			e.BlockNumber,
			uint32(e.LogIndex), // #nosec G115 - log index per block is small
			e.TxHash,
			e.BlockTime,
		)
		if err != nil {
			return fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

var (
	_ EventArchive = NopEventArchive{}
	_ EventArchive = (*ClickHouseEventArchive)(nil)
)
