package worker

import (
	"context"
	"testing"

	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCheckpoint_RecoveryOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("head minus lookback", func(t *testing.T) {
		f := newFixture(t, nil)
		f.ledger.SetHead(5_000)
		cp, err := f.worker.loadCheckpoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(4_000), cp)
	})

	t.Run("clamped at zero", func(t *testing.T) {
		f := newFixture(t, nil)
		f.ledger.SetHead(300)
		cp, err := f.worker.loadCheckpoint(ctx)
		require.NoError(t, err)
		assert.Zero(t, cp)
	})

	t.Run("newest auction block", func(t *testing.T) {
		f := newFixture(t, nil)
		f.ledger.SetHead(5_000)
		_, err := f.store.InsertAuction(ctx, &models.Auction{
			AuctionID: "1", AuctionAddress: auctionAddr.Hex(), HighestBid: "0", Amount: "0",
			Status: models.StatusActive, CreatedAt: 4_321,
		})
		require.NoError(t, err)
		cp, err := f.worker.loadCheckpoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(4_321), cp)
	})

	t.Run("persisted checkpoint wins", func(t *testing.T) {
		f := newFixture(t, nil)
		f.ledger.SetHead(5_000)
		require.NoError(t, f.store.SaveCheckpoint(ctx, storage.CheckpointFactory, 4_900))
		cp, err := f.worker.loadCheckpoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(4_900), cp)
	})
}

func TestBlockRanges(t *testing.T) {
	tests := []struct {
		name     string
		from, to uint64
		size     uint64
		want     [][2]uint64
	}{
		{"empty", 10, 9, 5, nil},
		{"unbounded", 1, 100, 0, [][2]uint64{{1, 100}}},
		{"single block", 7, 7, 3, [][2]uint64{{7, 7}}},
		{"exact multiple", 1, 6, 3, [][2]uint64{{1, 3}, {4, 6}}},
		{"remainder", 1, 7, 3, [][2]uint64{{1, 3}, {4, 6}, {7, 7}}},
		{"near max", ^uint64(0) - 1, ^uint64(0), 10, [][2]uint64{{^uint64(0) - 1, ^uint64(0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, blockRanges(tt.from, tt.to, tt.size))
		})
	}
}
