package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/auction-indexer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupClickHouse starts a disposable ClickHouse with the archive schema applied
func setupClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"CLICKHOUSE_DB":       "auctions_test",
				"CLICKHOUSE_USER":     "default",
				"CLICKHOUSE_PASSWORD": "",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready for connections").WithStartupTimeout(90*time.Second),
				wait.ForListeningPort("9000/tcp"),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse container not available: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	db, err := NewClickHouseDB(&config.ClickHouseConfig{
		Host:     host,
		Port:     port.Port(),
		Database: "auctions_test",
		User:     "default",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir := filepath.Join(migrationsDir(t), "..", "clickhouse")
	require.NoError(t, RunClickHouseMigrations(ctx, db, dir))
	return db
}

func TestClickHouseEventArchive(t *testing.T) {
	db := setupClickHouse(t)
	ctx := testContext(t)
	require.NoError(t, db.Ping(ctx))

	blockTime := time.Unix(1_700_000_000, 0).UTC()
	events := []ArchivedEvent{
		{
			EventName:       ArchiveAuctionCreated,
			ContractAddress: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
			AuctionAddress:  "0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9",
			AuctionID:       "1",
			Actor:           "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			BlockNumber:     10,
			TxHash:          "0xaa",
			BlockTime:       blockTime,
		},
		{
			EventName:       ArchiveBidPlaced,
			ContractAddress: "0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9",
			AuctionAddress:  "0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9",
			Actor:           "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
			Amount:          "1000000000000000000",
			BlockNumber:     12,
			LogIndex:        3,
			TxHash:          "0xbb",
			BlockTime:       blockTime.Add(24 * time.Second),
		},
	}

	archive := NewClickHouseEventArchive(db)
	require.NoError(t, archive.Archive(ctx, events))
	// a replayed cycle appends duplicates that FINAL collapses
	require.NoError(t, archive.Archive(ctx, events[1:]))
	require.NoError(t, archive.Archive(ctx, nil))

	var count uint64
	row := db.Conn().QueryRow(ctx, "SELECT count() FROM auction_events FINAL")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, uint64(2), count)

	var amount string
	row = db.Conn().QueryRow(ctx, "SELECT amount FROM auction_events FINAL WHERE event_name = ?", ArchiveBidPlaced)
	require.NoError(t, row.Scan(&amount))
	assert.Equal(t, "1000000000000000000", amount)
}
