package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/auction-indexer/internal/models"
	"github.com/jackc/pgx/v5"
)

// MetadataRepository persists NFT and token metadata
type MetadataRepository struct {
	db *PostgresDB
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(db *PostgresDB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// GetNFTMetadata returns the record for one asset, or ErrNotFound
func (r *MetadataRepository) GetNFTMetadata(ctx context.Context, assetAddress, assetID string) (*models.NFTMetadata, error) {
	var m models.NFTMetadata
	err := r.db.Pool().QueryRow(ctx, `
		SELECT asset_address, asset_id, image_url, name, description, last_updated
		FROM nft_metadata
		WHERE asset_address = $1 AND asset_id = $2
	`, assetAddress, assetID).Scan(&m.AssetAddress, &m.AssetID, &m.ImageURL, &m.Name, &m.Description, &m.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get nft metadata: %w", err)
	}
	return &m, nil
}

// UpsertNFTMetadata inserts or replaces the record for one asset
func (r *MetadataRepository) UpsertNFTMetadata(ctx context.Context, m *models.NFTMetadata) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO nft_metadata (asset_address, asset_id, image_url, name, description, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset_address, asset_id) DO UPDATE SET
			image_url = EXCLUDED.image_url,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			last_updated = EXCLUDED.last_updated
	`, m.AssetAddress, m.AssetID, m.ImageURL, m.Name, m.Description, m.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert nft metadata: %w", err)
	}
	return nil
}

// ListNFTMetadata returns every NFT record
func (r *MetadataRepository) ListNFTMetadata(ctx context.Context) ([]*models.NFTMetadata, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT asset_address, asset_id, image_url, name, description, last_updated
		FROM nft_metadata
		ORDER BY asset_address, asset_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nft metadata: %w", err)
	}
	defer rows.Close()

	var out []*models.NFTMetadata
	for rows.Next() {
		var m models.NFTMetadata
		if err := rows.Scan(&m.AssetAddress, &m.AssetID, &m.ImageURL, &m.Name, &m.Description, &m.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan nft metadata: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// GetTokenMetadata returns the record for one token, or ErrNotFound
func (r *MetadataRepository) GetTokenMetadata(ctx context.Context, tokenAddress string) (*models.TokenMetadata, error) {
	var m models.TokenMetadata
	var decimals int16
	err := r.db.Pool().QueryRow(ctx, `
		SELECT token_address, symbol, name, image_url, decimals, last_updated
		FROM token_metadata
		WHERE token_address = $1
	`, tokenAddress).Scan(&m.TokenAddress, &m.Symbol, &m.Name, &m.ImageURL, &decimals, &m.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token metadata: %w", err)
	}
	m.Decimals = uint8(decimals) // #nosec G115 - constrained by CHECK
	return &m, nil
}

// UpsertTokenMetadata inserts or replaces the record for one token
func (r *MetadataRepository) UpsertTokenMetadata(ctx context.Context, m *models.TokenMetadata) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO token_metadata (token_address, symbol, name, image_url, decimals, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			image_url = EXCLUDED.image_url,
			decimals = EXCLUDED.decimals,
			last_updated = EXCLUDED.last_updated
	`, m.TokenAddress, m.Symbol, m.Name, m.ImageURL, int16(m.Decimals), m.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert token metadata: %w", err)
	}
	return nil
}

// ListTokenMetadata returns every token record
func (r *MetadataRepository) ListTokenMetadata(ctx context.Context) ([]*models.TokenMetadata, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT token_address, symbol, name, image_url, decimals, last_updated
		FROM token_metadata
		ORDER BY token_address
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list token metadata: %w", err)
	}
	defer rows.Close()

	var out []*models.TokenMetadata
	for rows.Next() {
		var m models.TokenMetadata
		var decimals int16
		if err := rows.Scan(&m.TokenAddress, &m.Symbol, &m.Name, &m.ImageURL, &decimals, &m.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan token metadata: %w", err)
		}
		m.Decimals = uint8(decimals) // #nosec G115 - constrained by CHECK
		out = append(out, &m)
	}
	return out, rows.Err()
}
