package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/auction-indexer/internal/models"
	"github.com/jackc/pgx/v5"
)

// AuctionRepository handles auction persistence
type AuctionRepository struct {
	db *PostgresDB
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(db *PostgresDB) *AuctionRepository {
	return &AuctionRepository{db: db}
}

const auctionColumns = `auction_id, auction_address, auction_type, seller, highest_bidder,
	highest_bid::text, end_time, ended, asset_address, asset_id, amount::text, payment_token,
	created_at, status, token_symbol, reserve_price::text, current_price::text, duration::text, updated_at`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var a models.Auction
	var auctionType int16
	var createdAt int64
	var status string
	err := row.Scan(
		&a.AuctionID,
		&a.AuctionAddress,
		&auctionType,
		&a.Seller,
		&a.HighestBidder,
		&a.HighestBid,
		&a.EndTime,
		&a.Ended,
		&a.AssetAddress,
		&a.AssetID,
		&a.Amount,
		&a.PaymentToken,
		&createdAt,
		&status,
		&a.TokenSymbol,
		&a.ReservePrice,
		&a.CurrentPrice,
		&a.Duration,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.AuctionType = models.AuctionType(auctionType) // #nosec G115 - constrained by CHECK
	a.CreatedAt = uint64(createdAt)                 // #nosec G115 - block numbers are non-negative
	a.Status = models.AuctionStatus(status)
	return &a, nil
}

// InsertAuction stores a new auction, ignoring duplicates by id or address
func (r *AuctionRepository) InsertAuction(ctx context.Context, a *models.Auction) (bool, error) {
	query := `
		INSERT INTO auctions (
			auction_id, auction_address, auction_type, seller, highest_bidder, highest_bid,
			end_time, ended, asset_address, asset_id, amount, payment_token, created_at,
			status, token_symbol, reserve_price, current_price, duration, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11::numeric, $12, $13,
			$14, $15, $16::numeric, $17::numeric, $18::numeric, NOW())
		ON CONFLICT DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		a.AuctionID,
		a.AuctionAddress,
		int16(a.AuctionType),
		a.Seller,
		a.HighestBidder,
		numericOrZero(a.HighestBid),
		a.EndTime,
		a.Ended,
		a.AssetAddress,
		a.AssetID,
		numericOrZero(a.Amount),
		a.PaymentToken,
		int64(a.CreatedAt), // #nosec G115 - block numbers fit in int64
		string(a.Status),
		a.TokenSymbol,
		a.ReservePrice,
		a.CurrentPrice,
		a.Duration,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert auction %s: %w", a.AuctionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetAuctionByID retrieves an auction by its factory id
func (r *AuctionRepository) GetAuctionByID(ctx context.Context, auctionID string) (*models.Auction, error) {
	row := r.db.Pool().QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = $1`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// GetAuctionByAddress retrieves an auction by its contract address
func (r *AuctionRepository) GetAuctionByAddress(ctx context.Context, address string) (*models.Auction, error) {
	row := r.db.Pool().QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_address = $1`, address)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction %s: %w", address, err)
	}
	return a, nil
}

// AuctionIDExists reports whether an auction id is stored
func (r *AuctionRepository) AuctionIDExists(ctx context.Context, auctionID string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM auctions WHERE auction_id = $1)`, auctionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check auction %s: %w", auctionID, err)
	}
	return exists, nil
}

// ListAuctionRefs returns address and origin block of every auction
func (r *AuctionRepository) ListAuctionRefs(ctx context.Context) ([]models.AuctionRef, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT auction_address, created_at FROM auctions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	var refs []models.AuctionRef
	for rows.Next() {
		var ref models.AuctionRef
		var createdAt int64
		if err := rows.Scan(&ref.AuctionAddress, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan auction ref: %w", err)
		}
		ref.CreatedAt = uint64(createdAt) // #nosec G115 - block numbers are non-negative
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListExpiredActive returns auctions still marked active and not ended whose
// end time is before now
func (r *AuctionRepository) ListExpiredActive(ctx context.Context, now int64) ([]*models.Auction, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status = 'active' AND NOT ended AND end_time < $1 ORDER BY end_time`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired auctions: %w", err)
	}
	defer rows.Close()
	return collectAuctions(rows)
}

// UpdateAuctionState overwrites the mutable auction fields present in update
func (r *AuctionRepository) UpdateAuctionState(ctx context.Context, address string, update AuctionStateUpdate) error {
	query := `
		UPDATE auctions SET
			status = COALESCE(NULLIF($2, ''), status),
			ended = COALESCE($3, ended),
			highest_bidder = COALESCE($4, highest_bidder),
			highest_bid = COALESCE($5::numeric, highest_bid),
			current_price = COALESCE($6::numeric, current_price),
			updated_at = NOW()
		WHERE auction_address = $1
	`
	tag, err := r.db.Pool().Exec(ctx, query,
		address,
		string(update.Status),
		update.Ended,
		update.HighestBidder,
		update.HighestBid,
		update.CurrentPrice,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MaxCreatedAt returns the highest origin block stored, 0 when empty
func (r *AuctionRepository) MaxCreatedAt(ctx context.Context) (uint64, error) {
	var block int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COALESCE(MAX(created_at), 0) FROM auctions`).Scan(&block); err != nil {
		return 0, fmt.Errorf("failed to read max created_at: %w", err)
	}
	return uint64(block), nil // #nosec G115 - block numbers are non-negative
}

// ListAuctions returns one page of auctions plus the unpaged total
func (r *AuctionRepository) ListAuctions(ctx context.Context, q models.AuctionQuery) ([]*models.Auction, int, error) {
	where, args := auctionFilter(q)

	var total int
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM auctions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count auctions: %w", err)
	}

	query := `SELECT ` + auctionColumns + ` FROM auctions` + where + auctionOrder(q)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := collectAuctions(rows)
	if err != nil {
		return nil, 0, err
	}
	return auctions, total, nil
}

// CountAuctions returns active, ended and total counts
func (r *AuctionRepository) CountAuctions(ctx context.Context) (models.AuctionCounts, error) {
	var c models.AuctionCounts
	err := r.db.Pool().QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'ended'),
			COUNT(*)
		FROM auctions
	`).Scan(&c.Active, &c.Ended, &c.Total)
	if err != nil {
		return c, fmt.Errorf("failed to count auctions: %w", err)
	}
	return c, nil
}

func collectAuctions(rows pgx.Rows) ([]*models.Auction, error) {
	var auctions []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}
	return auctions, nil
}

func auctionFilter(q models.AuctionQuery) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if q.Status != nil {
		args = append(args, string(*q.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if q.AuctionType != nil {
		args = append(args, int16(*q.AuctionType))
		clauses = append(clauses, fmt.Sprintf("auction_type = $%d", len(args)))
	}
	if q.Seller != "" {
		args = append(args, "%"+escapeLike(q.Seller)+"%")
		clauses = append(clauses, fmt.Sprintf("seller ILIKE $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func auctionOrder(q models.AuctionQuery) string {
	column := "id"
	switch q.SortBy {
	case models.SortByEndTime:
		column = "end_time"
	case models.SortByHighestBid:
		column = "highest_bid"
	case models.SortByCreated:
		column = "created_at"
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, dir, dir)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func numericOrZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
