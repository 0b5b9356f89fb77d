package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/clock"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

// ErrAuctionUnresolvable is returned when an auction's core details cannot be
// read from the ledger. Callers skip the auction and never delete it.
var ErrAuctionUnresolvable = errors.New("auction details unavailable")

// AuctionSnapshot is the current on-chain state of one auction contract
type AuctionSnapshot struct {
	Address       common.Address
	Type          models.AuctionType
	Seller        common.Address
	HighestBidder common.Address
	HighestBid    *big.Int
	EndTime       int64
	Ended         bool
	AssetAddress  common.Address
	AssetID       *big.Int
	Amount        *big.Int
	PaymentToken  common.Address
	TokenSymbol   string
	Status        models.AuctionStatus

	// Dutch only, nil when not fetched
	ReservePrice *big.Int
	CurrentPrice *big.Int
	Duration     *big.Int
}

// ToAuction converts the snapshot into a storable auction
func (s *AuctionSnapshot) ToAuction(auctionID string, createdAt uint64) *models.Auction {
	a := &models.Auction{
		AuctionID:      auctionID,
		AuctionAddress: s.Address.Hex(),
		AuctionType:    s.Type,
		Seller:         s.Seller.Hex(),
		HighestBidder:  s.HighestBidder.Hex(),
		HighestBid:     bigString(s.HighestBid),
		EndTime:        s.EndTime,
		Ended:          s.Ended,
		AssetAddress:   s.AssetAddress.Hex(),
		AssetID:        bigString(s.AssetID),
		Amount:         bigString(s.Amount),
		PaymentToken:   s.PaymentToken.Hex(),
		CreatedAt:      createdAt,
		Status:         s.Status,
		TokenSymbol:    s.TokenSymbol,
	}
	if s.Type == models.AuctionTypeDutch {
		a.ReservePrice = optionalBig(s.ReservePrice)
		a.CurrentPrice = optionalBig(s.CurrentPrice)
		a.Duration = optionalBig(s.Duration)
	}
	return a
}

// AuctionResolver reads auction details, type and payment currency from the
// ledger.
type AuctionResolver struct {
	ledger       adapter.Ledger
	contracts    *adapter.Contracts
	detector     *TypeDetector
	nativeSymbol string
	now          clock.NowFunc
}

// NewAuctionResolver creates a resolver
func NewAuctionResolver(ledger adapter.Ledger, contracts *adapter.Contracts, nativeSymbol string, now clock.NowFunc) *AuctionResolver {
	if nativeSymbol == "" {
		nativeSymbol = "ETH"
	}
	if now == nil {
		now = clock.System
	}
	return &AuctionResolver{
		ledger:       ledger,
		contracts:    contracts,
		detector:     NewTypeDetector(ledger, contracts),
		nativeSymbol: nativeSymbol,
		now:          now,
	}
}

// Resolve returns the current state of the auction at address
func (r *AuctionResolver) Resolve(ctx context.Context, address common.Address) (*AuctionSnapshot, error) {
	log := logging.FromContext(ctx).WithField("auction", address.Hex())

	out, err := r.ledger.Call(ctx, address, r.contracts.Auction, adapter.MethodGetAuctionDetails)
	if err != nil {
		// a cancelled read says nothing about the auction
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrAuctionUnresolvable, address.Hex(), err)
	}
	snap, err := decodeDetails(address, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAuctionUnresolvable, address.Hex(), err)
	}

	snap.Type = r.detector.Detect(ctx, address)
	snap.TokenSymbol = r.paymentSymbol(ctx, snap.PaymentToken)

	if snap.Type == models.AuctionTypeDutch {
		snap.ReservePrice = r.optionalUint(ctx, address, adapter.MethodReservePrice)
		snap.CurrentPrice = r.optionalUint(ctx, address, adapter.MethodGetCurrentPrice)
		snap.Duration = r.optionalUint(ctx, address, adapter.MethodDuration)
	}

	snap.Status = models.DeriveStatus(snap.Ended, snap.EndTime, r.now())
	log.WithFields(map[string]interface{}{
		"type":   snap.Type.String(),
		"status": snap.Status,
	}).Debug("Resolved auction")
	return snap, nil
}

func (r *AuctionResolver) paymentSymbol(ctx context.Context, token common.Address) string {
	if token == (common.Address{}) {
		return r.nativeSymbol
	}
	out, err := r.ledger.Call(ctx, token, r.contracts.ERC20, adapter.MethodSymbol)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("token", token.Hex()).Warn("Payment token symbol() failed, using native symbol")
		return r.nativeSymbol
	}
	if s, ok := firstString(out); ok && s != "" {
		return s
	}
	return r.nativeSymbol
}

func (r *AuctionResolver) optionalUint(ctx context.Context, address common.Address, method string) *big.Int {
	out, err := r.ledger.Call(ctx, address, r.contracts.DutchAuction, method)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"auction": address.Hex(),
			"method":  method,
		}).Warn("Dutch auction accessor failed")
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	v, _ := out[0].(*big.Int)
	return v
}

func decodeDetails(address common.Address, out []interface{}) (*AuctionSnapshot, error) {
	if len(out) != 9 {
		return nil, fmt.Errorf("getAuctionDetails returned %d values, want 9", len(out))
	}

	var (
		snap AuctionSnapshot
		ok   [9]bool
	)
	snap.Address = address
	snap.Seller, ok[0] = out[0].(common.Address)
	snap.HighestBidder, ok[1] = out[1].(common.Address)
	snap.HighestBid, ok[2] = out[2].(*big.Int)
	var endTime *big.Int
	endTime, ok[3] = out[3].(*big.Int)
	snap.Ended, ok[4] = out[4].(bool)
	snap.AssetAddress, ok[5] = out[5].(common.Address)
	snap.AssetID, ok[6] = out[6].(*big.Int)
	snap.Amount, ok[7] = out[7].(*big.Int)
	snap.PaymentToken, ok[8] = out[8].(common.Address)

	for i, good := range ok {
		if !good {
			return nil, fmt.Errorf("getAuctionDetails output %d has type %T", i, out[i])
		}
	}

	snap.EndTime = clampInt64(endTime)
	return &snap, nil
}

func clampInt64(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	if !v.IsInt64() {
		if v.Sign() < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return v.Int64()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func optionalBig(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func firstString(out []interface{}) (string, bool) {
	if len(out) == 0 {
		return "", false
	}
	s, ok := out[0].(string)
	return s, ok
}
