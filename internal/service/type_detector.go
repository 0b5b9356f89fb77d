package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/auction-indexer/internal/adapter"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

// typeProbe inspects an auction contract. ok=false means the probe could not
// decide and the next one runs.
type typeProbe struct {
	name  string
	probe func(ctx context.Context, auction common.Address) (t models.AuctionType, ok bool, err error)
}

// TypeDetector classifies an auction contract as English or Dutch by running
// probes in a fixed order; the first probe that decides wins:
//
//  1. declared-type accessor auctionType(), accepted only when it returns 0 or 1
//  2. getCurrentPrice() succeeding marks a Dutch auction
//  3. otherwise English
type TypeDetector struct {
	ledger    adapter.Ledger
	contracts *adapter.Contracts
	probes    []typeProbe
}

// NewTypeDetector creates a detector using the standard probe order
func NewTypeDetector(ledger adapter.Ledger, contracts *adapter.Contracts) *TypeDetector {
	d := &TypeDetector{ledger: ledger, contracts: contracts}
	d.probes = []typeProbe{
		{name: adapter.MethodAuctionType, probe: d.declaredType},
		{name: adapter.MethodGetCurrentPrice, probe: d.dutchDiscriminator},
	}
	return d
}

// ProbeOrder lists the probe names in evaluation order
func (d *TypeDetector) ProbeOrder() []string {
	names := make([]string, 0, len(d.probes))
	for _, p := range d.probes {
		names = append(names, p.name)
	}
	return names
}

// Detect returns the auction's type. It never fails; English is the fallback.
func (d *TypeDetector) Detect(ctx context.Context, auction common.Address) models.AuctionType {
	log := logging.FromContext(ctx).WithField("auction", auction.Hex())
	for _, p := range d.probes {
		t, ok, err := p.probe(ctx, auction)
		if err != nil {
			log.WithError(err).Debugf("Type probe %s inconclusive", p.name)
		}
		if ok {
			return t
		}
	}
	return models.AuctionTypeEnglish
}

func (d *TypeDetector) declaredType(ctx context.Context, auction common.Address) (models.AuctionType, bool, error) {
	out, err := d.ledger.Call(ctx, auction, d.contracts.Auction, adapter.MethodAuctionType)
	if err != nil {
		return 0, false, err
	}
	if len(out) == 0 {
		return 0, false, adapter.ErrEmptyResult
	}

	var raw uint64
	switch v := out[0].(type) {
	case uint8:
		raw = uint64(v)
	case *big.Int:
		if !v.IsUint64() {
			return 0, false, fmt.Errorf("auctionType out of range: %s", v)
		}
		raw = v.Uint64()
	default:
		return 0, false, fmt.Errorf("unexpected auctionType output %T", out[0])
	}

	t := models.AuctionType(raw) // #nosec G115 - validated below
	if raw > 255 || !t.Valid() {
		return 0, false, fmt.Errorf("auctionType returned unknown value %d", raw)
	}
	return t, true, nil
}

func (d *TypeDetector) dutchDiscriminator(ctx context.Context, auction common.Address) (models.AuctionType, bool, error) {
	if _, err := d.ledger.Call(ctx, auction, d.contracts.DutchAuction, adapter.MethodGetCurrentPrice); err != nil {
		return 0, false, err
	}
	return models.AuctionTypeDutch, true, nil
}
