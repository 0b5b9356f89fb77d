// Package adaptertest provides an in-memory Ledger for tests.
package adaptertest

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/auction-indexer/internal/adapter"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallFunc answers one contract method
type CallFunc func(args ...interface{}) ([]interface{}, error)

// FakeLedger is a scriptable Ledger. Methods without a handler fail like a
// contract that does not implement them.
type FakeLedger struct {
	mu sync.Mutex

	head        uint64
	headErr     error
	logs        []types.Log
	logErrs     map[common.Address]error
	handlers    map[common.Address]map[string]CallFunc
	blockTimes  map[uint64]uint64
	calls       map[string]int
	filterCalls []ethereum.FilterQuery
}

// NewFakeLedger returns an empty ledger at head 0
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		logErrs:    make(map[common.Address]error),
		handlers:   make(map[common.Address]map[string]CallFunc),
		blockTimes: make(map[uint64]uint64),
		calls:      make(map[string]int),
	}
}

// SetHead sets the block number reported as head
func (f *FakeLedger) SetHead(n uint64) {
	f.mu.Lock()
	f.head = n
	f.mu.Unlock()
}

// FailHead makes BlockNumber fail with err (nil clears it)
func (f *FakeLedger) FailHead(err error) {
	f.mu.Lock()
	f.headErr = err
	f.mu.Unlock()
}

// FailLogs makes FilterLogs fail for queries touching address (nil clears it)
func (f *FakeLedger) FailLogs(address common.Address, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.logErrs, address)
		return
	}
	f.logErrs[address] = err
}

// AddLogs appends logs to the chain
func (f *FakeLedger) AddLogs(logs ...types.Log) {
	f.mu.Lock()
	f.logs = append(f.logs, logs...)
	f.mu.Unlock()
}

// SetBlockTime sets the timestamp reported for a block
func (f *FakeLedger) SetBlockTime(block, ts uint64) {
	f.mu.Lock()
	f.blockTimes[block] = ts
	f.mu.Unlock()
}

// Handle installs a handler for method on contract
func (f *FakeLedger) Handle(contract common.Address, method string, fn CallFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[contract] == nil {
		f.handlers[contract] = make(map[string]CallFunc)
	}
	f.handlers[contract][method] = fn
}

// Return installs a handler that always returns values
func (f *FakeLedger) Return(contract common.Address, method string, values ...interface{}) {
	f.Handle(contract, method, func(...interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// Fail installs a handler that always returns err
func (f *FakeLedger) Fail(contract common.Address, method string, err error) {
	f.Handle(contract, method, func(...interface{}) ([]interface{}, error) {
		return nil, err
	})
}

// Remove drops the handler for method on contract
func (f *FakeLedger) Remove(contract common.Address, method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers[contract], method)
}

// Calls returns how many times method was called on contract
func (f *FakeLedger) Calls(contract common.Address, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[callKey(contract, method)]
}

// FilterQueries returns every query FilterLogs received
func (f *FakeLedger) FilterQueries() []ethereum.FilterQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ethereum.FilterQuery, len(f.filterCalls))
	copy(out, f.filterCalls)
	return out
}

// BlockNumber implements adapter.Ledger
func (f *FakeLedger) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

// FilterLogs implements adapter.Ledger
func (f *FakeLedger) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls = append(f.filterCalls, q)

	for _, addr := range q.Addresses {
		if err, ok := f.logErrs[addr]; ok {
			return nil, err
		}
	}

	var out []types.Log
	for _, l := range f.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 {
			if len(l.Topics) == 0 || !containsHash(q.Topics[0], l.Topics[0]) {
				continue
			}
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

// Call implements adapter.Ledger
func (f *FakeLedger) Call(_ context.Context, contract common.Address, _ abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	f.mu.Lock()
	f.calls[callKey(contract, method)]++
	fn := f.handlers[contract][method]
	f.mu.Unlock()

	if fn == nil {
		return nil, adapter.NewAdapterError("eth_call", fmt.Errorf("execution reverted: %w", adapter.ErrEmptyResult), map[string]interface{}{
			"contract": contract.Hex(),
			"method":   method,
		})
	}
	return fn(args...)
}

// BlockTime implements adapter.Ledger
func (f *FakeLedger) BlockTime(_ context.Context, number uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts, ok := f.blockTimes[number]; ok {
		return ts, nil
	}
	return 1_700_000_000 + number*12, nil
}

func callKey(contract common.Address, method string) string {
	return contract.Hex() + "." + method
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

var _ adapter.Ledger = (*FakeLedger)(nil)

// Details mirrors the outputs of getAuctionDetails()
type Details struct {
	Seller        common.Address
	HighestBidder common.Address
	HighestBid    *big.Int
	EndTime       int64
	Ended         bool
	AssetAddress  common.Address
	AssetID       *big.Int
	Amount        *big.Int
	PaymentToken  common.Address
}

// Values returns d in ABI output order
func (d Details) Values() []interface{} {
	return []interface{}{
		d.Seller,
		d.HighestBidder,
		orZero(d.HighestBid),
		big.NewInt(d.EndTime),
		d.Ended,
		d.AssetAddress,
		orZero(d.AssetID),
		orZero(d.Amount),
		d.PaymentToken,
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
