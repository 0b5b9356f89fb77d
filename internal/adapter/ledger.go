package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Ledger is read access to the chain the auctions live on
type Ledger interface {
	// BlockNumber returns the current head block
	BlockNumber(ctx context.Context) (uint64, error)

	// FilterLogs returns logs matching the query (eth_getLogs)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// Call invokes a view method and returns its unpacked outputs
	Call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error)

	// BlockTime returns the timestamp of a block in unix seconds
	BlockTime(ctx context.Context, number uint64) (uint64, error)
}

// Common error types for the ledger adapter

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrEmptyResult indicates a call returned no data, usually a missing method or contract
	ErrEmptyResult = fmt.Errorf("call returned no data")

	// ErrInvalidBlockRange indicates an invalid block range was specified
	ErrInvalidBlockRange = fmt.Errorf("invalid block range")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Op      string // Operation that failed (e.g., "eth_call", "eth_getLogs")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("ledger adapter error [%s]: %v (details: %+v)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("ledger adapter error [%s]: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// NormalizeAddress validates a hex address and returns its EIP-55 checksummed form
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return common.HexToAddress(address).Hex(), nil
}

// IsZeroAddress reports whether address is the zero address (native currency marker)
func IsZeroAddress(address string) bool {
	return common.HexToAddress(address) == (common.Address{})
}
