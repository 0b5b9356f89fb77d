package adapter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	apperrors "github.com/auction-indexer/internal/errors"
	"github.com/auction-indexer/internal/logging"
	"github.com/auction-indexer/internal/metrics"
	"github.com/auction-indexer/internal/retry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/ratelimit"
)

// Backend is the subset of *ethclient.Client the adapter needs
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// EthereumAdapter implements Ledger over an EVM JSON-RPC node. Every read is
// throttled, retried per the configured policy and observed in metrics.
type EthereumAdapter struct {
	backend Backend
	client  *ethclient.Client // nil when built over a custom backend
	policy  retry.Policy
	limiter ratelimit.Limiter
	metrics *metrics.LedgerClient
}

// EthereumAdapterConfig holds configuration for creating an EthereumAdapter
type EthereumAdapterConfig struct {
	// RPCURL is the node endpoint. Required by NewEthereumAdapter.
	RPCURL string

	// MaxRPS caps outgoing requests per second. 0 disables throttling.
	MaxRPS int

	// Retry is the policy applied to every read. Zero value = retry.DefaultPolicy().
	Retry retry.Policy
}

// NewEthereumAdapter dials the node and builds the adapter
func NewEthereumAdapter(ctx context.Context, cfg EthereumAdapterConfig) (*EthereumAdapter, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url cannot be empty")
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, NewAdapterError("dial", err, map[string]interface{}{
			"rpcURL": cfg.RPCURL,
		})
	}

	a := NewEthereumAdapterWithBackend(client, cfg)
	a.client = client
	return a, nil
}

// NewEthereumAdapterWithBackend builds the adapter over any Backend
func NewEthereumAdapterWithBackend(backend Backend, cfg EthereumAdapterConfig) *EthereumAdapter {
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.MaxRPS > 0 {
		limiter = ratelimit.New(cfg.MaxRPS)
	}

	logging.WithFields(map[string]interface{}{
		"maxRPS":        cfg.MaxRPS,
		"retryAttempts": policy.MaxAttempts,
		"retryDelay":    policy.Delay.String(),
	}).Info("Ledger adapter configured")

	return &EthereumAdapter{
		backend: backend,
		policy:  policy,
		limiter: limiter,
		metrics: metrics.NewLedgerClient(),
	}
}

// BlockNumber returns the current head block
func (a *EthereumAdapter) BlockNumber(ctx context.Context) (uint64, error) {
	return read(ctx, a, "eth_blockNumber", nil, a.backend.BlockNumber)
}

// FilterLogs returns logs matching the query
func (a *EthereumAdapter) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	if query.FromBlock != nil && query.ToBlock != nil && query.FromBlock.Cmp(query.ToBlock) > 0 {
		return nil, NewAdapterError("eth_getLogs", ErrInvalidBlockRange, map[string]interface{}{
			"fromBlock": query.FromBlock.String(),
			"toBlock":   query.ToBlock.String(),
		})
	}

	details := map[string]interface{}{}
	if query.FromBlock != nil {
		details["fromBlock"] = query.FromBlock.String()
	}
	if query.ToBlock != nil {
		details["toBlock"] = query.ToBlock.String()
	}

	return read(ctx, a, "eth_getLogs", details, func(ctx context.Context) ([]types.Log, error) {
		return a.backend.FilterLogs(ctx, query)
	})
}

// Call packs args, executes an eth_call against contract at the latest block
// and unpacks the outputs of method.
func (a *EthereumAdapter) Call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	details := map[string]interface{}{
		"contract": contract.Hex(),
		"method":   method,
	}

	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, NewAdapterError("eth_call", fmt.Errorf("pack %s: %w", method, err), details)
	}

	to := contract
	msg := ethereum.CallMsg{To: &to, Data: input}

	return read(ctx, a, "eth_call", details, func(ctx context.Context) ([]interface{}, error) {
		out, err := a.backend.CallContract(ctx, msg, nil)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, ErrEmptyResult
		}
		values, err := contractABI.Unpack(method, out)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		return values, nil
	})
}

// BlockTime returns the timestamp of a block
func (a *EthereumAdapter) BlockTime(ctx context.Context, number uint64) (uint64, error) {
	return read(ctx, a, "eth_getBlockByNumber", map[string]interface{}{"block": number}, func(ctx context.Context) (uint64, error) {
		header, err := a.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return 0, err
		}
		return header.Time, nil
	})
}

// Ping asks the node for its head once, without retries, for health checks
func (a *EthereumAdapter) Ping(ctx context.Context) error {
	if _, err := a.backend.BlockNumber(ctx); err != nil {
		return apperrors.NewLedgerError("eth_blockNumber", err)
	}
	return nil
}

// Close releases the RPC connection
func (a *EthereumAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

// read runs one throttled, retried and observed ledger read
func read[T any](ctx context.Context, a *EthereumAdapter, op string, details map[string]interface{}, fn func(ctx context.Context) (T, error)) (T, error) {
	started := time.Now()
	out, err := retry.DoValue(ctx, a.policy, op, func(ctx context.Context) (T, error) {
		a.limiter.Take()
		return fn(ctx)
	})
	a.metrics.Observe(op, err, started)

	if err != nil {
		if retry.IsExhausted(err) {
			logging.FromContext(ctx).WithError(err).WithField("op", op).Warn("Ledger read failed after retries")
		}
		var zero T
		return zero, NewAdapterError(op, err, details)
	}
	return out, nil
}
