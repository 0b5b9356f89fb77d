package adapter

import (
	"context"
	"errors"
	"math/big"
	"testing"

	apperrors "github.com/auction-indexer/internal/errors"
	"github.com/auction-indexer/internal/retry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	headErrs  []error
	head      uint64
	callOut   []byte
	callErr   error
	calls     int
	lastMsg   ethereum.CallMsg
	logs      []types.Log
	logCalls  int
	headerErr error
}

func (b *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	if len(b.headErrs) > 0 {
		err := b.headErrs[0]
		b.headErrs = b.headErrs[1:]
		return 0, err
	}
	return b.head, nil
}

func (b *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	b.logCalls++
	return b.logs, nil
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.calls++
	b.lastMsg = msg
	return b.callOut, b.callErr
}

func (b *fakeBackend) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	if b.headerErr != nil {
		return nil, b.headerErr
	}
	return &types.Header{Number: n, Time: 1_700_000_000}, nil
}

func noDelay() EthereumAdapterConfig {
	p := retry.DefaultPolicy()
	p.Delay = 0
	return EthereumAdapterConfig{Retry: p}
}

func TestEthereumAdapter_BlockNumberRetriesOnce(t *testing.T) {
	backend := &fakeBackend{head: 812, headErrs: []error{errors.New("connection reset")}}
	a := NewEthereumAdapterWithBackend(backend, noDelay())

	head, err := a.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(812), head)
}

func TestEthereumAdapter_BlockNumberFailsAfterSecondAttempt(t *testing.T) {
	boom := errors.New("503")
	backend := &fakeBackend{headErrs: []error{boom, boom, nil}}
	a := NewEthereumAdapterWithBackend(backend, noDelay())

	_, err := a.BlockNumber(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, retry.IsExhausted(err))

	var adErr *AdapterError
	require.ErrorAs(t, err, &adErr)
	assert.Equal(t, "eth_blockNumber", adErr.Op)
}

func TestEthereumAdapter_CallPacksAndUnpacks(t *testing.T) {
	c := DefaultContracts()
	out, err := c.ERC20.Methods[MethodSymbol].Outputs.Pack("USDC")
	require.NoError(t, err)

	backend := &fakeBackend{callOut: out}
	a := NewEthereumAdapterWithBackend(backend, noDelay())
	token := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")

	values, err := a.Call(context.Background(), token, c.ERC20, MethodSymbol)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "USDC", values[0])

	require.NotNil(t, backend.lastMsg.To)
	assert.Equal(t, token, *backend.lastMsg.To)
	assert.Equal(t, c.ERC20.Methods[MethodSymbol].ID, backend.lastMsg.Data[:4])
}

func TestEthereumAdapter_CallEmptyResultIsRetriedThenFails(t *testing.T) {
	c := DefaultContracts()
	backend := &fakeBackend{}
	a := NewEthereumAdapterWithBackend(backend, noDelay())

	_, err := a.Call(context.Background(), common.HexToAddress("0x01"), c.Auction, MethodAuctionType)
	assert.ErrorIs(t, err, ErrEmptyResult)
	assert.Equal(t, 2, backend.calls)
}

func TestEthereumAdapter_CallPackErrorNotRetried(t *testing.T) {
	c := DefaultContracts()
	backend := &fakeBackend{}
	a := NewEthereumAdapterWithBackend(backend, noDelay())

	_, err := a.Call(context.Background(), common.HexToAddress("0x01"), c.ERC721, MethodTokenURI, "not-a-number")
	assert.Error(t, err)
	assert.Equal(t, 0, backend.calls)
}

func TestEthereumAdapter_FilterLogsRejectsInvertedRange(t *testing.T) {
	backend := &fakeBackend{}
	a := NewEthereumAdapterWithBackend(backend, noDelay())

	_, err := a.FilterLogs(context.Background(), ethereum.FilterQuery{
		FromBlock: big.NewInt(10),
		ToBlock:   big.NewInt(9),
	})
	assert.ErrorIs(t, err, ErrInvalidBlockRange)
	assert.Equal(t, 0, backend.logCalls)
}

func TestEthereumAdapter_BlockTime(t *testing.T) {
	a := NewEthereumAdapterWithBackend(&fakeBackend{}, noDelay())
	ts, err := a.BlockTime(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_000), ts)
}

func TestEthereumAdapter_PingDoesNotRetry(t *testing.T) {
	boom := errors.New("connection refused")
	backend := &fakeBackend{head: 9, headErrs: []error{boom}}
	a := NewEthereumAdapterWithBackend(backend, noDelay())

	err := a.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	cat := apperrors.Categorize(err)
	assert.Equal(t, apperrors.CategoryLedger, cat.Category)
	assert.Equal(t, "LEDGER_ERROR", cat.Code)

	assert.NoError(t, a.Ping(context.Background()))
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.NoError(t, err)
	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", got)

	_, err = NormalizeAddress("0x123")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	assert.True(t, IsZeroAddress("0x0000000000000000000000000000000000000000"))
	assert.False(t, IsZeroAddress(got))
}
