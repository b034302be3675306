package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const testABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

const testContract = "0x1111111111111111111111111111111111111111"

// fakeBackend satisfies Backend and records whether a call or a
// transaction was performed.
type fakeBackend struct {
	callCount int
	sentTxs   []*types.Transaction
	callRet   []byte
	legacy    bool
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.callCount++
	return f.callRet, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	head := &types.Header{Number: big.NewInt(1)}
	if !f.legacy {
		head.BaseFee = big.NewInt(1_000_000_000)
	}
	return head, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 52_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sentTxs = append(f.sentTxs, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		GasUsed:     48_123,
		BlockNumber: big.NewInt(120),
	}, nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, nil
}

func newTestCaller(t *testing.T, backend Backend) *Caller {
	t.Helper()
	c, err := NewWithBackend(context.Background(), backend, testKey)
	require.NoError(t, err)
	return c
}

func TestExecute_ViewNeverSubmitsTransaction(t *testing.T) {
	backend := &fakeBackend{
		callRet: common.LeftPadBytes(big.NewInt(42).Bytes(), 32),
	}
	caller := newTestCaller(t, backend)

	outcome, err := caller.Execute(context.Background(), testContract, testABI,
		"balanceOf", []any{"0x2222222222222222222222222222222222222222"}, "")
	require.NoError(t, err)

	require.Equal(t, "call", outcome.Mode)
	require.Equal(t, "42", outcome.ReturnValue, "big return values come back as strings")
	require.Empty(t, outcome.TxHash, "a view call must not produce a transaction hash")
	require.Empty(t, backend.sentTxs, "a view call must not submit a transaction")
	require.Equal(t, 1, backend.callCount)
}

func TestExecute_MutatingFunctionAwaitsReceipt(t *testing.T) {
	backend := &fakeBackend{}
	caller := newTestCaller(t, backend)

	outcome, err := caller.Execute(context.Background(), testContract, testABI,
		"transfer", []any{"0x2222222222222222222222222222222222222222", "1000000000000000000"}, "")
	require.NoError(t, err)

	require.Equal(t, "transaction", outcome.Mode)
	require.Equal(t, "success", outcome.Status)
	require.Equal(t, "48123", outcome.GasUsed)
	require.Equal(t, "120", outcome.BlockNumber)
	require.NotEmpty(t, outcome.TxHash)
	require.Len(t, backend.sentTxs, 1)
	require.Equal(t, uint8(types.DynamicFeeTxType), backend.sentTxs[0].Type())
	require.Equal(t, uint64(7), backend.sentTxs[0].Nonce())
}

func TestExecute_LegacyChainWithoutBaseFee(t *testing.T) {
	backend := &fakeBackend{legacy: true}
	caller := newTestCaller(t, backend)

	outcome, err := caller.Execute(context.Background(), testContract, testABI,
		"transfer", []any{"0x2222222222222222222222222222222222222222", "1"}, "")
	require.NoError(t, err)

	require.Equal(t, "transaction", outcome.Mode)
	require.Equal(t, "success", outcome.Status)
	require.Len(t, backend.sentTxs, 1)
	sent := backend.sentTxs[0]
	require.Equal(t, uint8(types.LegacyTxType), sent.Type())
	require.Equal(t, big.NewInt(1_000_000_000), sent.GasPrice())
}

func TestExecute_UnknownFunction(t *testing.T) {
	caller := newTestCaller(t, &fakeBackend{})
	_, err := caller.Execute(context.Background(), testContract, testABI, "mint", nil, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not present")
}

func TestExecute_BadAddressAndValue(t *testing.T) {
	caller := newTestCaller(t, &fakeBackend{})

	_, err := caller.Execute(context.Background(), "not-an-address", testABI, "balanceOf", nil, "")
	require.Error(t, err)

	_, err = caller.Execute(context.Background(), testContract, testABI,
		"transfer", []any{"0x2222222222222222222222222222222222222222", "1"}, "lots")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decimal")
}

func TestCoerceArgs(t *testing.T) {
	mustType := func(s string) abi.Type {
		typ, err := abi.NewType(s, "", nil)
		require.NoError(t, err)
		return typ
	}

	t.Run("uint256 from string", func(t *testing.T) {
		v, err := coerceOne(mustType("uint256"), "115792089237316195423570985008687907853269984665640564039457584007913129639935")
		require.NoError(t, err)
		n, ok := v.(*big.Int)
		require.True(t, ok)
		require.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", n.String())
	})

	t.Run("uint64 from json.Number", func(t *testing.T) {
		v, err := coerceOne(mustType("uint64"), json.Number("12345"))
		require.NoError(t, err)
		require.Equal(t, uint64(12345), v)
	})

	t.Run("uint8 narrows to machine int", func(t *testing.T) {
		v, err := coerceOne(mustType("uint8"), "7")
		require.NoError(t, err)
		require.Equal(t, uint8(7), v)
	})

	t.Run("address rejects junk", func(t *testing.T) {
		_, err := coerceOne(mustType("address"), "0xzz")
		require.Error(t, err)
	})

	t.Run("bool passthrough", func(t *testing.T) {
		v, err := coerceOne(mustType("bool"), true)
		require.NoError(t, err)
		require.Equal(t, true, v)
	})

	t.Run("bytes32 from hex", func(t *testing.T) {
		v, err := coerceOne(mustType("bytes32"), "0x"+common.Bytes2Hex(make([]byte, 32)))
		require.NoError(t, err)
		_, ok := v.([32]byte)
		require.True(t, ok)
	})

	t.Run("arity mismatch", func(t *testing.T) {
		args := abi.Arguments{{Type: mustType("bool")}}
		_, err := coerceArgs(args, []any{true, false})
		require.Error(t, err)
	})
}
