// Package chain executes the on-chain half of agent decisions: read-only
// calls for view/pure functions, signed transactions awaited for one
// confirmation for everything else.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// CallOutcome is what an executed tx decision reports back. Big integers
// (gas, block, amounts) travel as decimal strings to survive JSON.
type CallOutcome struct {
	Mode        string `json:"mode"` // "call" or "transaction"
	Function    string `json:"function"`
	ReturnValue any    `json:"return_value,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	Status      string `json:"status,omitempty"` // "success" or "reverted"
	GasUsed     string `json:"gas_used,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
}

// Backend is the subset of the Ethereum RPC surface the caller needs; it is
// satisfied by *ethclient.Client and by simulated backends in tests.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Caller executes contract functions under one execution wallet.
type Caller struct {
	backend Backend
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

// New dials the RPC endpoint and loads the execution wallet key.
func New(ctx context.Context, rpcURL, privateKeyHex string) (*Caller, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return NewWithBackend(ctx, client, privateKeyHex)
}

// NewWithBackend builds a Caller over an existing backend.
func NewWithBackend(ctx context.Context, backend Backend, privateKeyHex string) (*Caller, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: parse private key: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: fetch chain id: %w", err)
	}
	return &Caller{backend: backend, key: key, chainID: chainID}, nil
}

// From returns the execution wallet address.
func (c *Caller) From() common.Address {
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// Execute resolves fn against the contract interface and either performs a
// read-only call (view/pure) or submits a transaction and waits for exactly
// one confirmation.
func (c *Caller) Execute(ctx context.Context, contractAddr, abiJSON, fn string, args []any, value string) (*CallOutcome, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("chain: invalid contract address %q", contractAddr)
	}
	target := common.HexToAddress(contractAddr)

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse contract interface: %w", err)
	}
	method, ok := parsed.Methods[fn]
	if !ok {
		return nil, fmt.Errorf("chain: function %q not present in contract interface", fn)
	}

	coerced, err := coerceArgs(method.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: %w", fn, err)
	}
	data, err := parsed.Pack(fn, coerced...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", fn, err)
	}

	if method.StateMutability == "view" || method.StateMutability == "pure" {
		return c.readOnly(ctx, target, parsed, fn, data)
	}

	amount, err := parseValue(value)
	if err != nil {
		return nil, err
	}
	return c.transact(ctx, target, fn, data, amount)
}

func (c *Caller) readOnly(ctx context.Context, target common.Address, parsed abi.ABI, fn string, data []byte) (*CallOutcome, error) {
	res, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", fn, err)
	}
	values, err := parsed.Unpack(fn, res)
	if err != nil {
		return nil, fmt.Errorf("chain: decode %s return: %w", fn, err)
	}
	return &CallOutcome{
		Mode:        "call",
		Function:    fn,
		ReturnValue: normalizeReturn(values),
	}, nil
}

func (c *Caller) transact(ctx context.Context, target common.Address, fn string, data []byte, value *big.Int) (*CallOutcome, error) {
	from := c.From()

	pendingNonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: pending nonce: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: chain head: %w", err)
	}

	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &target,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: estimate gas for %s: %w", fn, err)
	}

	var tx *types.Transaction
	if head.BaseFee == nil {
		// Chain without EIP-1559, price the transaction the legacy way.
		gasPrice, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain: gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    pendingNonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &target,
			Value:    value,
			Data:     data,
		})
	} else {
		tip, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain: gas tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   c.chainID,
			Nonce:     pendingNonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &target,
			Value:     value,
			Data:      data,
		})
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("chain: send transaction: %w", err)
	}

	// Exactly one confirmation before reporting success.
	receipt, err := bind.WaitMined(ctx, c.backend, signed)
	if err != nil {
		return nil, fmt.Errorf("chain: await confirmation of %s: %w", signed.Hash(), err)
	}

	status := "success"
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = "reverted"
	}
	return &CallOutcome{
		Mode:        "transaction",
		Function:    fn,
		TxHash:      signed.Hash().Hex(),
		Status:      status,
		GasUsed:     new(big.Int).SetUint64(receipt.GasUsed).String(),
		BlockNumber: receipt.BlockNumber.String(),
	}, nil
}

func parseValue(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("chain: value %q is not a decimal integer", value)
	}
	return amount, nil
}

// normalizeReturn converts decoded ABI values into JSON-safe shapes: big
// integers become decimal strings, addresses and byte slices hex strings.
func normalizeReturn(values []any) any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = normalizeOne(v)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func normalizeOne(v any) any {
	switch t := v.(type) {
	case *big.Int:
		return t.String()
	case common.Address:
		return t.Hex()
	case []byte:
		return "0x" + common.Bytes2Hex(t)
	case [32]byte:
		return "0x" + common.Bytes2Hex(t[:])
	default:
		return v
	}
}
