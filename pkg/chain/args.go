package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// coerceArgs converts JSON-decoded argument values into the Go types the
// ABI packer expects. Decisions arrive with numbers as json.Number or
// string; big integers must be strings to survive the JSON boundary.
func coerceArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]any, len(args))
	for i, input := range inputs {
		v, err := coerceOne(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, input.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

func coerceOne(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		s, ok := v.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%v is not a hex address", v)
		}
		return common.HexToAddress(s), nil

	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		// The packer wants machine ints for small widths, *big.Int above 64.
		if t.Size > 64 {
			return n, nil
		}
		if t.T == abi.UintTy {
			if !n.IsUint64() {
				return nil, fmt.Errorf("%s out of range for uint%d", n, t.Size)
			}
			switch t.Size {
			case 8:
				return uint8(n.Uint64()), nil
			case 16:
				return uint16(n.Uint64()), nil
			case 32:
				return uint32(n.Uint64()), nil
			default:
				return n.Uint64(), nil
			}
		}
		if !n.IsInt64() {
			return nil, fmt.Errorf("%s out of range for int%d", n, t.Size)
		}
		switch t.Size {
		case 8:
			return int8(n.Int64()), nil
		case 16:
			return int16(n.Int64()), nil
		case 32:
			return int32(n.Int64()), nil
		default:
			return n.Int64(), nil
		}

	case abi.BoolTy:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%v is not a boolean", v)
		}
		return b, nil

	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%v is not a string", v)
		}
		return s, nil

	case abi.BytesTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%v is not a hex string", v)
		}
		return common.FromHex(s), nil

	case abi.FixedBytesTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%v is not a hex string", v)
		}
		raw := common.FromHex(s)
		if len(raw) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(raw))
		}
		if t.Size == 32 {
			var fixed [32]byte
			copy(fixed[:], raw)
			return fixed, nil
		}
		return nil, fmt.Errorf("unsupported fixed bytes width %d", t.Size)

	default:
		return nil, fmt.Errorf("unsupported parameter type %s", t.String())
	}
}

// toBigInt accepts the three spellings a JSON decision may use for an
// integer: string, json.Number, or float64 (small numbers only).
func toBigInt(v any) (*big.Int, error) {
	switch t := v.(type) {
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(t), 10)
		if !ok {
			return nil, fmt.Errorf("%q is not a decimal integer", t)
		}
		return n, nil
	case json.Number:
		n, ok := new(big.Int).SetString(t.String(), 10)
		if !ok {
			return nil, fmt.Errorf("%q is not a decimal integer", t.String())
		}
		return n, nil
	case float64:
		if t != float64(int64(t)) {
			return nil, fmt.Errorf("%v is not an integer", t)
		}
		return big.NewInt(int64(t)), nil
	default:
		return nil, fmt.Errorf("cannot use %T as an integer", v)
	}
}
