package multicall

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var errEmptyReturn = errors.New("empty return data")

// Shape builds an output shape from solidity type names, e.g. Shape("uint160", "int24").
func Shape(types ...string) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(types))
	for _, name := range types {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			return nil, fmt.Errorf("shape type %q: %w", name, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args, nil
}

// MustShape is Shape for package level shapes with constant type names.
func MustShape(types ...string) abi.Arguments {
	args, err := Shape(types...)
	if err != nil {
		panic(err)
	}
	return args
}

// Decode unpacks raw return data. A single output yields a scalar, several yield []interface{}.
// Trailing words not described by shape are ignored.
func Decode(method string, shape abi.Arguments, data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Method: method, Err: errEmptyReturn}
	}
	values, err := shape.Unpack(data)
	if err != nil {
		return nil, &DecodeError{Method: method, Err: err}
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

// Tuple returns the i-th element of a decoded tuple value.
func Tuple(value interface{}, i int) (interface{}, error) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("value is %T, not a tuple", value)
	}
	if i < 0 || i >= len(items) {
		return nil, fmt.Errorf("tuple index %d out of range %d", i, len(items))
	}
	return items[i], nil
}

// AsAddress converts a decoded value to an address.
func AsAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// AsBigInt converts a decoded integer value to a fresh *big.Int.
func AsBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil big int")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

// AsUint8 converts a decoded value to uint8.
func AsUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

// AsString converts a decoded string or bytes32 value to a string.
func AsString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

// Int24 converts a decoded int24 value and checks its range.
func Int24(value interface{}) (int32, error) {
	n, err := AsBigInt(value)
	if err != nil {
		return 0, err
	}
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if n.Cmp(min) < 0 || n.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", n.String())
	}
	return int32(n.Int64()), nil
}
