package multicall

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultAddress is the Multicall3 deployment shared by most EVM chains.
var DefaultAddress = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const multicall3ABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bool", "name": "allowFailure", "type": "bool"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Call3[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "aggregate3",
    "outputs": [
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "payable",
    "type": "function"
  }
]`

var (
	multicall3ABI     abi.ABI
	multicall3ABIOnce sync.Once
	multicall3ABIErr  error
)

// Multicall3ABI returns the parsed aggregate3 ABI.
func Multicall3ABI() (abi.ABI, error) {
	multicall3ABIOnce.Do(func() {
		multicall3ABI, multicall3ABIErr = abi.JSON(strings.NewReader(multicall3ABIJSON))
	})
	return multicall3ABI, multicall3ABIErr
}

// Call3 mirrors the Multicall3.Call3 struct.
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result3 mirrors the Multicall3.Result struct.
type Result3 struct {
	Success    bool
	ReturnData []byte
}
