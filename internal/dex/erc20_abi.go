package dex

import "github.com/ethereum/go-ethereum/accounts/abi"

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens (MKR and friends) return bytes32 symbols.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString  = &lazyABI{json: erc20ABIStringJSON}
	erc20ABIBytes32 = &lazyABI{json: erc20ABIBytes32JSON}
)

// ERC20ABI returns the standard token ABI.
func ERC20ABI() (abi.ABI, error) { return erc20ABIString.get() }

// ERC20Bytes32ABI returns the legacy bytes32 symbol ABI.
func ERC20Bytes32ABI() (abi.ABI, error) { return erc20ABIBytes32.get() }
