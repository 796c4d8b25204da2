package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolABIJSON = `[
  {"inputs": [], "name": "liquidity", "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "stakedLiquidity", "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "slot0", "outputs": [
    {"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
    {"internalType": "int24", "name": "tick", "type": "int24"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "gauge", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getReserves", "outputs": [
    {"internalType": "uint256", "name": "reserve0", "type": "uint256"},
    {"internalType": "uint256", "name": "reserve1", "type": "uint256"},
    {"internalType": "uint256", "name": "blockTimestampLast", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token0", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "stable", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}], "stateMutability": "view", "type": "function"}
]`

const gaugeABIJSON = `[
  {"inputs": [], "name": "rewardRate", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "periodFinish", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "rewardToken", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalSupply", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "earned", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const lendingABIJSON = `[
  {"inputs": [], "name": "supplyRatePerBlock", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "borrowRatePerBlock", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "underlying", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getCash", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalBorrows", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalReserves", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const vaultABIJSON = `[
  {"inputs": [], "name": "totalAssets", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "shares", "type": "uint256"}], "name": "convertToAssets", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "asset", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

const voterABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "pool", "type": "address"}], "name": "gauges", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

const comptrollerABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "market", "type": "address"}], "name": "compSupplySpeeds", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const indexABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "pool", "type": "address"}], "name": "poolData", "outputs": [
    {"internalType": "uint256", "name": "tvlUsd", "type": "uint256"},
    {"internalType": "uint256", "name": "apyBps", "type": "uint256"},
    {"internalType": "uint256", "name": "stakedTvlUsd", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"}
]`

type lazyABI struct {
	json   string
	once   sync.Once
	parsed abi.ABI
	err    error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.json))
	})
	return l.parsed, l.err
}

var (
	poolABI        = &lazyABI{json: poolABIJSON}
	gaugeABI       = &lazyABI{json: gaugeABIJSON}
	lendingABI     = &lazyABI{json: lendingABIJSON}
	vaultABI       = &lazyABI{json: vaultABIJSON}
	voterABI       = &lazyABI{json: voterABIJSON}
	comptrollerABI = &lazyABI{json: comptrollerABIJSON}
	indexABI       = &lazyABI{json: indexABIJSON}
)

// PoolABI covers constant-product and concentrated-liquidity pool accessors.
// slot0 declares only its first two words, which every fork shares.
func PoolABI() (abi.ABI, error) { return poolABI.get() }

// GaugeABI covers reward gauge accessors.
func GaugeABI() (abi.ABI, error) { return gaugeABI.get() }

// LendingABI covers Compound-style market accessors.
func LendingABI() (abi.ABI, error) { return lendingABI.get() }

// VaultABI covers ERC-4626 accessors.
func VaultABI() (abi.ABI, error) { return vaultABI.get() }

// VoterABI covers the gauge registry lookup.
func VoterABI() (abi.ABI, error) { return voterABI.get() }

// ComptrollerABI covers lending reward speeds.
func ComptrollerABI() (abi.ABI, error) { return comptrollerABI.get() }

// IndexABI covers the pool index contract.
func IndexABI() (abi.ABI, error) { return indexABI.get() }
