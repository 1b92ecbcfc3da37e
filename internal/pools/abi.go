package pools

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Lending vault surface: ERC-4626 entry points plus the protocol's liquidity
// and rate views, and the share events the executor parses from receipts.
const vaultABIJSON = `[
  {"inputs": [], "name": "asset", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "expectedLiquidity", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "availableLiquidity", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "supplyRate", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "baseInterestRate", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "uint256"}], "name": "previewDeposit", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "uint256"}], "name": "previewRedeem", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "uint256"}, {"type": "address"}], "name": "deposit", "outputs": [{"type": "uint256"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"type": "uint256"}, {"type": "address"}, {"type": "address"}], "name": "redeem", "outputs": [{"type": "uint256"}], "stateMutability": "nonpayable", "type": "function"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "sender", "type": "address"},
    {"indexed": true, "name": "owner", "type": "address"},
    {"indexed": false, "name": "assets", "type": "uint256"},
    {"indexed": false, "name": "shares", "type": "uint256"}
  ], "name": "Deposit", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "sender", "type": "address"},
    {"indexed": true, "name": "receiver", "type": "address"},
    {"indexed": true, "name": "owner", "type": "address"},
    {"indexed": false, "name": "assets", "type": "uint256"},
    {"indexed": false, "name": "shares", "type": "uint256"}
  ], "name": "Withdraw", "type": "event"}
]`

// Market registry contract listing the protocol's pools on a chain.
const marketRegistryABIJSON = `[
  {"inputs": [], "name": "getPools", "outputs": [{"type": "address[]"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "address"}, {"type": "address"}], "name": "allowance", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens return symbol/name as bytes32 instead of string.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	vaultABI     abi.ABI
	vaultABIOnce sync.Once
	vaultABIErr  error

	marketRegistryABI     abi.ABI
	marketRegistryABIOnce sync.Once
	marketRegistryABIErr  error

	erc20ABIString     abi.ABI
	erc20ABIStringOnce sync.Once
	erc20ABIStringErr  error

	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

// VaultABI returns the parsed lending vault ABI.
func VaultABI() (abi.ABI, error) {
	vaultABIOnce.Do(func() {
		vaultABI, vaultABIErr = abi.JSON(strings.NewReader(vaultABIJSON))
	})
	return vaultABI, vaultABIErr
}

// MarketRegistryABI returns the parsed market registry ABI.
func MarketRegistryABI() (abi.ABI, error) {
	marketRegistryABIOnce.Do(func() {
		marketRegistryABI, marketRegistryABIErr = abi.JSON(strings.NewReader(marketRegistryABIJSON))
	})
	return marketRegistryABI, marketRegistryABIErr
}

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}
