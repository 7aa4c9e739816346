package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs for the calls the reader makes. V3 pools expose no
// getReserves; their balances are read through ERC-20 balanceOf instead.
const poolABIJSON = `[
  {"inputs": [], "name": "token0", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "token1", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getReserves", "outputs": [{"name": "_reserve0", "type": "uint112"}, {"name": "_reserve1", "type": "uint112"}, {"name": "_blockTimestampLast", "type": "uint32"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	poolABIOnce sync.Once
	poolABIVal  abi.ABI
	poolABIErr  error

	erc20ABIOnce sync.Once
	erc20ABIVal  abi.ABI
	erc20ABIErr  error
)

func poolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABIVal, poolABIErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return poolABIVal, poolABIErr
}

func erc20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABIVal, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABIVal, erc20ABIErr
}
