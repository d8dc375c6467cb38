package executor

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ArbitrageABI is the subset of the flash-loan arbitrage contract the bot calls
const ArbitrageABI = `[
	{
		"type": "function",
		"name": "executeArbitrage",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "tokenBorrow", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "buyRouter", "type": "address"},
			{"name": "sellRouter", "type": "address"},
			{"name": "tokenSwap", "type": "address"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "withdraw",
		"stateMutability": "nonpayable",
		"inputs": [{"name": "token", "type": "address"}],
		"outputs": []
	},
	{
		"type": "error",
		"name": "InsufficientProfit",
		"inputs": []
	}
]`

const (
	methodExecute  = "executeArbitrage"
	methodWithdraw = "withdraw"
	errorNoProfit  = "InsufficientProfit"
)

var (
	arbitrageABI         = mustParseABI(ArbitrageABI)
	insufficientProfitID = arbitrageABI.Errors[errorNoProfit].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid arbitrage ABI: %v", err))
	}
	return parsed
}
