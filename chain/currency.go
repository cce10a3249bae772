package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatWei renders a wei amount as a token string with up to 18 decimal
// places. The ledger's native token has 18 decimals.
func FormatWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, 0).DivRound(decimal.New(1, 18), 18).String()
}
