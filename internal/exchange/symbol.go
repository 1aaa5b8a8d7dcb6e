package exchange

import "strings"

// BaseAsset extracts the base coin from a unified symbol, e.g.
// "BTC/USDC:USDC" -> "BTC". A symbol without a separator is returned
// unchanged.
func BaseAsset(symbol string) string {
	if i := strings.Index(symbol, "/"); i >= 0 {
		return symbol[:i]
	}
	return symbol
}
