package exchange

import "testing"

func TestBaseAsset(t *testing.T) {
	cases := map[string]string{
		"BTC/USDC:USDC": "BTC",
		"ETH/USDC:USDC": "ETH",
		"BTC":           "BTC",
		"":              "",
	}
	for symbol, want := range cases {
		if got := BaseAsset(symbol); got != want {
			t.Fatalf("BaseAsset(%q)=%q want %q", symbol, got, want)
		}
	}
}
