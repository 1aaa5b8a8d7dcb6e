// Package observer queries independent observer nodes for their view
// of the exchange account. An observer is an external process that
// publishes a heartbeat plus per-account asset positions; the
// reconciliation engine uses it as the second source when establishing
// what position the account actually holds.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/exchange"
)

type payload struct {
	ObserverID string `json:"observer_id"`
	Timestamp  string `json:"timestamp"`
	Positions  map[string]struct {
		AssetPositions []struct {
			Position struct {
				Coin string `json:"coin"`
				Szi  string `json:"szi"`
			} `json:"position"`
		} `json:"assetPositions"`
	} `json:"positions"`
}

type Client struct {
	HTTP   *http.Client
	Logger *zap.Logger

	URLs            []string
	Account         string
	MaxHeartbeatAge time.Duration

	now func() time.Time
}

func NewClient(urls []string, account string, timeout, maxHeartbeatAge time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxHeartbeatAge <= 0 {
		maxHeartbeatAge = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		HTTP:            &http.Client{Timeout: timeout},
		Logger:          logger,
		URLs:            urls,
		Account:         account,
		MaxHeartbeatAge: maxHeartbeatAge,
		now:             time.Now,
	}
}

// Position asks the configured observers, in order, for the account's
// position in the symbol's base asset. The first observer with a fresh
// heartbeat that knows the account wins. ok=false means no observer
// could answer; callers must treat that as indeterminate, never as a
// flat position.
func (c *Client) Position(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	asset := exchange.BaseAsset(symbol)
	for _, url := range c.URLs {
		pos, err := c.query(ctx, url, asset)
		if err != nil {
			c.Logger.Warn("observer query failed",
				zap.String("url", url),
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		return pos, true
	}
	c.Logger.Warn("all observers unreachable or invalid",
		zap.String("symbol", symbol),
		zap.Int("observer_count", len(c.URLs)))
	return decimal.Zero, false
}

func (c *Client) query(ctx context.Context, url, asset string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("http %d", resp.StatusCode)
	}

	var p payload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return decimal.Zero, fmt.Errorf("decode payload: %w", err)
	}

	ts, err := parseTimestamp(p.Timestamp)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad heartbeat timestamp %q: %w", p.Timestamp, err)
	}
	age := c.now().UTC().Sub(ts)
	if age > c.MaxHeartbeatAge {
		return decimal.Zero, fmt.Errorf("stale heartbeat: %s old", age.Round(time.Second))
	}

	account, ok := p.Positions[c.Account]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %s not reported", c.Account)
	}

	// An account with no entry for this asset holds none of it. The
	// account being present makes zero a reported value, not a guess.
	for _, ap := range account.AssetPositions {
		if ap.Position.Coin != asset {
			continue
		}
		szi, err := decimal.NewFromString(ap.Position.Szi)
		if err != nil {
			return decimal.Zero, fmt.Errorf("bad szi %q for %s: %w", ap.Position.Szi, asset, err)
		}
		return szi, nil
	}
	return decimal.Zero, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized format")
}
