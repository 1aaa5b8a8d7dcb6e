// Package hyperliquid implements the exchange.Client interface against
// the HyperLiquid REST API. Orders are submitted as IOC limit orders at
// the caller-supplied reference price, which is how market execution
// works on this venue.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/config"
	"tradecore/internal/exchange"
)

const defaultBaseURL = "https://api.hyperliquid.xyz"

type Client struct {
	baseURL       string
	walletAddress string
	apiKey        string
	privateKey    string
	http          *http.Client
	logger        *zap.Logger

	nonce func() int64
}

// New validates credentials and builds a client. Missing credentials
// are a configuration error and must not be retried by callers.
func New(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "apiKey")
	}
	if strings.TrimSpace(cfg.WalletAddress) == "" {
		missing = append(missing, "walletAddress")
	}
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		missing = append(missing, "privateKey")
	}
	if len(missing) > 0 {
		return nil, &exchange.ConfigError{Exchange: "hyperliquid", Missing: missing}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:       baseURL,
		walletAddress: cfg.WalletAddress,
		apiKey:        cfg.APIKey,
		privateKey:    cfg.PrivateKey,
		http:          &http.Client{Timeout: timeout},
		logger:        logger,
		nonce:         func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Probe fetches exchange metadata. It is the cheapest authenticated-free
// call that still exercises the full network path.
func (c *Client) Probe(ctx context.Context) error {
	body, err := c.post(ctx, "/info", map[string]any{"type": "meta"})
	if err != nil {
		return err
	}
	var meta struct {
		Universe []json.RawMessage `json:"universe"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return fmt.Errorf("decode meta: %w", err)
	}
	if len(meta.Universe) == 0 {
		return fmt.Errorf("meta returned empty universe")
	}
	return nil
}

type orderLine struct {
	Coin       string `json:"coin"`
	IsBuy      bool   `json:"is_buy"`
	Size       string `json:"sz"`
	LimitPrice string `json:"limit_px"`
	ReduceOnly bool   `json:"reduce_only"`
	Cloid      string `json:"cloid"`
	OrderType  struct {
		Limit struct {
			Tif string `json:"tif"`
		} `json:"limit"`
	} `json:"order_type"`
}

type exchangeResponse struct {
	Status   string `json:"status"`
	Response struct {
		Data struct {
			Statuses []struct {
				Resting *struct {
					Oid int64 `json:"oid"`
				} `json:"resting"`
				Filled *struct {
					Oid int64 `json:"oid"`
				} `json:"filled"`
				Error string `json:"error"`
			} `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

func (c *Client) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error) {
	if req.Price == nil {
		return nil, fmt.Errorf("invalid order: price required for %s", req.Symbol)
	}

	line := orderLine{
		Coin:       exchange.BaseAsset(req.Symbol),
		IsBuy:      strings.EqualFold(req.Side, "buy"),
		Size:       req.Size.String(),
		LimitPrice: req.Price.String(),
		Cloid:      req.ClientOrderID,
	}
	line.OrderType.Limit.Tif = "Ioc"

	payload := map[string]any{
		"action": map[string]any{
			"type":     "order",
			"grouping": "na",
			"orders":   []orderLine{line},
		},
		"nonce":        c.nonce(),
		"vaultAddress": c.walletAddress,
	}

	body, err := c.post(ctx, "/exchange", payload)
	if err != nil {
		return nil, err
	}

	var resp exchangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("order rejected: %s", strings.TrimSpace(string(body)))
	}
	if len(resp.Response.Data.Statuses) == 0 {
		return nil, fmt.Errorf("order response missing status")
	}
	st := resp.Response.Data.Statuses[0]
	if st.Error != "" {
		return nil, fmt.Errorf("order rejected: %s", st.Error)
	}

	var oid int64
	switch {
	case st.Filled != nil:
		oid = st.Filled.Oid
	case st.Resting != nil:
		oid = st.Resting.Oid
	default:
		return nil, fmt.Errorf("order response missing fill or resting status")
	}

	c.logger.Info("order accepted",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("size", req.Size.String()),
		zap.Int64("exchange_order_id", oid))

	return &exchange.OrderAck{
		ExchangeOrderID: strconv.FormatInt(oid, 10),
		Raw:             json.RawMessage(body),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
