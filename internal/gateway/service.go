// Package gateway executes orders exactly once. Every request is
// fingerprinted and durably logged before anything touches the
// exchange, so a retried or concurrent duplicate request converges on
// the same client order id and at most one exchange submission.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradecore/internal/config"
	"tradecore/internal/exchange"
	"tradecore/internal/models"
	"tradecore/internal/repository"
)

// ErrInvalidOrder marks request validation failures.
var ErrInvalidOrder = errors.New("invalid order request")

// OrderRequest is an order to execute.
type OrderRequest struct {
	Symbol string           `json:"symbol" binding:"required"`
	Side   string           `json:"side" binding:"required"`
	Size   decimal.Decimal  `json:"size" binding:"required"`
	Type   string           `json:"type" binding:"required"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}

// OrderResult is the gateway's answer. Retryable tells the caller
// whether resubmitting the same request can still succeed.
type OrderResult struct {
	ClientOrderID   string `json:"client_order_id"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	ExchangeOrderID string `json:"exchange_order_id,omitempty"`
	Retryable       bool   `json:"-"`
}

// PriceSource resolves the current market price for a symbol.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Submitter runs an operation against a healthy exchange client.
// *exchange.Manager implements it.
type Submitter interface {
	Execute(ctx context.Context, name string, op func(ctx context.Context, c exchange.Client) error) error
}

type Service struct {
	Repo         repository.Repository
	Manager      Submitter
	Feed         PriceSource
	Config       config.GatewayConfig
	ExchangeName string
	Logger       *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(repo repository.Repository, manager Submitter, feed PriceSource, cfg config.GatewayConfig, exchangeName string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Repo:         repo,
		Manager:      manager,
		Feed:         feed,
		Config:       cfg,
		ExchangeName: exchangeName,
		Logger:       logger,
		now:          time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// SubmitOrder executes req idempotently. Terminal records are answered
// from the log without touching the exchange; PENDING records (new or
// found) go through bounded submission attempts, with every status
// transition persisted before it is reported.
func (s *Service) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := validate(req); err != nil {
		return OrderResult{}, err
	}

	now := s.now().UTC()
	item := &models.OrderExecution{
		ClientOrderID:      newClientOrderID(),
		RequestFingerprint: requestFingerprint(req, now, s.Config.DedupWindow),
		Symbol:             req.Symbol,
		Side:               req.Side,
		Size:               req.Size,
		OrderType:          req.Type,
		Price:              req.Price,
		Status:             models.OrderStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	rec, created, err := s.Repo.CreateOrderIfAbsent(ctx, item)
	if err != nil {
		return OrderResult{}, fmt.Errorf("order log: %w", err)
	}

	if !created {
		s.Logger.Info("duplicate request matched existing order",
			zap.String("client_order_id", rec.ClientOrderID),
			zap.String("status", rec.Status))
		switch rec.Status {
		case models.OrderStatusConfirmed:
			return OrderResult{
				ClientOrderID:   rec.ClientOrderID,
				Status:          rec.Status,
				Message:         "Order already confirmed",
				ExchangeOrderID: rec.ExchangeOrderID,
			}, nil
		case models.OrderStatusFailed:
			return OrderResult{
				ClientOrderID: rec.ClientOrderID,
				Status:        rec.Status,
				Message:       fmt.Sprintf("Order already failed: %s", rec.ErrorMessage),
			}, nil
		}
		// Still PENDING: a previous attempt did not reach a terminal
		// state. Resume submission under the same client order id.
	}

	price, err := s.resolvePrice(ctx, req)
	if err != nil {
		s.Logger.Warn("price unavailable, order not submitted",
			zap.String("client_order_id", rec.ClientOrderID),
			zap.String("symbol", req.Symbol),
			zap.Error(err))
		_ = s.Repo.UpdateOrderStatus(ctx, rec.ClientOrderID, models.OrderStatusPending, map[string]any{
			"error_message": err.Error(),
		}, false)
		return OrderResult{
			ClientOrderID: rec.ClientOrderID,
			Status:        models.OrderStatusPending,
			Message:       err.Error(),
			Retryable:     true,
		}, nil
	}

	return s.submit(ctx, rec.ClientOrderID, req, price)
}

func (s *Service) submit(ctx context.Context, clientOrderID string, req OrderRequest, price decimal.Decimal) (OrderResult, error) {
	maxRetries := s.Config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for retry := 0; ; retry++ {
		ack, err := s.sendToExchange(ctx, clientOrderID, req, price)
		if err == nil {
			updates := map[string]any{
				"exchange_order_id": ack.ExchangeOrderID,
				"error_message":     "",
			}
			if len(ack.Raw) > 0 {
				updates["last_response"] = datatypes.JSON(ack.Raw)
			}
			if uerr := s.Repo.UpdateOrderStatus(ctx, clientOrderID, models.OrderStatusConfirmed, updates, false); uerr != nil {
				return OrderResult{}, fmt.Errorf("persist confirmation: %w", uerr)
			}
			s.Logger.Info("order confirmed",
				zap.String("client_order_id", clientOrderID),
				zap.String("exchange_order_id", ack.ExchangeOrderID),
				zap.String("symbol", req.Symbol),
				zap.String("side", req.Side))
			return OrderResult{
				ClientOrderID:   clientOrderID,
				Status:          models.OrderStatusConfirmed,
				Message:         "Order executed successfully",
				ExchangeOrderID: ack.ExchangeOrderID,
			}, nil
		}

		class := exchange.ClassifySubmit(err)
		lastResponse, _ := json.Marshal(map[string]string{"error": err.Error()})

		if class == exchange.SubmitDuplicate {
			// The exchange already holds this client order id, so the
			// original submission went through. Safe success.
			if uerr := s.Repo.UpdateOrderStatus(ctx, clientOrderID, models.OrderStatusConfirmed, map[string]any{
				"error_message": "Duplicate order - treating as success",
				"last_response": datatypes.JSON(lastResponse),
			}, false); uerr != nil {
				return OrderResult{}, fmt.Errorf("persist confirmation: %w", uerr)
			}
			return OrderResult{
				ClientOrderID: clientOrderID,
				Status:        models.OrderStatusConfirmed,
				Message:       "Order was already processed (duplicate detection)",
			}, nil
		}

		if class == exchange.SubmitNonRetryable || retry >= maxRetries {
			if uerr := s.Repo.UpdateOrderStatus(ctx, clientOrderID, models.OrderStatusFailed, map[string]any{
				"error_message": err.Error(),
				"last_response": datatypes.JSON(lastResponse),
			}, false); uerr != nil {
				return OrderResult{}, fmt.Errorf("persist failure: %w", uerr)
			}
			s.Logger.Error("order failed",
				zap.String("client_order_id", clientOrderID),
				zap.String("symbol", req.Symbol),
				zap.Int("retries", retry),
				zap.Error(err))
			return OrderResult{
				ClientOrderID: clientOrderID,
				Status:        models.OrderStatusFailed,
				Message:       err.Error(),
				Retryable:     class == exchange.SubmitRetryable,
			}, nil
		}

		if uerr := s.Repo.UpdateOrderStatus(ctx, clientOrderID, models.OrderStatusPending, map[string]any{
			"error_message": fmt.Sprintf("Retry %d: %s", retry+1, err.Error()),
			"last_response": datatypes.JSON(lastResponse),
		}, true); uerr != nil {
			return OrderResult{}, fmt.Errorf("persist retry: %w", uerr)
		}
		s.Logger.Warn("order submission retrying",
			zap.String("client_order_id", clientOrderID),
			zap.Int("attempt", retry+1),
			zap.Error(err))
		if serr := s.sleep(ctx, time.Duration(1<<uint(retry+1))*time.Second); serr != nil {
			return OrderResult{}, serr
		}
	}
}

func (s *Service) sendToExchange(ctx context.Context, clientOrderID string, req OrderRequest, price decimal.Decimal) (*exchange.OrderAck, error) {
	var ack *exchange.OrderAck
	err := s.Manager.Execute(ctx, s.ExchangeName, func(ctx context.Context, c exchange.Client) error {
		a, err := c.CreateOrder(ctx, exchange.OrderRequest{
			Symbol:        req.Symbol,
			Side:          req.Side,
			Size:          req.Size,
			Type:          req.Type,
			Price:         &price,
			ClientOrderID: clientOrderID,
		})
		if err != nil {
			return err
		}
		ack = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ack, nil
}

// resolvePrice returns the caller's limit price or the live market
// price. Orders are never submitted without one; the venue needs it
// for slippage bounds even on market orders.
func (s *Service) resolvePrice(ctx context.Context, req OrderRequest) (decimal.Decimal, error) {
	if req.Price != nil && req.Price.Sign() > 0 {
		return *req.Price, nil
	}
	price, err := s.Feed.LatestPrice(ctx, req.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("no current price available for %s", req.Symbol)
	}
	return price, nil
}

func validate(req OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidOrder)
	}
	if req.Side != "buy" && req.Side != "sell" {
		return fmt.Errorf("%w: side must be buy or sell", ErrInvalidOrder)
	}
	if req.Size.Sign() <= 0 {
		return fmt.Errorf("%w: size must be positive", ErrInvalidOrder)
	}
	if req.Type != "market" && req.Type != "limit" {
		return fmt.Errorf("%w: type must be market or limit", ErrInvalidOrder)
	}
	if req.Type == "limit" && (req.Price == nil || req.Price.Sign() <= 0) {
		return fmt.Errorf("%w: price required for limit orders", ErrInvalidOrder)
	}
	return nil
}
