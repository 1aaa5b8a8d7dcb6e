package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradecore/internal/gateway"
	"tradecore/internal/models"
	"tradecore/internal/repository"
)

type OrderHandler struct {
	Repo    repository.Repository
	Gateway *gateway.Service
}

func (h *OrderHandler) Register(r *gin.Engine) {
	r.POST("/execute_order", h.execute)
	r.GET("/orders", h.list)
	r.GET("/orders/:client_order_id", h.get)
}

// @Summary Execute a trade order with idempotency guarantees
// @Tags orders
// @Accept json
// @Produce json
// @Param request body gateway.OrderRequest true "Order request"
// @Success 200 {object} gateway.OrderResult
// @Failure 400 {object} handler.apiResponse
// @Failure 502 {object} handler.apiResponse
// @Failure 503 {object} handler.apiResponse
// @Router /execute_order [post]
func (h *OrderHandler) execute(c *gin.Context) {
	if h.Gateway == nil {
		Error(c, http.StatusServiceUnavailable, "gateway unavailable", nil)
		return
	}
	var req gateway.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := h.Gateway.SubmitOrder(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidOrder) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	switch result.Status {
	case models.OrderStatusConfirmed:
		c.JSON(http.StatusOK, result)
	case models.OrderStatusFailed:
		if result.Retryable {
			c.JSON(http.StatusBadGateway, result)
		} else {
			c.JSON(http.StatusBadRequest, result)
		}
	default:
		// PENDING with a retryable precondition failure (no price).
		c.JSON(http.StatusServiceUnavailable, result)
	}
}

// @Summary Get an order by client order id
// @Tags orders
// @Produce json
// @Param client_order_id path string true "Client order id"
// @Success 200 {object} handler.apiResponse
// @Failure 404 {object} handler.apiResponse
// @Router /orders/{client_order_id} [get]
func (h *OrderHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	clientOrderID := strings.TrimSpace(c.Param("client_order_id"))
	if clientOrderID == "" {
		Error(c, http.StatusBadRequest, "invalid client_order_id", nil)
		return
	}
	item, err := h.Repo.GetOrderByClientID(c.Request.Context(), clientOrderID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "order not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary List order executions
// @Tags orders
// @Produce json
// @Param status query string false "Filter by status (PENDING/CONFIRMED/FAILED)"
// @Param symbol query string false "Filter by symbol"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} handler.apiResponse
// @Router /orders [get]
func (h *OrderHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOrdersParams{
		Limit:   limit,
		Offset:  offset,
		Status:  strQueryPtr(c, "status"),
		Symbol:  strQueryPtr(c, "symbol"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
