package transport

import (
	"errors"
	"net/http"

	"plant-store/internal/domain"
	"plant-store/internal/metrics"
	"plant-store/internal/middleware"
	"plant-store/internal/repository"
	"plant-store/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderHandler handles order placement, lookup and admin status changes
type OrderHandler struct {
	orderService service.OrderService
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, m *metrics.Metrics, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		metrics:      m,
		logger:       logger,
	}
}

// RegisterRoutes registers the /orders routes. Guests may place and look up
// orders; history requires a login and status changes require an admin.
func (h *OrderHandler) RegisterRoutes(r chi.Router, mw RouteMiddleware) {
	r.Route("/orders", func(r chi.Router) {
		r.With(mw.OptionalAuth, mw.rateLimit()).Post("/", h.CreateOrder)
		r.With(mw.Auth).Get("/", h.ListOrders)
		r.With(mw.OptionalAuth).Get("/{id}", h.GetOrder)
		r.With(mw.Auth, mw.Admin).Patch("/{id}/status", h.UpdateStatus)
	})
}

// CreateOrder places an order from the submitted cart
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeRequest(w, r, &req, h.logger) {
		h.metrics.OrderRejections.WithLabelValues("validation").Inc()
		return
	}

	input := req.toInput()
	if requester := middleware.GetRequester(r.Context()); requester != nil {
		input.UserID = &requester.UserID
	}

	order, err := h.orderService.PlaceOrder(r.Context(), input)
	if err != nil {
		h.respondPlaceError(w, err)
		return
	}

	h.metrics.OrdersPlaced.Inc()
	h.metrics.OrderValue.Observe(order.Total.InexactFloat64())
	h.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total.StringFixed(2)),
	)

	middleware.RespondWithJSON(w, http.StatusCreated, OrderCreatedResponse{
		ID:      order.ID.String(),
		Message: "Order created successfully",
		Total:   order.Total,
		Status:  order.Status,
	})
}

func (h *OrderHandler) respondPlaceError(w http.ResponseWriter, err error) {
	var conflict *service.StockConflictError
	var mismatch *service.TotalMismatchError

	switch {
	case errors.As(err, &conflict):
		h.metrics.OrderRejections.WithLabelValues("stock_conflict").Inc()
		h.logger.Info("Order rejected for stock", zap.Strings("reasons", conflict.Reasons))
		adjusted := conflict.Adjustments
		if adjusted == nil {
			adjusted = []service.StockAdjustment{}
		}
		middleware.RespondWithJSON(w, http.StatusConflict, StockConflictResponse{
			Error:         "Some items are no longer available in the requested quantity",
			Errors:        conflict.Reasons,
			AdjustedItems: adjusted,
		})
	case errors.As(err, &mismatch):
		h.metrics.OrderRejections.WithLabelValues("total_mismatch").Inc()
		middleware.RespondWithJSON(w, http.StatusUnprocessableEntity, TotalMismatchResponse{
			Error:         "Order total does not match current prices",
			ExpectedTotal: mismatch.Expected,
		})
	case errors.Is(err, service.ErrEmptyOrder), errors.Is(err, service.ErrInvalidQuantity):
		h.metrics.OrderRejections.WithLabelValues("validation").Inc()
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.metrics.OrderRejections.WithLabelValues("error").Inc()
		h.logger.Error("Failed to place order", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to place order")
	}
}

// GetOrder returns an order the caller is allowed to see
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), id, middleware.GetRequester(r.Context()))
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.Error("Failed to get order", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// ListOrders returns the caller's order history
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "no token provided")
		return
	}

	orders, err := h.orderService.ListUserOrders(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// UpdateStatus fulfils or cancels a pending order
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	var req UpdateOrderStatusRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	order, err := h.orderService.UpdateOrderStatus(r.Context(), id, domain.OrderStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, repository.ErrInvalidStatusTransition), errors.Is(err, service.ErrInvalidStatus):
			middleware.RespondWithError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("Failed to update order status", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update order status")
		}
		return
	}

	h.logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, order)
}
