package checkout

import (
	"context"
	"errors"
	"sync/atomic"

	"plant-store/internal/cart"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderItem is the snapshot of one cart line sent with an order
type OrderItem struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type Shipping struct {
	Address string `json:"address"`
	City    string `json:"city"`
	ZipCode string `json:"zipCode"`
	Phone   string `json:"phone,omitempty"`
}

// OrderRequest is the order submission payload
type OrderRequest struct {
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	Shipping      Shipping        `json:"shipping"`
	Items         []OrderItem     `json:"items"`
	Total         decimal.Decimal `json:"total"`
}

// Confirmation is the server's acknowledgement of a placed order
type Confirmation struct {
	ID      string          `json:"id"`
	Message string          `json:"message"`
	Total   decimal.Decimal `json:"total"`
	Status  string          `json:"status"`
}

// OrderService places orders. Implementations return *StockConflictError,
// ErrUnauthorized, ErrTotalMismatch or *TransportError on failure.
// An empty token places a guest order.
type OrderService interface {
	PlaceOrder(ctx context.Context, req OrderRequest, token string) (*Confirmation, error)
}

// Result describes a placed order. Applied is false when the cart changed
// or the caller gave up while the request was in flight, in which case the
// cart was left alone.
type Result struct {
	OrderID string
	Message string
	Total   decimal.Decimal
	Applied bool
}

// Submitter turns the cart into an order and reconciles the outcome back
// into the cart.
type Submitter struct {
	cart     *cart.Engine
	orders   OrderService
	validate *validator.Validate
	logger   *zap.Logger
	inFlight atomic.Bool
}

func NewSubmitter(engine *cart.Engine, orders OrderService, logger *zap.Logger) *Submitter {
	return &Submitter{
		cart:     engine,
		orders:   orders,
		validate: newValidator(),
		logger:   logger,
	}
}

// Submit validates the form and the cart, places the order and updates the
// cart: cleared on success, adjusted on a stock conflict, untouched otherwise.
func (s *Submitter) Submit(ctx context.Context, info ShippingInfo, token string) (*Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSubmitInProgress
	}
	defer s.inFlight.Store(false)

	lines, revision := s.cart.Snapshot()
	info = info.normalized()
	if err := s.check(info, lines); err != nil {
		return nil, err
	}

	req := buildRequest(info, lines)
	s.logger.Info("Submitting order",
		zap.Int("lines", len(req.Items)),
		zap.String("total", req.Total.StringFixed(2)),
		zap.Bool("guest", token == ""),
	)

	confirmation, err := s.orders.PlaceOrder(ctx, req, token)

	// the cart outlives the request; its storage write must not inherit cancellation
	cartCtx := context.WithoutCancel(ctx)
	superseded := ctx.Err() != nil

	if err != nil {
		var conflict *StockConflictError
		if errors.As(err, &conflict) && len(conflict.Adjustments) > 0 && !superseded {
			conflict.Applied = s.cart.DispatchAt(cartCtx, revision, cart.Adjust(toCartAdjustments(conflict.Adjustments)))
		}
		s.logger.Warn("Order submission failed", zap.Error(err))
		return nil, err
	}

	result := &Result{
		OrderID: confirmation.ID,
		Message: confirmation.Message,
		Total:   confirmation.Total,
	}
	if !superseded {
		result.Applied = s.cart.DispatchAt(cartCtx, revision, cart.Clear())
	}

	s.logger.Info("Order placed",
		zap.String("order_id", result.OrderID),
		zap.Bool("cart_cleared", result.Applied),
	)
	return result, nil
}

func (s *Submitter) check(info ShippingInfo, lines []cart.Line) error {
	var fields []FieldError
	if len(lines) == 0 {
		fields = append(fields, FieldError{Field: "items", Message: ErrEmptyCart.Error()})
	}
	if err := s.validate.Struct(info); err != nil {
		fields = append(fields, fieldErrors(err)...)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func buildRequest(info ShippingInfo, lines []cart.Line) OrderRequest {
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{ID: l.ID, Name: l.Name, Price: l.Price, Quantity: l.Quantity})
	}
	return OrderRequest{
		CustomerName:  info.Name,
		CustomerEmail: info.Email,
		Shipping: Shipping{
			Address: info.Address,
			City:    info.City,
			ZipCode: info.ZipCode,
			Phone:   info.Phone,
		},
		Items: items,
		Total: cart.Total(lines),
	}
}

func toCartAdjustments(adjustments []StockAdjustment) []cart.Adjustment {
	out := make([]cart.Adjustment, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, cart.Adjustment{ProductID: a.ProductID, Quantity: a.Quantity})
	}
	return out
}
