package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"plant-store/internal/domain"
	"plant-store/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyOrder      = errors.New("order has no items")
	ErrInvalidQuantity = errors.New("item quantity must be at least 1")
	ErrStockConflict   = errors.New("insufficient stock for one or more items")
	ErrTotalMismatch   = errors.New("order total does not match catalog prices")
	ErrInvalidStatus   = errors.New("unknown order status")
)

// TotalTolerance is the largest difference between a client-supplied total
// and the recomputed one that is still accepted.
var TotalTolerance = decimal.New(1, -2)

// StockAdjustment tells the client how far a line must shrink. Quantity is
// the largest amount that can still be ordered; zero means remove the line.
type StockAdjustment struct {
	ProductID int64 `json:"id"`
	Quantity  int   `json:"quantity"`
	Available int   `json:"available"`
}

// StockConflictError reports every line that cannot be fulfilled as ordered
type StockConflictError struct {
	Reasons     []string
	Adjustments []StockAdjustment
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStockConflict, strings.Join(e.Reasons, "; "))
}

func (e *StockConflictError) Is(target error) bool {
	return target == ErrStockConflict
}

// TotalMismatchError carries the total the server computed
type TotalMismatchError struct {
	Submitted decimal.Decimal
	Expected  decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("%s: submitted %s, expected %s", ErrTotalMismatch, e.Submitted.StringFixed(2), e.Expected.StringFixed(2))
}

func (e *TotalMismatchError) Is(target error) bool {
	return target == ErrTotalMismatch
}

// OrderLine is one requested line of a new order. Name and price are what the
// client displayed; the catalog values are authoritative.
type OrderLine struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// PlaceOrderInput is a customer's order request
type PlaceOrderInput struct {
	UserID        *uuid.UUID
	CustomerName  string
	CustomerEmail string
	Shipping      domain.ShippingAddress
	Items         []OrderLine
	Total         decimal.Decimal
}

// Requester identifies who is asking for an order. A nil requester is a guest.
type Requester struct {
	UserID uuid.UUID
	Role   string
}

func (r *Requester) canSee(order *domain.Order) bool {
	if order.UserID == nil {
		return true
	}
	if r == nil {
		return false
	}
	return r.Role == domain.RoleAdmin || r.UserID == *order.UserID
}

// OrderService defines the interface for placing and managing orders
type OrderService interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID, requester *Requester) (*domain.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(orderRepo repository.OrderRepository) OrderService {
	return &orderService{orderRepo: orderRepo}
}

// PlaceOrder snapshots catalog prices into the order, verifies stock and the
// client total, and persists the order while decrementing stock.
func (s *orderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error) {
	lines, err := mergeLines(input.Items)
	if err != nil {
		return nil, err
	}

	productIDs := make([]int64, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.ProductID)
	}

	order := &domain.Order{
		UserID:        input.UserID,
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerEmail: normalizeEmail(input.CustomerEmail),
		Shipping:      input.Shipping,
	}

	err = s.orderRepo.Place(ctx, order, productIDs, func(products map[int64]*domain.Product) error {
		items, conflict := snapshotLines(lines, products)
		if conflict != nil {
			return conflict
		}

		total := domain.ComputeTotal(items)
		if total.Sub(input.Total).Abs().GreaterThan(TotalTolerance) {
			return &TotalMismatchError{Submitted: input.Total, Expected: total}
		}

		order.Items = items
		order.Total = total
		return nil
	})
	if err != nil {
		var conflict *StockConflictError
		var mismatch *TotalMismatchError
		switch {
		case errors.As(err, &conflict), errors.As(err, &mismatch):
			return nil, err
		case errors.Is(err, repository.ErrStockChanged):
			return nil, &StockConflictError{Reasons: []string{"stock changed while the order was being placed, please try again"}}
		}
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	return order, nil
}

// GetOrder retrieves an order visible to requester. Orders owned by another
// customer are reported as not found.
func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID, requester *Requester) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if !requester.canSee(order) {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// ListUserOrders returns a customer's order history, newest first
func (s *orderService) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	orders, err := s.orderRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus fulfils or cancels a pending order
func (s *orderService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	order, err := s.orderRepo.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) || errors.Is(err, repository.ErrInvalidStatusTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	return order, nil
}

// mergeLines folds repeated product ids together, keeping first-seen order
func mergeLines(items []OrderLine) ([]OrderLine, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	merged := make([]OrderLine, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, item.ProductID)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// snapshotLines copies catalog names and prices into order items, collecting
// a conflict for every line the catalog cannot satisfy.
func snapshotLines(lines []OrderLine, products map[int64]*domain.Product) ([]domain.OrderItem, *StockConflictError) {
	items := make([]domain.OrderItem, 0, len(lines))
	conflict := &StockConflictError{}

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			name := line.Name
			if name == "" {
				name = fmt.Sprintf("product %d", line.ProductID)
			}
			conflict.Reasons = append(conflict.Reasons, fmt.Sprintf("%s is no longer available", name))
			conflict.Adjustments = append(conflict.Adjustments, StockAdjustment{ProductID: line.ProductID})
			continue
		}

		if product.Stock < line.Quantity {
			if product.Stock == 0 {
				conflict.Reasons = append(conflict.Reasons, fmt.Sprintf("%s is out of stock", product.Name))
			} else {
				conflict.Reasons = append(conflict.Reasons,
					fmt.Sprintf("only %d of %s in stock, %d requested", product.Stock, product.Name, line.Quantity))
			}
			conflict.Adjustments = append(conflict.Adjustments, StockAdjustment{
				ProductID: product.ID,
				Quantity:  product.Stock,
				Available: product.Stock,
			})
			continue
		}

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  line.Quantity,
		})
	}

	if len(conflict.Adjustments) > 0 {
		return nil, conflict
	}
	return items, nil
}
