package transport

import (
	"plant-store/internal/domain"
	"plant-store/internal/service"

	"github.com/shopspring/decimal"
)

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries a refresh token for refresh and logout
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// UserProfile is the public view of a user
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         UserProfile `json:"user"`
}

// RefreshResponse carries a newly minted access token
type RefreshResponse struct {
	Token string `json:"token"`
}

// MeResponse wraps the current user's profile
type MeResponse struct {
	User UserProfile `json:"user"`
}

// ProductRequest is the admin payload for creating or replacing a product
type ProductRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required,max=100"`
	Image       string          `json:"image" validate:"omitempty,url"`
	Stock       int             `json:"stock" validate:"gte=0"`
}

// ShippingRequest is the delivery part of an order
type ShippingRequest struct {
	Address string `json:"address" validate:"required,max=200"`
	City    string `json:"city" validate:"required,max=100"`
	ZipCode string `json:"zipCode" validate:"required,max=20"`
	Phone   string `json:"phone,omitempty" validate:"max=40"`
}

// OrderItemRequest is one cart line as submitted by the client
type OrderItemRequest struct {
	ID       int64           `json:"id" validate:"required,gt=0"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"gte=1"`
}

// CreateOrderRequest represents the order submission payload
type CreateOrderRequest struct {
	CustomerName  string             `json:"customerName" validate:"required,max=100"`
	CustomerEmail string             `json:"customerEmail" validate:"required,email"`
	Shipping      ShippingRequest    `json:"shipping"`
	Items         []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Total         decimal.Decimal    `json:"total"`
}

// OrderCreatedResponse confirms a placed order
type OrderCreatedResponse struct {
	ID      string             `json:"id"`
	Message string             `json:"message"`
	Total   decimal.Decimal    `json:"total"`
	Status  domain.OrderStatus `json:"status"`
}

// StockConflictResponse is the 409 body for orders the stock cannot cover
type StockConflictResponse struct {
	Error         string                    `json:"error"`
	Errors        []string                  `json:"errors"`
	AdjustedItems []service.StockAdjustment `json:"adjustedItems"`
}

// TotalMismatchResponse is the 422 body for orders whose total is stale
type TotalMismatchResponse struct {
	Error         string          `json:"error"`
	ExpectedTotal decimal.Decimal `json:"expectedTotal"`
}

// UpdateOrderStatusRequest is the admin payload for moving an order on
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=fulfilled cancelled"`
}

func toUserProfile(user *domain.User) UserProfile {
	return UserProfile{
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}

func (req CreateOrderRequest) toInput() service.PlaceOrderInput {
	lines := make([]service.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, service.OrderLine{
			ProductID: item.ID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	return service.PlaceOrderInput{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Shipping: domain.ShippingAddress{
			Address: req.Shipping.Address,
			City:    req.Shipping.City,
			ZipCode: req.Shipping.ZipCode,
			Phone:   req.Shipping.Phone,
		},
		Items: lines,
		Total: req.Total,
	}
}

func (req ProductRequest) toInput() service.ProductInput {
	return service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Image:       req.Image,
		Stock:       req.Stock,
	}
}
