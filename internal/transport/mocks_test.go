package transport

import (
	"context"
	"net/http"
	"time"

	"plant-store/internal/domain"
	"plant-store/internal/metrics"
	"plant-store/internal/middleware"
	"plant-store/internal/repository"
	"plant-store/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*domain.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, refreshToken := range m.tokens {
		if refreshToken.UserID == userID && !refreshToken.Revoked && time.Now().Before(refreshToken.ExpiresAt) {
			refreshToken.Revoked = true
			n++
		}
	}
	return n, nil
}

// stubCatalogService returns canned catalog data
type stubCatalogService struct {
	products   []*domain.Product
	categories []string
	lastQuery  service.ProductQuery
	created    *service.ProductInput
}

func (s *stubCatalogService) ListProducts(ctx context.Context, query service.ProductQuery) ([]*domain.Product, int, error) {
	s.lastQuery = query
	return s.products, len(s.products), nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (s *stubCatalogService) ListByCategory(ctx context.Context, category string) ([]*domain.Product, error) {
	out := []*domain.Product{}
	for _, p := range s.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]string, error) {
	return s.categories, nil
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, input service.ProductInput) (*domain.Product, error) {
	if input.Category == "Unknown" {
		return nil, repository.ErrCategoryNotFound
	}
	s.created = &input
	return &domain.Product{ID: 99, Name: input.Name, Price: input.Price, Category: input.Category, Stock: input.Stock}, nil
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, id int64, input service.ProductInput) (*domain.Product, error) {
	if _, err := s.GetProduct(ctx, id); err != nil {
		return nil, err
	}
	return &domain.Product{ID: id, Name: input.Name, Price: input.Price, Category: input.Category, Stock: input.Stock}, nil
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, id int64) error {
	_, err := s.GetProduct(ctx, id)
	return err
}

// stubOrderService lets each test decide how placement behaves
type stubOrderService struct {
	place     func(input service.PlaceOrderInput) (*domain.Order, error)
	orders    map[uuid.UUID]*domain.Order
	lastInput service.PlaceOrderInput
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, input service.PlaceOrderInput) (*domain.Order, error) {
	s.lastInput = input
	return s.place(input)
}

func (s *stubOrderService) GetOrder(ctx context.Context, id uuid.UUID, requester *service.Requester) (*domain.Order, error) {
	order, ok := s.orders[id]
	if !ok || (order.UserID != nil && (requester == nil || requester.UserID != *order.UserID)) {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	out := []*domain.Order{}
	for _, o := range s.orders {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, repository.ErrInvalidStatusTransition
	}
	order.Status = status
	return order, nil
}

func testRouteMiddleware() RouteMiddleware {
	validator := service.NewUserService(nil, nil, service.TokenConfig{Secret: testSecret})
	logger := zap.NewNop()
	return RouteMiddleware{
		Auth:         middleware.AuthMiddleware(validator, logger),
		OptionalAuth: middleware.OptionalAuth(validator, logger),
		Admin:        middleware.RequireAdmin(logger),
	}
}

// newTestRouter mounts handlers under /api the way the server does
func newTestRouter(register ...func(chi.Router, RouteMiddleware)) http.Handler {
	r := chi.NewRouter()
	mw := testRouteMiddleware()
	r.Route("/api", func(r chi.Router) {
		for _, fn := range register {
			fn(r, mw)
		}
	})
	return r
}

func newTestOrderHandler(orders *stubOrderService) *OrderHandler {
	return NewOrderHandler(orders, metrics.New(), zap.NewNop())
}

func bearer(userID uuid.UUID, role string) string {
	claims := &service.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	return "Bearer " + token
}
