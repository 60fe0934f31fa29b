package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"plant-store/internal/checkout"
	"plant-store/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrConflict           = errors.New("already exists")
)

// Client talks JSON over HTTP to the plant-store API
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// User is the public profile returned by the auth endpoints
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session holds the credentials returned by register and login
type Session struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// apiError is the server's error envelope
type apiError struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type stockConflictBody struct {
	Error         string                     `json:"error"`
	Errors        []string                   `json:"errors"`
	AdjustedItems []checkout.StockAdjustment `json:"adjustedItems"`
}

type totalMismatchBody struct {
	Error         string          `json:"error"`
	ExpectedTotal decimal.Decimal `json:"expectedTotal"`
}

// New returns a client for the API rooted at baseURL, e.g. http://localhost:8080/api
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{http: httpClient, logger: logger}
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// ListProducts returns the catalog, optionally narrowed to one category
func (c *Client) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	var products []domain.Product
	req := c.request(ctx, "").SetResult(&products)

	var resp *resty.Response
	var err error
	if category != "" {
		resp, err = req.SetPathParam("category", category).Get("/products/category/{category}")
	} else {
		resp, err = req.Get("/products")
	}
	if err := c.check("list products", resp, err); err != nil {
		return nil, err
	}
	return products, nil
}

// SearchProducts runs a free-text catalog search
func (c *Client) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	var products []domain.Product
	resp, err := c.request(ctx, "").
		SetQueryParam("q", query).
		SetResult(&products).
		Get("/products")
	if err := c.check("search products", resp, err); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	resp, err := c.request(ctx, "").
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetResult(&product).
		Get("/products/{id}")
	if err := c.check("get product", resp, err); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	resp, err := c.request(ctx, "").SetResult(&categories).Get("/categories")
	if err := c.check("list categories", resp, err); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*Session, error) {
	var session Session
	resp, err := c.request(ctx, "").
		SetBody(map[string]string{"name": name, "email": email, "password": password}).
		SetResult(&session).
		Post("/auth/register")
	if err := c.check("register", resp, err); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	resp, err := c.request(ctx, "").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&session).
		Post("/auth/login")
	if resp != nil && resp.StatusCode() == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if err := c.check("login", resp, err); err != nil {
		return nil, err
	}
	return &session, nil
}

// Refresh exchanges a refresh token for a new access token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var body struct {
		Token string `json:"token"`
	}
	resp, err := c.request(ctx, "").
		SetBody(map[string]string{"refreshToken": refreshToken}).
		SetResult(&body).
		Post("/auth/refresh")
	if err := c.check("refresh session", resp, err); err != nil {
		return "", err
	}
	return body.Token, nil
}

// Logout revokes the caller's sessions on the server
func (c *Client) Logout(ctx context.Context, token, refreshToken string) error {
	resp, err := c.request(ctx, token).
		SetBody(map[string]string{"refreshToken": refreshToken}).
		Post("/auth/logout")
	return c.check("logout", resp, err)
}

// Me returns the profile of the token's owner
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var body struct {
		User User `json:"user"`
	}
	resp, err := c.request(ctx, token).SetResult(&body).Get("/auth/me")
	if err := c.check("get profile", resp, err); err != nil {
		return nil, err
	}
	return &body.User, nil
}

func (c *Client) ListOrders(ctx context.Context, token string) ([]domain.Order, error) {
	var orders []domain.Order
	resp, err := c.request(ctx, token).SetResult(&orders).Get("/orders")
	if err := c.check("list orders", resp, err); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) GetOrder(ctx context.Context, id, token string) (*domain.Order, error) {
	var order domain.Order
	resp, err := c.request(ctx, token).
		SetPathParam("id", id).
		SetResult(&order).
		Get("/orders/{id}")
	if err := c.check("get order", resp, err); err != nil {
		return nil, err
	}
	return &order, nil
}

// PlaceOrder submits an order. Stock conflicts and total mismatches are
// decoded from their dedicated response bodies.
func (c *Client) PlaceOrder(ctx context.Context, order checkout.OrderRequest, token string) (*checkout.Confirmation, error) {
	var confirmation checkout.Confirmation
	resp, err := c.request(ctx, token).
		SetBody(order).
		SetResult(&confirmation).
		Post("/orders")
	if err != nil {
		return nil, &checkout.TransportError{Op: "place order", Err: err}
	}

	switch resp.StatusCode() {
	case http.StatusConflict:
		var body stockConflictBody
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, &checkout.TransportError{Op: "place order", StatusCode: resp.StatusCode(), Err: fmt.Errorf("failed to decode conflict: %w", err)}
		}
		reasons := body.Errors
		if len(reasons) == 0 && body.Error != "" {
			reasons = []string{body.Error}
		}
		return nil, &checkout.StockConflictError{Reasons: reasons, Adjustments: body.AdjustedItems}

	case http.StatusUnprocessableEntity:
		var body totalMismatchBody
		if err := json.Unmarshal(resp.Body(), &body); err == nil && !body.ExpectedTotal.IsZero() {
			return nil, fmt.Errorf("%w: expected %s", checkout.ErrTotalMismatch, body.ExpectedTotal.StringFixed(2))
		}
		return nil, checkout.ErrTotalMismatch
	}

	if err := c.check("place order", resp, nil); err != nil {
		return nil, err
	}
	return &confirmation, nil
}

// check maps a response onto the client error taxonomy
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.Debug("Request failed", zap.String("op", op), zap.Error(err))
		return &checkout.TransportError{Op: op, Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}

	message := errorMessage(resp)
	c.logger.Debug("Request rejected",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode()),
		zap.String("message", message),
	)

	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return checkout.ErrUnauthorized
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w: %s", op, ErrConflict, message)
	case http.StatusBadRequest:
		return &checkout.ValidationError{Fields: []checkout.FieldError{{Field: "request", Message: message}}}
	default:
		return &checkout.TransportError{Op: op, StatusCode: resp.StatusCode(), Err: errors.New(message)}
	}
}

func errorMessage(resp *resty.Response) string {
	var envelope apiError
	if err := json.Unmarshal(resp.Body(), &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return resp.Status()
}
