package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"plant-store/internal/domain"
	"plant-store/internal/service"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrderBody() map[string]interface{} {
	return map[string]interface{}{
		"customerName":  "Ada Fern",
		"customerEmail": "ada@example.com",
		"shipping":      map[string]string{"address": "1 Leaf Lane", "city": "Greenville", "zipCode": "12345", "phone": "555-0100"},
		"items":         []map[string]interface{}{{"id": 1, "name": "Monstera Deliciosa", "price": 35.99, "quantity": 2}},
		"total":         71.98,
	}
}

func placingService() *stubOrderService {
	return &stubOrderService{
		orders: map[uuid.UUID]*domain.Order{},
		place: func(input service.PlaceOrderInput) (*domain.Order, error) {
			return &domain.Order{ID: uuid.New(), UserID: input.UserID, Total: input.Total, Status: domain.OrderStatusPending}, nil
		},
	}
}

func TestCreateOrder_Guest(t *testing.T) {
	orders := placingService()
	router := newTestRouter(newTestOrderHandler(orders).RegisterRoutes)

	w := postJSON(router, "/api/orders", validOrderBody(), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var response OrderCreatedResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "Order created successfully", response.Message)
	assert.NotEmpty(t, response.ID)
	assert.True(t, response.Total.Equal(decimal.RequireFromString("71.98")))

	assert.Nil(t, orders.lastInput.UserID)
	assert.Equal(t, "555-0100", orders.lastInput.Shipping.Phone)
	require.Len(t, orders.lastInput.Items, 1)
	assert.Equal(t, 2, orders.lastInput.Items[0].Quantity)
}

func TestCreateOrder_AuthenticatedAttachesUser(t *testing.T) {
	orders := placingService()
	router := newTestRouter(newTestOrderHandler(orders).RegisterRoutes)
	userID := uuid.New()

	w := postJSON(router, "/api/orders", validOrderBody(), bearer(userID, domain.RoleUser))
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, orders.lastInput.UserID)
	assert.Equal(t, userID, *orders.lastInput.UserID)

	w = postJSON(router, "/api/orders", validOrderBody(), "Bearer expired-or-garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// Feature: plant-store, Property 20: Order submissions missing shipping fields never reach the service
func TestProperty_InvalidOrdersAreRejected(t *testing.T) {
	fields := []string{"customerName", "customerEmail", "address", "city", "zipCode", "items"}

	properties := gopter.NewProperties(nil)

	properties.Property("dropping any required field yields 400", prop.ForAll(
		func(idx int) bool {
			called := false
			orders := &stubOrderService{place: func(service.PlaceOrderInput) (*domain.Order, error) {
				called = true
				return nil, nil
			}}
			router := newTestRouter(newTestOrderHandler(orders).RegisterRoutes)

			body := validOrderBody()
			switch field := fields[idx]; field {
			case "address", "city", "zipCode":
				delete(body["shipping"].(map[string]string), field)
			case "items":
				body["items"] = []map[string]interface{}{}
			default:
				delete(body, field)
			}

			w := postJSON(router, "/api/orders", body, "")
			return w.Code == http.StatusBadRequest && !called
		},
		gen.IntRange(0, len(fields)-1),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestCreateOrder_StockConflict(t *testing.T) {
	orders := &stubOrderService{place: func(service.PlaceOrderInput) (*domain.Order, error) {
		return nil, &service.StockConflictError{
			Reasons:     []string{"only 1 of Monstera Deliciosa in stock, 2 requested"},
			Adjustments: []service.StockAdjustment{{ProductID: 1, Quantity: 1, Available: 1}},
		}
	}}
	router := newTestRouter(newTestOrderHandler(orders).RegisterRoutes)

	w := postJSON(router, "/api/orders", validOrderBody(), "")
	require.Equal(t, http.StatusConflict, w.Code)

	var response StockConflictResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.NotEmpty(t, response.Error)
	assert.Len(t, response.Errors, 1)
	assert.Equal(t, []service.StockAdjustment{{ProductID: 1, Quantity: 1, Available: 1}}, response.AdjustedItems)
}

func TestCreateOrder_TotalMismatch(t *testing.T) {
	orders := &stubOrderService{place: func(input service.PlaceOrderInput) (*domain.Order, error) {
		return nil, &service.TotalMismatchError{Submitted: input.Total, Expected: decimal.RequireFromString("80.00")}
	}}
	router := newTestRouter(newTestOrderHandler(orders).RegisterRoutes)

	w := postJSON(router, "/api/orders", validOrderBody(), "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response TotalMismatchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.True(t, response.ExpectedTotal.Equal(decimal.RequireFromString("80")))
}

func TestGetAndListOrders(t *testing.T) {
	owner := uuid.New()
	owned := &domain.Order{ID: uuid.New(), UserID: &owner, Status: domain.OrderStatusPending, CreatedAt: time.Now()}
	guest := &domain.Order{ID: uuid.New(), Status: domain.OrderStatusPending, CreatedAt: time.Now()}
	orders := &stubOrderService{orders: map[uuid.UUID]*domain.Order{owned.ID: owned, guest.ID: guest}}
	router := newTestRouter(newTestOrderHandler(orders).RegisterRoutes)

	send := func(path, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("/api/orders/"+guest.ID.String(), "").Code)
	assert.Equal(t, http.StatusNotFound, send("/api/orders/"+owned.ID.String(), "").Code)
	assert.Equal(t, http.StatusOK, send("/api/orders/"+owned.ID.String(), bearer(owner, domain.RoleUser)).Code)
	assert.Equal(t, http.StatusNotFound, send("/api/orders/not-a-uuid", "").Code)

	assert.Equal(t, http.StatusUnauthorized, send("/api/orders", "").Code)
	w := send("/api/orders", bearer(owner, domain.RoleUser))
	require.Equal(t, http.StatusOK, w.Code)
	var history []domain.Order
	require.NoError(t, json.NewDecoder(w.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, owned.ID, history[0].ID)
}

func TestUpdateOrderStatus(t *testing.T) {
	order := &domain.Order{ID: uuid.New(), Status: domain.OrderStatusPending}
	orders := &stubOrderService{orders: map[uuid.UUID]*domain.Order{order.ID: order}}
	router := newTestRouter(newTestOrderHandler(orders).RegisterRoutes)

	patch := func(status, auth string) int {
		raw, _ := json.Marshal(UpdateOrderStatusRequest{Status: status})
		req := httptest.NewRequest(http.MethodPatch, "/api/orders/"+order.ID.String()+"/status", bytes.NewReader(raw))
		req.Header.Set("Authorization", auth)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, patch("fulfilled", bearer(uuid.New(), domain.RoleUser)))
	assert.Equal(t, http.StatusBadRequest, patch("shipped", bearer(uuid.New(), domain.RoleAdmin)))
	assert.Equal(t, http.StatusOK, patch("fulfilled", bearer(uuid.New(), domain.RoleAdmin)))
	assert.Equal(t, domain.OrderStatusFulfilled, order.Status)
	assert.Equal(t, http.StatusConflict, patch("cancelled", bearer(uuid.New(), domain.RoleAdmin)))
}
