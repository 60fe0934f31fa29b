package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized     = errors.New("authentication required")
	ErrTotalMismatch    = errors.New("order total does not match current prices")
	ErrSubmitInProgress = errors.New("an order submission is already in progress")
	ErrEmptyCart        = errors.New("cart is empty")
)

// FieldError describes one invalid form field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any network call when the cart or the
// shipping form cannot be submitted.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid order: " + strings.Join(parts, ", ")
}

// Has reports whether field failed validation
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// StockAdjustment is the server's corrected quantity for one product.
// Quantity 0 means the product must leave the cart.
type StockAdjustment struct {
	ProductID int64 `json:"id"`
	Quantity  int   `json:"quantity"`
	Available int   `json:"available"`
}

// StockConflictError reports that the server could not cover the order.
// Applied is true when the adjustments were written to the cart.
type StockConflictError struct {
	Reasons     []string
	Adjustments []StockAdjustment
	Applied     bool
}

func (e *StockConflictError) Error() string {
	if len(e.Reasons) == 0 {
		return "insufficient stock"
	}
	return "insufficient stock: " + strings.Join(e.Reasons, "; ")
}

// TransportError wraps network failures and unexpected server responses.
// The user may retry; the cart is left as it was.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server responded %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
