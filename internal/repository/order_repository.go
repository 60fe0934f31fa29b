package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plant-store/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("order status cannot change from its current state")
	ErrStockChanged            = errors.New("product stock changed during order placement")
)

// PrepareOrderFunc receives the catalog rows for an order, locked for the
// duration of the placement transaction, and fills in the order's items and
// total. Returning an error aborts the placement and is passed through as-is.
type PrepareOrderFunc func(products map[int64]*domain.Product) error

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Place(ctx context.Context, order *domain.Order, productIDs []int64, prepare PrepareOrderFunc) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, user_id, customer_name, customer_email, shipping, items, total, status, created_at, updated_at`

// Place locks the referenced products, lets prepare build the order snapshot,
// decrements stock and inserts the order in a single transaction.
func (r *orderRepository) Place(ctx context.Context, order *domain.Order, productIDs []int64, prepare PrepareOrderFunc) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, productIDs)
	if err != nil {
		return fmt.Errorf("failed to lock products: %w", err)
	}

	products := make(map[int64]*domain.Product, len(productIDs))
	for rows.Next() {
		product, scanErr := scanProduct(rows)
		if scanErr != nil {
			rows.Close()
			return fmt.Errorf("failed to scan product: %w", scanErr)
		}
		products[product.ID] = product
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating products: %w", err)
	}

	if err = prepare(products); err != nil {
		return err
	}

	for _, item := range order.Items {
		result, execErr := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
			item.ProductID, item.Quantity)
		if execErr != nil {
			err = fmt.Errorf("failed to decrement stock: %w", execErr)
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			err = ErrStockChanged
			return err
		}
	}

	shipping, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}

	var userID uuid.NullUUID
	if order.UserID != nil {
		userID = uuid.NullUUID{UUID: *order.UserID, Valid: true}
	}

	now := time.Now().UTC()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Status = domain.OrderStatusPending
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, customer_name, customer_email, shipping, items, total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		order.ID,
		userID,
		order.CustomerName,
		order.CustomerEmail,
		string(shipping),
		string(items),
		order.Total,
		string(order.Status),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	return nil
}

// FindByID retrieves an order with its item snapshots
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}
	return order, nil
}

// ListByUser returns a user's orders, newest first
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// UpdateStatus moves a pending order to status. Cancelling returns the
// ordered quantities to stock.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (order *domain.Order, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	order, err = scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrOrderNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if !order.Status.CanTransitionTo(status) {
		err = ErrInvalidStatusTransition
		return nil, err
	}

	if status == domain.OrderStatusCancelled {
		for _, item := range order.Items {
			if _, err = tx.ExecContext(ctx,
				`UPDATE products SET stock = stock + $2 WHERE id = $1`, item.ProductID, item.Quantity); err != nil {
				return nil, fmt.Errorf("failed to restock product: %w", err)
			}
		}
	}

	if err = tx.QueryRowContext(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 RETURNING updated_at`, id, string(status)).Scan(&order.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = status

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	return order, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order    domain.Order
		userID   uuid.NullUUID
		status   string
		shipping []byte
		items    []byte
	)

	err := row.Scan(
		&order.ID,
		&userID,
		&order.CustomerName,
		&order.CustomerEmail,
		&shipping,
		&items,
		&order.Total,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.UUID
		order.UserID = &id
	}
	order.Status = domain.OrderStatus(status)

	if err := json.Unmarshal(shipping, &order.Shipping); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}

	return &order, nil
}
