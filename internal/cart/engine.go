package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"plant-store/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StorageKey is the fixed record key holding the serialized cart
const StorageKey = "cart"

// Engine owns the cart lines for one storefront session. Every mutation
// runs through Reduce and is written to storage before the lock is released.
type Engine struct {
	mu       sync.Mutex
	lines    []Line
	revision uint64
	storage  Storage
	logger   *zap.Logger
}

// NewEngine rehydrates the cart from storage. Missing or unreadable records
// start an empty cart.
func NewEngine(ctx context.Context, storage Storage, logger *zap.Logger) *Engine {
	e := &Engine{
		lines:   []Line{},
		storage: storage,
		logger:  logger,
	}
	e.lines = Reduce(nil, Load(e.load(ctx)))
	return e
}

func (e *Engine) load(ctx context.Context) []Line {
	data, err := e.storage.Get(ctx, StorageKey)
	if errors.Is(err, ErrNotFound) {
		e.logger.Debug("No stored cart, starting empty")
		return nil
	}
	if err != nil {
		e.logger.Warn("Failed to read stored cart, starting empty", zap.Error(err))
		return nil
	}

	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		e.logger.Warn("Stored cart is corrupt, starting empty", zap.Error(err))
		return nil
	}

	e.logger.Debug("Restored cart", zap.Int("lines", len(lines)))
	return lines
}

func (e *Engine) Add(ctx context.Context, product domain.Product, quantity int) {
	e.Dispatch(ctx, Add(LineFromProduct(product, quantity)))
}

func (e *Engine) Remove(ctx context.Context, productID int64) {
	e.Dispatch(ctx, Remove(productID))
}

func (e *Engine) SetQuantity(ctx context.Context, productID int64, quantity int) {
	e.Dispatch(ctx, SetQuantity(productID, quantity))
}

func (e *Engine) Clear(ctx context.Context) {
	e.Dispatch(ctx, Clear())
}

func (e *Engine) Adjust(ctx context.Context, adjustments []Adjustment) {
	e.Dispatch(ctx, Adjust(adjustments))
}

// Refresh replaces the copied product fields of lines found in products and
// removes the lines listed in gone. Quantities are kept. The whole update is
// one mutation.
func (e *Engine) Refresh(ctx context.Context, products []domain.Product, gone []int64) {
	fresh := make([]Line, 0, len(products))
	for _, p := range products {
		fresh = append(fresh, LineFromProduct(p, 0))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	lines := Reduce(e.lines, Refresh(fresh))
	for _, id := range gone {
		lines = Reduce(lines, Remove(id))
	}
	e.lines = lines
	e.revision++
	e.persist(ctx)
}

// Dispatch applies action and persists the result
func (e *Engine) Dispatch(ctx context.Context, action Action) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.apply(ctx, action)
}

// DispatchAt applies action only if the cart has not changed since
// revision was observed. It reports whether the action was applied.
func (e *Engine) DispatchAt(ctx context.Context, revision uint64, action Action) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.revision != revision {
		e.logger.Info("Discarding stale cart update",
			zap.Stringer("action", action.Kind),
			zap.Uint64("expected_revision", revision),
			zap.Uint64("revision", e.revision),
		)
		return false
	}
	e.apply(ctx, action)
	return true
}

func (e *Engine) apply(ctx context.Context, action Action) {
	e.lines = Reduce(e.lines, action)
	e.revision++
	e.persist(ctx)
}

// persist must be called with mu held. Failures are logged only; the
// in-memory cart stays authoritative for the session.
func (e *Engine) persist(ctx context.Context) {
	data, err := json.Marshal(e.lines)
	if err != nil {
		e.logger.Error("Failed to encode cart", zap.Error(err))
		return
	}
	if err := e.storage.Set(ctx, StorageKey, data); err != nil {
		e.logger.Warn("Failed to persist cart", zap.Error(err))
	}
}

// Lines returns a copy of the current lines in insertion order
func (e *Engine) Lines() []Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.lines)
}

// Snapshot returns the current lines together with the revision they belong to
func (e *Engine) Snapshot() ([]Line, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.lines), e.revision
}

// Revision counts applied mutations since the engine was created
func (e *Engine) Revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

func (e *Engine) Total() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Total(e.lines)
}

func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ItemCount(e.lines)
}
