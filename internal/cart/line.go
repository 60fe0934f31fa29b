package cart

import (
	"plant-store/internal/domain"

	"github.com/shopspring/decimal"
)

// Line is one product in the cart. Product fields are copied when the
// product is added so the cart renders without another catalog fetch.
type Line struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Stock       int             `json:"stock"`
	Quantity    int             `json:"quantity"`
}

// LineFromProduct snapshots a catalog product into a cart line
func LineFromProduct(p domain.Product, quantity int) Line {
	return Line{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Image:       p.Image,
		Stock:       p.Stock,
		Quantity:    quantity,
	}
}

// Subtotal returns price × quantity for the line
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Adjustment overwrites the quantity of one line, typically from a
// server-reported stock conflict. Quantity 0 removes the line.
type Adjustment struct {
	ProductID int64
	Quantity  int
}

// Total sums the subtotals of lines
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount sums the quantities of lines
func ItemCount(lines []Line) int {
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}
