package cart

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLine(id int64, price string, quantity int) Line {
	return Line{ID: id, Name: "plant", Price: decimal.RequireFromString(price), Category: "Indoor Plants", Stock: 10, Quantity: quantity}
}

// actionGen produces add, remove and set_quantity actions over a small id
// space so sequences hit existing lines often.
func actionGen() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 2),
		gen.Int64Range(1, 5),
		gen.IntRange(-2, 6),
		gen.Int64Range(0, 9999),
	).Map(func(values []interface{}) Action {
		id := values[1].(int64)
		qty := values[2].(int)
		switch values[0].(int) {
		case 0:
			return Add(Line{ID: id, Name: "plant", Price: decimal.New(values[3].(int64), -2), Quantity: qty})
		case 1:
			return Remove(id)
		default:
			return SetQuantity(id, qty)
		}
	})
}

func sameLines(a, b []Line) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Quantity != y.Quantity || !x.Price.Equal(y.Price) ||
			x.Name != y.Name || x.Description != y.Description || x.Category != y.Category ||
			x.Image != y.Image || x.Stock != y.Stock {
			return false
		}
	}
	return true
}

// Feature: plant-store, Property 21: Item count equals the sum of final quantities
func TestProperty_ItemCountMatchesQuantities(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no zero lines, no duplicate ids, count never negative", prop.ForAll(
		func(actions []Action) bool {
			var lines []Line
			for _, a := range actions {
				lines = Reduce(lines, a)
			}

			seen := make(map[int64]bool)
			sum := 0
			for _, l := range lines {
				if l.Quantity < 1 || seen[l.ID] {
					return false
				}
				seen[l.ID] = true
				sum += l.Quantity
			}
			return ItemCount(lines) == sum && ItemCount(lines) >= 0
		},
		gen.SliceOf(actionGen()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: plant-store, Property 22: Adding a product twice merges into one line
func TestProperty_AddMergesLines(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("add(p,a) then add(p,b) yields one line with a+b", prop.ForAll(
		func(id int64, a, b int) bool {
			lines := Reduce(nil, Add(testLine(id, "9.99", a)))
			lines = Reduce(lines, Add(testLine(id, "9.99", b)))
			return len(lines) == 1 && lines[0].Quantity == a+b
		},
		gen.Int64Range(1, 1000),
		gen.IntRange(1, 50),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: plant-store, Property 23: Setting quantity to zero removes the line from the total
func TestProperty_SetQuantityZeroRemoves(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("set_quantity(id, q<=0) removes id", prop.ForAll(
		func(qty int, zero int) bool {
			lines := []Line{testLine(1, "10.00", qty), testLine(2, "5.00", 1)}
			lines = Reduce(lines, SetQuantity(1, zero))
			return len(lines) == 1 && lines[0].ID == 2 && Total(lines).Equal(decimal.NewFromInt(5))
		},
		gen.IntRange(1, 20),
		gen.IntRange(-5, 0),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: plant-store, Property 24: Clear empties the cart
func TestProperty_ClearEmpties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("clear leaves total 0 and count 0", prop.ForAll(
		func(actions []Action) bool {
			var lines []Line
			for _, a := range actions {
				lines = Reduce(lines, a)
			}
			lines = Reduce(lines, Clear())
			return lines != nil && len(lines) == 0 && Total(lines).IsZero() && ItemCount(lines) == 0
		},
		gen.SliceOf(actionGen()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: plant-store, Property 25: Reduce never modifies its input
func TestProperty_ReduceIsPure(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("input lines are unchanged after any action", prop.ForAll(
		func(setup []Action, action Action) bool {
			var lines []Line
			for _, a := range setup {
				lines = Reduce(lines, a)
			}
			before := clone(lines)
			Reduce(lines, action)
			return sameLines(before, lines)
		},
		gen.SliceOf(actionGen()),
		actionGen(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestReduce_TotalOfKnownCart(t *testing.T) {
	lines := Reduce(nil, Add(testLine(1, "10", 2)))
	lines = Reduce(lines, Add(testLine(2, "5", 1)))

	assert.True(t, Total(lines).Equal(decimal.NewFromInt(25)), "got %s", Total(lines))
	assert.Equal(t, 3, ItemCount(lines))
}

func TestReduce_AddTreatsSmallQuantityAsOne(t *testing.T) {
	lines := Reduce(nil, Add(testLine(7, "3.50", 0)))
	lines = Reduce(lines, Add(testLine(7, "3.50", -4)))

	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestReduce_AbsentProductsAreNoOps(t *testing.T) {
	lines := []Line{testLine(1, "10", 2)}

	assert.True(t, sameLines(lines, Reduce(lines, Remove(99))))
	assert.True(t, sameLines(lines, Reduce(lines, SetQuantity(99, 4))))
	assert.True(t, sameLines(lines, Reduce(lines, Adjust([]Adjustment{{ProductID: 99, Quantity: 1}}))))
}

func TestReduce_AdjustOverwritesQuantities(t *testing.T) {
	lines := []Line{testLine(1, "10", 2), testLine(2, "5", 1), testLine(3, "4", 6)}

	lines = Reduce(lines, Adjust([]Adjustment{
		{ProductID: 1, Quantity: 1},
		{ProductID: 3, Quantity: 0},
	}))

	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].ID)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, int64(2), lines[1].ID)
	assert.Equal(t, 1, lines[1].Quantity)
}

func TestReduce_LoadSanitizesStoredLines(t *testing.T) {
	lines := Reduce([]Line{testLine(9, "1", 1)}, Load([]Line{
		testLine(1, "10", 2),
		testLine(2, "5", 0),
		testLine(1, "10", 3),
		testLine(3, "4", -1),
	}))

	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].ID)
	assert.Equal(t, 5, lines[0].Quantity)
}

func TestReduce_PreservesInsertionOrder(t *testing.T) {
	var lines []Line
	for _, id := range []int64{3, 1, 2} {
		lines = Reduce(lines, Add(testLine(id, "1", 1)))
	}
	lines = Reduce(lines, Add(testLine(1, "1", 1)))
	lines = Reduce(lines, Remove(3))

	require.Len(t, lines, 2)
	assert.Equal(t, int64(1), lines[0].ID)
	assert.Equal(t, int64(2), lines[1].ID)
}

func TestReduce_AddTakesNewerProductSnapshot(t *testing.T) {
	lines := Reduce(nil, Add(testLine(1, "10", 1)))
	lines = Reduce(lines, Add(testLine(1, "12", 1)))

	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, lines[0].Price.Equal(decimal.NewFromInt(12)), "got %s", lines[0].Price)
	assert.True(t, Total(lines).Equal(decimal.NewFromInt(24)))
}

func TestReduce_RefreshKeepsQuantities(t *testing.T) {
	lines := []Line{testLine(1, "10", 2), testLine(2, "5", 3)}

	fresh := testLine(1, "12.50", 0)
	fresh.Name = "Monstera Deliciosa XL"
	fresh.Stock = 4
	lines = Reduce(lines, Refresh([]Line{fresh, testLine(99, "1", 0)}))

	require.Len(t, lines, 2)
	assert.Equal(t, "Monstera Deliciosa XL", lines[0].Name)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 4, lines[0].Stock)
	assert.True(t, Total(lines).Equal(decimal.NewFromInt(40)), "got %s", Total(lines))
}
