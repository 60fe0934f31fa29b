package cart

// ActionKind is the closed set of cart transitions
type ActionKind int

const (
	ActionAdd ActionKind = iota
	ActionRemove
	ActionSetQuantity
	ActionClear
	ActionLoad
	ActionAdjust
	ActionRefresh
)

func (k ActionKind) String() string {
	switch k {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionSetQuantity:
		return "set_quantity"
	case ActionClear:
		return "clear"
	case ActionLoad:
		return "load"
	case ActionAdjust:
		return "adjust"
	case ActionRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Action is a tagged cart transition. Only the fields relevant to Kind are read.
type Action struct {
	Kind        ActionKind
	Line        Line         // add
	ProductID   int64        // remove, set_quantity
	Quantity    int          // set_quantity
	Lines       []Line       // load, refresh
	Adjustments []Adjustment // adjust
}

func Add(line Line) Action { return Action{Kind: ActionAdd, Line: line} }
func Remove(productID int64) Action { return Action{Kind: ActionRemove, ProductID: productID} }
func Clear() Action { return Action{Kind: ActionClear} }
func Load(lines []Line) Action { return Action{Kind: ActionLoad, Lines: lines} }
func Adjust(adj []Adjustment) Action { return Action{Kind: ActionAdjust, Adjustments: adj} }
func Refresh(fresh []Line) Action { return Action{Kind: ActionRefresh, Lines: fresh} }
func SetQuantity(productID int64, quantity int) Action {
	return Action{Kind: ActionSetQuantity, ProductID: productID, Quantity: quantity}
}

// Reduce applies action to lines and returns the resulting lines. The input
// slice is never modified. The result never contains a line with quantity
// below 1 or two lines for the same product.
func Reduce(lines []Line, action Action) []Line {
	switch action.Kind {
	case ActionAdd:
		line := action.Line
		if line.Quantity < 1 {
			line.Quantity = 1
		}
		next := clone(lines)
		if i := indexOf(next, line.ID); i >= 0 {
			// the newer snapshot wins so re-adding picks up a price change
			next[i] = withQuantity(line, next[i].Quantity+line.Quantity)
			return next
		}
		return append(next, line)

	case ActionRemove:
		i := indexOf(lines, action.ProductID)
		if i < 0 {
			return clone(lines)
		}
		next := make([]Line, 0, len(lines)-1)
		next = append(next, lines[:i]...)
		return append(next, lines[i+1:]...)

	case ActionSetQuantity:
		i := indexOf(lines, action.ProductID)
		if i < 0 {
			return clone(lines)
		}
		if action.Quantity <= 0 {
			return Reduce(lines, Remove(action.ProductID))
		}
		next := clone(lines)
		next[i].Quantity = action.Quantity
		return next

	case ActionClear:
		return []Line{}

	case ActionLoad:
		// stored data is untrusted: drop empty lines and merge duplicates
		next := []Line{}
		for _, l := range action.Lines {
			if l.Quantity < 1 {
				continue
			}
			if i := indexOf(next, l.ID); i >= 0 {
				next[i].Quantity += l.Quantity
				continue
			}
			next = append(next, l)
		}
		return next

	case ActionRefresh:
		next := clone(lines)
		for _, fresh := range action.Lines {
			if i := indexOf(next, fresh.ID); i >= 0 {
				next[i] = withQuantity(fresh, next[i].Quantity)
			}
		}
		return next

	case ActionAdjust:
		next := clone(lines)
		for _, adj := range action.Adjustments {
			next = Reduce(next, SetQuantity(adj.ProductID, adj.Quantity))
		}
		return next
	}

	return clone(lines)
}

func withQuantity(line Line, quantity int) Line {
	line.Quantity = quantity
	return line
}

func indexOf(lines []Line, productID int64) int {
	for i := range lines {
		if lines[i].ID == productID {
			return i
		}
	}
	return -1
}

func clone(lines []Line) []Line {
	next := make([]Line, len(lines))
	copy(next, lines)
	return next
}
