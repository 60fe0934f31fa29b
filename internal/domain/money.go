package domain

import "github.com/shopspring/decimal"

func init() {
	// Prices travel as JSON numbers, matching the storefront wire format.
	decimal.MarshalJSONWithoutQuotes = true
}
