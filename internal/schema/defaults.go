package schema

import (
	"bytes"
	_ "embed"
)

//go:embed defaults/orders.json
var defaultOrders []byte

// DefaultOrdersJSON returns the bundled order-data definition.
func DefaultOrdersJSON() []byte {
	return bytes.Clone(defaultOrders)
}

// DefaultOrders returns the bundled order-data schema.
func DefaultOrders() (*Model, error) {
	return Load(bytes.NewReader(defaultOrders), FormatJSON)
}
