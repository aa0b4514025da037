// Package orders holds the read-only order reference set. The list is
// populated externally (the vendor appends approved orders to orders.json)
// and the core only performs membership checks against it.
package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Order is one approved purchase.
type Order struct {
	OrderID string `json:"order_id"`
}

// Set is an immutable collection of approved order ids.
type Set struct {
	ids map[string]struct{}
}

// NewSet builds a Set from a slice of orders.
func NewSet(list []Order) *Set {
	ids := make(map[string]struct{}, len(list))
	for _, o := range list {
		ids[o.OrderID] = struct{}{}
	}
	return &Set{ids: ids}
}

// Load reads the order list from a JSON file. A missing file yields an empty
// set: the service is usable before the first order is approved.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewSet(nil), nil
		}
		return nil, fmt.Errorf("read orders: %w", err)
	}
	var list []Order
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return NewSet(list), nil
}

// Contains reports whether orderID is in the reference set. Exact string
// match; ids are opaque.
func (s *Set) Contains(orderID string) bool {
	_, ok := s.ids[orderID]
	return ok
}

// Len reports the number of approved orders.
func (s *Set) Len() int {
	return len(s.ids)
}
