package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrProductNotFound is returned when a product is not in the seller's
// inventory.
var ErrProductNotFound = errors.New("product not found")

// InventoryItem is a product a seller stocks.
type InventoryItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	BasePrice float64 `json:"basePrice"`
}

// Inventory is a seller's product catalog.
type Inventory struct {
	mu    sync.RWMutex
	items map[string]InventoryItem
}

// NewInventory creates an inventory holding items.
func NewInventory(items ...InventoryItem) *Inventory {
	inv := &Inventory{items: make(map[string]InventoryItem, len(items))}
	for _, item := range items {
		inv.items[item.ProductID] = item
	}
	return inv
}

// DefaultInventory returns the demo catalog.
func DefaultInventory() *Inventory {
	return NewInventory(InventoryItem{
		ProductID: "prod-001",
		Name:      "Premium API Access",
		Quantity:  1000,
		BasePrice: 100,
	})
}

// Lookup returns the item for productID.
func (inv *Inventory) Lookup(productID string) (InventoryItem, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	item, ok := inv.items[productID]
	if !ok {
		return InventoryItem{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return item, nil
}

// Put adds or replaces an item.
func (inv *Inventory) Put(item InventoryItem) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.items[item.ProductID] = item
}

// Items returns all items ordered by product id.
func (inv *Inventory) Items() []InventoryItem {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	items := make([]InventoryItem, 0, len(inv.items))
	for _, item := range inv.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}
