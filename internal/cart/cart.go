package cart

import (
	"sync"

	"nexuspos/backend/internal/domain"
)

// Cart is the in-progress sale. Lines keep insertion order and there is at
// most one line per product or service id.
type Cart struct {
	mu    sync.RWMutex
	lines []domain.LineItem
}

func New() *Cart {
	return &Cart{lines: make([]domain.LineItem, 0, 8)}
}

func (c *Cart) AddProduct(product domain.Product) error {
	if product.ID == "" {
		return domain.Invalid("product_id", "required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(product.ID); idx >= 0 {
		line := &c.lines[idx]
		if line.Kind != domain.LineKindProduct {
			return domain.Invalid("product_id", "id already used by a service line")
		}
		if line.Quantity+1 > line.Product.Stock {
			return domain.ErrInsufficientStock
		}
		line.Quantity++
		return nil
	}

	if product.Stock < 1 {
		return domain.ErrInsufficientStock
	}
	c.lines = append(c.lines, domain.NewProductLine(product, 1))
	return nil
}

// AddService puts a service line in the cart. Re-adding an existing service
// replaces its amount.
func (c *Cart) AddService(service domain.Service, amountCents int64) error {
	if service.ID == "" {
		return domain.Invalid("service_id", "required")
	}
	if amountCents <= 0 {
		return domain.Invalid("amount_cents", "must be greater than zero")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := domain.NewServiceLine(service, amountCents)
	if idx := c.indexOf(service.ID); idx >= 0 {
		if c.lines[idx].Kind != domain.LineKindService {
			return domain.Invalid("service_id", "id already used by a product line")
		}
		c.lines[idx] = line
		return nil
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *Cart) UpdateQuantity(productID string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return domain.ErrLineNotFound
	}
	if qty <= 0 {
		c.removeAt(idx)
		return nil
	}
	line := &c.lines[idx]
	if line.Kind != domain.LineKindProduct {
		return domain.Invalid("quantity", "service lines have no quantity")
	}
	if qty > line.Product.Stock {
		return domain.ErrInsufficientStock
	}
	line.Quantity = qty
	return nil
}

// UpdateCustomPrice sets a per-line price override. A nil or non-positive
// price clears it.
func (c *Cart) UpdateCustomPrice(productID string, priceCents *int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return domain.ErrLineNotFound
	}
	line := &c.lines[idx]
	if line.Kind != domain.LineKindProduct {
		return domain.Invalid("custom_price_cents", "only product lines accept a custom price")
	}
	if priceCents == nil || *priceCents <= 0 {
		line.CustomPriceCents = nil
		return nil
	}
	price := *priceCents
	line.CustomPriceCents = &price
	return nil
}

// UpdateServiceAmount sets the amount charged for a service line; zero or
// less drops the line.
func (c *Cart) UpdateServiceAmount(serviceID string, amountCents int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(serviceID)
	if idx < 0 {
		return domain.ErrLineNotFound
	}
	if c.lines[idx].Kind != domain.LineKindService {
		return domain.Invalid("amount_cents", "only service lines carry an amount")
	}
	if amountCents <= 0 {
		c.removeAt(idx)
		return nil
	}
	c.lines[idx].AmountChargedCents = amountCents
	return nil
}

func (c *Cart) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(id); idx >= 0 {
		c.removeAt(idx)
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = c.lines[:0]
}

// Checkout passes a copy of the lines to settle while holding the cart lock
// and empties the cart only when settle succeeds. Edits from other callers
// wait until it returns, so nothing added meanwhile is dropped. settle must
// not call back into the cart.
func (c *Cart) Checkout(settle func(lines []domain.LineItem) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := settle(domain.CloneLines(c.lines)); err != nil {
		return err
	}
	c.lines = c.lines[:0]
	return nil
}

// Lines returns a deep copy of the current lines.
func (c *Cart) Lines() []domain.LineItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CloneLines(c.lines)
}

func (c *Cart) Line(id string) (domain.LineItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return domain.LineItem{}, false
	}
	return c.lines[idx].Clone(), true
}

func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines)
}

func (c *Cart) indexOf(id string) int {
	for i, line := range c.lines {
		if line.ItemID() == id {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}
