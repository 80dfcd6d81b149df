// internal/cart/cart.go
package cart

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrItemNotFound = errors.New("cart item not found")

// Product is the catalog projection the cart needs to create a line.
type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
}

// LineItem is one priced line of an offer. ProductID is empty for
// custom/free-text lines, which carry no equipment requirement.
type LineItem struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id,omitempty"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
}

// ItemPatch carries the fields an update may change. Nil means untouched.
type ItemPatch struct {
	Name            *string
	Quantity        *int
	UnitPrice       *decimal.Decimal
	DiscountPercent *decimal.Decimal
}

// Cart holds the ordered list of offer line items. Every mutation returns
// the new full item list immediately so callers can hand it straight to
// the conflict check without a stale read in between. The cart itself is
// not safe for concurrent use; the owning session serializes access.
type Cart struct {
	items []LineItem
}

func New() *Cart {
	return &Cart{}
}

// AddProduct appends a line for the product, or bumps the quantity when
// the product is already in the cart.
func (c *Cart) AddProduct(p Product) []LineItem {
	for i := range c.items {
		if c.items[i].ProductID != "" && c.items[i].ProductID == p.ID {
			c.items[i].Quantity++
			recompute(&c.items[i])
			return c.Items()
		}
	}

	item := LineItem{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  1,
		UnitPrice: clampMoney(p.UnitPrice),
	}
	recompute(&item)
	c.items = append(c.items, item)
	return c.Items()
}

// AddCustomLine appends a free-text line with no catalog product behind it.
func (c *Cart) AddCustomLine(name string, quantity int, unitPrice decimal.Decimal) []LineItem {
	if quantity < 1 {
		quantity = 1
	}
	item := LineItem{
		ID:        uuid.NewString(),
		Name:      name,
		Quantity:  quantity,
		UnitPrice: clampMoney(unitPrice),
	}
	recompute(&item)
	c.items = append(c.items, item)
	return c.Items()
}

// RemoveItem deletes a line by id. Clearing substitutions that referenced
// the removed line's resources is the orchestrator's job, not the cart's.
func (c *Cart) RemoveItem(id string) ([]LineItem, error) {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return c.Items(), nil
		}
	}
	return c.Items(), ErrItemNotFound
}

// UpdateItem applies a patch in place and recomputes the subtotal.
func (c *Cart) UpdateItem(id string, patch ItemPatch) ([]LineItem, error) {
	for i := range c.items {
		if c.items[i].ID != id {
			continue
		}
		item := &c.items[i]

		if patch.Name != nil && *patch.Name != "" {
			item.Name = *patch.Name
		}
		if patch.Quantity != nil {
			q := *patch.Quantity
			if q < 1 {
				q = 1
			}
			item.Quantity = q
		}
		if patch.UnitPrice != nil {
			item.UnitPrice = clampMoney(*patch.UnitPrice)
		}
		if patch.DiscountPercent != nil {
			item.DiscountPercent = clampDiscount(*patch.DiscountPercent)
		}

		recompute(item)
		return c.Items(), nil
	}
	return c.Items(), ErrItemNotFound
}

// Items returns a copy of the current line list.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int {
	return len(c.items)
}

// Total sums the line subtotals.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for i := range c.items {
		total = total.Add(c.items[i].Subtotal)
	}
	return total
}

// recompute derives the subtotal from its inputs. The subtotal is never
// stored independently of quantity, unit price and discount.
func recompute(item *LineItem) {
	qty := decimal.NewFromInt(int64(item.Quantity))
	discount := decimal.NewFromInt(1).Sub(item.DiscountPercent.Div(decimal.NewFromInt(100)))
	item.Subtotal = qty.Mul(item.UnitPrice).Mul(discount)
}

func clampMoney(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func clampDiscount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return d
}
