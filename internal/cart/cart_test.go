package cart

import (
	"testing"

	"github.com/shopspring/decimal"
)

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAddProductIncrementsExistingLine(t *testing.T) {
	c := New()
	p := Product{ID: "prod-light-rig", Name: "Light Rig", UnitPrice: money("1200.00")}

	items := c.AddProduct(p)
	if len(items) != 1 {
		t.Fatalf("expected 1 line after first add, got %d", len(items))
	}
	if items[0].Quantity != 1 {
		t.Errorf("expected quantity 1, got %d", items[0].Quantity)
	}

	items = c.AddProduct(p)
	if len(items) != 1 {
		t.Fatalf("expected second add to bump quantity, got %d lines", len(items))
	}
	if items[0].Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", items[0].Quantity)
	}
	if !items[0].Subtotal.Equal(money("2400.00")) {
		t.Errorf("expected subtotal 2400.00, got %s", items[0].Subtotal)
	}
}

func TestAddCustomLineHasNoProductID(t *testing.T) {
	c := New()
	items := c.AddCustomLine("Rigging consultation", 3, money("95.50"))

	if len(items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(items))
	}
	if items[0].ProductID != "" {
		t.Errorf("custom line must not carry a product id, got %q", items[0].ProductID)
	}
	if !items[0].Subtotal.Equal(money("286.50")) {
		t.Errorf("expected subtotal 286.50, got %s", items[0].Subtotal)
	}

	// Adding the same custom name again makes a second line, never a merge.
	items = c.AddCustomLine("Rigging consultation", 1, money("95.50"))
	if len(items) != 2 {
		t.Errorf("expected 2 lines, got %d", len(items))
	}
}

func TestSubtotalAppliesDiscount(t *testing.T) {
	c := New()
	items := c.AddProduct(Product{ID: "p1", Name: "PA", UnitPrice: money("400")})

	disc := money("25")
	items, err := c.UpdateItem(items[0].ID, ItemPatch{DiscountPercent: &disc})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !items[0].Subtotal.Equal(money("300")) {
		t.Errorf("expected subtotal 300 after 25%% discount, got %s", items[0].Subtotal)
	}
}

func TestUpdateItemClampsInputs(t *testing.T) {
	c := New()
	items := c.AddProduct(Product{ID: "p1", Name: "Truss", UnitPrice: money("80")})
	id := items[0].ID

	qty := -5
	price := money("-10")
	disc := money("150")
	items, err := c.UpdateItem(id, ItemPatch{Quantity: &qty, UnitPrice: &price, DiscountPercent: &disc})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if items[0].Quantity != 1 {
		t.Errorf("expected quantity clamped to 1, got %d", items[0].Quantity)
	}
	if !items[0].UnitPrice.Equal(decimal.Zero) {
		t.Errorf("expected unit price clamped to 0, got %s", items[0].UnitPrice)
	}
	if !items[0].DiscountPercent.Equal(money("100")) {
		t.Errorf("expected discount clamped to 100, got %s", items[0].DiscountPercent)
	}
	if !items[0].Subtotal.Equal(decimal.Zero) {
		t.Errorf("expected zero subtotal, got %s", items[0].Subtotal)
	}
}

func TestUpdateUnknownItem(t *testing.T) {
	c := New()
	name := "renamed"
	if _, err := c.UpdateItem("nope", ItemPatch{Name: &name}); err != ErrItemNotFound {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestRemoveItem(t *testing.T) {
	c := New()
	items := c.AddProduct(Product{ID: "p1", Name: "A", UnitPrice: money("10")})
	c.AddProduct(Product{ID: "p2", Name: "B", UnitPrice: money("20")})

	remaining, err := c.RemoveItem(items[0].ID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ProductID != "p2" {
		t.Errorf("expected only p2 left, got %+v", remaining)
	}

	if _, err := c.RemoveItem("missing"); err != ErrItemNotFound {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestTotalSumsSubtotals(t *testing.T) {
	c := New()
	c.AddProduct(Product{ID: "p1", Name: "A", UnitPrice: money("10.50")})
	c.AddCustomLine("Crew", 2, money("100")) // 200

	if got := c.Total(); !got.Equal(money("210.50")) {
		t.Errorf("expected total 210.50, got %s", got)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 lines, got %d", c.Len())
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	c := New()
	c.AddProduct(Product{ID: "p1", Name: "A", UnitPrice: money("10")})

	items := c.Items()
	items[0].Quantity = 99

	if c.Items()[0].Quantity != 1 {
		t.Error("mutating the returned slice must not affect the cart")
	}
}
