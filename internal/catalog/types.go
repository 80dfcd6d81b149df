package catalog

import (
	"github.com/shopspring/decimal"

	"opsdesk/internal/conflict"
)

// Requirement links a product to the physical resource it consumes,
// per unit sold.
type Requirement struct {
	Resource   conflict.ResourceRef `json:"resource"`
	QtyPerUnit int                  `json:"qty_per_unit"`
}

// Product is a sellable catalog entry. Requirements may be empty for
// purely service products (labor, travel) that never reserve equipment.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Available    bool            `json:"available"`
	Requirements []Requirement   `json:"requirements,omitempty"`
}

// CatalogData is the on-disk shape of the catalog file.
type CatalogData struct {
	Products []Product `json:"products"`
}
