package catalog

import (
	"github.com/shopspring/decimal"

	"opsdesk/internal/conflict"
)

// DemoCatalog mirrors the demo fleet seeded by the data package. Used
// when no catalog.json is configured.
func DemoCatalog() CatalogData {
	return CatalogData{
		Products: []Product{
			{
				ID:        "prod-stage-truss",
				Name:      "Stage Truss 3m Segment",
				UnitPrice: decimal.NewFromInt(45),
				Available: true,
				Requirements: []Requirement{
					{Resource: conflict.ResourceRef{Kind: conflict.KindItem, ID: "truss-a"}, QtyPerUnit: 1},
				},
			},
			{
				ID:        "prod-light-rig",
				Name:      "Light Rig Package",
				UnitPrice: decimal.NewFromInt(320),
				Available: true,
				Requirements: []Requirement{
					{Resource: conflict.ResourceRef{Kind: conflict.KindItem, ID: "moving-head"}, QtyPerUnit: 4},
					{Resource: conflict.ResourceRef{Kind: conflict.KindItem, ID: "led-wash"}, QtyPerUnit: 6},
				},
			},
			{
				ID:        "prod-pa-large",
				Name:      "PA System Large",
				UnitPrice: decimal.NewFromInt(890),
				Available: true,
				Requirements: []Requirement{
					{Resource: conflict.ResourceRef{Kind: conflict.KindKit, ID: "pa-large"}, QtyPerUnit: 1},
				},
			},
			{
				ID:        "prod-stagehand-day",
				Name:      "Stagehand (day rate)",
				UnitPrice: decimal.NewFromInt(280),
				Available: true,
			},
		},
	}
}
