package data

import (
	"time"

	"opsdesk/internal/logger"
)

// SeedDemoData loads a small equipment fleet, a couple of clients and a
// few competing reservations so a fresh checkout can exercise the
// conflict flow end to end. Inserts are idempotent for clients and
// resources; reservations are only seeded into an empty table.
func SeedDemoData() error {
	clients := NewClientRepository()
	reservations := NewReservationRepository()

	for _, c := range []Client{
		{ID: "client-aurora", Name: "Aurora Festivals GmbH", Email: "booking@aurora-festivals.example", Company: "Aurora Festivals"},
		{ID: "client-nordlicht", Name: "Nordlicht Congress", Email: "events@nordlicht.example", Company: "Nordlicht Congress Center"},
	} {
		if err := clients.Insert(c); err != nil {
			return err
		}
	}

	for _, res := range []Resource{
		{Kind: "item", ID: "truss-a", Name: "Stage Truss A (3m)", TotalQty: 8, AlternativeGroup: "truss-3m"},
		{Kind: "item", ID: "truss-b", Name: "Stage Truss B (3m)", TotalQty: 10, AlternativeGroup: "truss-3m"},
		{Kind: "item", ID: "moving-head", Name: "Moving Head Spot", TotalQty: 24, AlternativeGroup: "spot"},
		{Kind: "item", ID: "led-wash", Name: "LED Wash Light", TotalQty: 30, AlternativeGroup: "spot"},
		{Kind: "kit", ID: "pa-small", Name: "PA Kit Small", TotalQty: 4, AlternativeGroup: "pa"},
		{Kind: "kit", ID: "pa-large", Name: "PA Kit Large", TotalQty: 2, AlternativeGroup: "pa"},
	} {
		if err := reservations.InsertResource(res); err != nil {
			return err
		}
	}

	var count int
	if err := QueryRowDB(`SELECT COUNT(*) FROM reservations`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		logger.LogInfo("Demo reservations already present, skipping reservation seed")
		return nil
	}

	base := time.Now().Truncate(time.Hour).Add(14 * 24 * time.Hour)
	for _, r := range []Reservation{
		{ResourceKind: "item", ResourceID: "truss-a", Qty: 5, WindowStart: base, WindowEnd: base.Add(48 * time.Hour), EventName: "Harbor Sound Open Air"},
		{ResourceKind: "kit", ResourceID: "pa-large", Qty: 1, WindowStart: base.Add(-24 * time.Hour), WindowEnd: base.Add(24 * time.Hour), EventName: "Trade Fair Opening"},
	} {
		if err := reservations.InsertReservation(r); err != nil {
			return err
		}
	}

	logger.LogInfo("Seeded demo clients, resources and reservations")
	return nil
}
