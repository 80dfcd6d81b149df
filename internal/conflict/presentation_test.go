package conflict

import "testing"

// mapSubs is a minimal SubstitutionView for presentation tests.
type mapSubs struct {
	drafts  map[ResourceRef]draftState
	applied map[ResourceRef]draftState
}

type draftState struct {
	to  ResourceRef
	qty int
}

func (m mapSubs) Draft(key ResourceRef) (ResourceRef, int, bool) {
	s, ok := m.drafts[key]
	return s.to, s.qty, ok
}

func (m mapSubs) Applied(key ResourceRef) (ResourceRef, int, bool) {
	s, ok := m.applied[key]
	return s.to, s.qty, ok
}

func TestDeriveRowViewQuantityPriority(t *testing.T) {
	trussA := ResourceRef{Kind: KindItem, ID: "truss-a"}
	trussB := ResourceRef{Kind: KindItem, ID: "truss-b"}
	row := ConflictRow{Resource: trussA, ShortageQty: 3}

	// No draft: quantity falls back to the shortage.
	view := DeriveRowView(row, mapSubs{})
	if view.EffectiveQty != 3 {
		t.Errorf("expected shortage quantity 3, got %d", view.EffectiveQty)
	}

	// Draft with explicit quantity wins over the shortage.
	view = DeriveRowView(row, mapSubs{
		drafts: map[ResourceRef]draftState{trussA: {to: trussB, qty: 5}},
	})
	if view.EffectiveQty != 5 {
		t.Errorf("expected draft quantity 5, got %d", view.EffectiveQty)
	}
	if view.Selected == nil || *view.Selected != trussB {
		t.Errorf("expected selected trussB, got %v", view.Selected)
	}

	// Draft with unset quantity keeps the shortage.
	view = DeriveRowView(row, mapSubs{
		drafts: map[ResourceRef]draftState{trussA: {to: trussB}},
	})
	if view.EffectiveQty != 3 {
		t.Errorf("expected shortage quantity 3 for unset draft, got %d", view.EffectiveQty)
	}

	// Error rows have no shortage: quantity bottoms out at 1.
	view = DeriveRowView(ConflictRow{Resource: trussA}, mapSubs{})
	if view.EffectiveQty != 1 {
		t.Errorf("expected floor quantity 1, got %d", view.EffectiveQty)
	}
}

func TestDeriveRowViewMarksAlternatives(t *testing.T) {
	trussA := ResourceRef{Kind: KindItem, ID: "truss-a"}
	trussB := ResourceRef{Kind: KindItem, ID: "truss-b"}
	trussC := ResourceRef{Kind: KindItem, ID: "truss-c"}
	row := ConflictRow{
		Resource:    trussA,
		ShortageQty: 2,
		Alternatives: []AlternativeResource{
			{Resource: trussB, Name: "Truss B", AvailableQty: 10},
			{Resource: trussC, Name: "Truss C", AvailableQty: 4},
		},
	}

	view := DeriveRowView(row, mapSubs{
		drafts:  map[ResourceRef]draftState{trussA: {to: trussC, qty: 2}},
		applied: map[ResourceRef]draftState{trussA: {to: trussB, qty: 2}},
	})

	if !view.Alternatives[0].Applied || view.Alternatives[0].Picked {
		t.Errorf("trussB should be applied only: %+v", view.Alternatives[0])
	}
	if !view.Alternatives[1].Picked || view.Alternatives[1].Applied {
		t.Errorf("trussC should be picked only: %+v", view.Alternatives[1])
	}
	if view.Applied == nil || *view.Applied != trussB {
		t.Errorf("expected applied trussB, got %v", view.Applied)
	}
	if view.AppliedQty != 2 {
		t.Errorf("expected applied qty 2, got %d", view.AppliedQty)
	}
}

func TestDeriveRowViewsCoversAllRows(t *testing.T) {
	rows := []ConflictRow{
		{Resource: ResourceRef{Kind: KindItem, ID: "a"}, ShortageQty: 1},
		{Resource: ResourceRef{Kind: KindKit, ID: "b"}, ShortageQty: 2},
	}
	views := DeriveRowViews(rows, mapSubs{})
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[1].EffectiveQty != 2 {
		t.Errorf("expected second view quantity 2, got %d", views[1].EffectiveQty)
	}
}
