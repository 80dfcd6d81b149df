// internal/conflict/presentation.go
package conflict

// SubstitutionView is the read-only slice of ledger state the presentation
// layer needs. The substitution package's Ledger satisfies it.
type SubstitutionView interface {
	Draft(key ResourceRef) (chosen ResourceRef, qty int, ok bool)
	Applied(key ResourceRef) (to ResourceRef, qty int, ok bool)
}

// AlternativeView decorates an oracle-suggested alternative with the
// operator's current picks.
type AlternativeView struct {
	Alternative AlternativeResource `json:"alternative"`
	Picked      bool                `json:"picked"`
	Applied     bool                `json:"applied"`
}

// RowView is the per-row UI state: which alternative is tentatively
// picked, which substitution is already applied, and the quantity shown
// in the quantity field.
type RowView struct {
	Row          ConflictRow       `json:"row"`
	Selected     *ResourceRef      `json:"selected,omitempty"`
	Applied      *ResourceRef      `json:"applied,omitempty"`
	AppliedQty   int               `json:"applied_qty,omitempty"`
	EffectiveQty int               `json:"effective_qty"`
	Alternatives []AlternativeView `json:"alternatives"`
}

// DeriveRowView computes the view for one conflict row. It is a pure
// function over the row and ledger state; it never writes to either.
//
// Displayed quantity priority: draft quantity, then the row's shortage,
// then 1.
func DeriveRowView(row ConflictRow, subs SubstitutionView) RowView {
	view := RowView{
		Row:          row,
		EffectiveQty: 1,
	}
	if row.ShortageQty > 0 {
		view.EffectiveQty = row.ShortageQty
	}

	chosen, draftQty, hasDraft := subs.Draft(row.Resource)
	if hasDraft {
		view.Selected = &chosen
		if draftQty > 0 {
			view.EffectiveQty = draftQty
		}
	}

	appliedTo, appliedQty, hasApplied := subs.Applied(row.Resource)
	if hasApplied {
		view.Applied = &appliedTo
		view.AppliedQty = appliedQty
	}

	for _, alt := range row.Alternatives {
		view.Alternatives = append(view.Alternatives, AlternativeView{
			Alternative: alt,
			Picked:      hasDraft && chosen == alt.Resource,
			Applied:     hasApplied && appliedTo == alt.Resource,
		})
	}
	return view
}

// DeriveRowViews maps DeriveRowView over a full row set.
func DeriveRowViews(rows []ConflictRow, subs SubstitutionView) []RowView {
	views := make([]RowView, 0, len(rows))
	for _, row := range rows {
		views = append(views, DeriveRowView(row, subs))
	}
	return views
}
