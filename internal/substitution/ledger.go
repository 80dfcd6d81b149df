// internal/substitution/ledger.go
package substitution

import (
	"errors"
	"sort"

	"opsdesk/internal/conflict"
)

var (
	ErrNoDraft       = errors.New("no draft selection for resource")
	ErrEmptyResource = errors.New("substitution resource must not be empty")
)

// draftEntry is a tentative, per-conflict-row pick. Qty 0 means the
// operator has not touched the quantity yet.
type draftEntry struct {
	Chosen conflict.ResourceRef
	Qty    int
}

// committedEntry is an applied replacement. Its quantity stays pinned
// until the operator explicitly re-edits it; later checks never silently
// re-derive it from a changed shortage.
type committedEntry struct {
	To  conflict.ResourceRef
	Qty int
}

// Committed is the serializable form handed to the offer on submission.
type Committed struct {
	From conflict.ResourceRef `json:"from_resource"`
	To   conflict.ResourceRef `json:"to_resource"`
	Qty  int                  `json:"qty"`
}

// Ledger holds the two layers of replacement state: draft selections the
// operator is still deciding on, and committed substitutions that drive
// conflict recomputation. Both layers hold at most one entry per replaced
// resource. Keys are typed ResourceRefs, so ids containing a separator
// character cannot collide.
//
// The ledger is not safe for concurrent use; the owning session
// serializes access.
type Ledger struct {
	drafts    map[conflict.ResourceRef]draftEntry
	committed map[conflict.ResourceRef]committedEntry
}

func NewLedger() *Ledger {
	return &Ledger{
		drafts:    make(map[conflict.ResourceRef]draftEntry),
		committed: make(map[conflict.ResourceRef]committedEntry),
	}
}

// SelectAlternative toggles the draft pick for a resource. Selecting the
// chosen resource a second time clears the draft; selecting a different
// resource replaces it. Selection never triggers a conflict recheck —
// only Commit may do that.
func (l *Ledger) SelectAlternative(key, chosen conflict.ResourceRef, qty int) error {
	if key.IsZero() || chosen.IsZero() {
		return ErrEmptyResource
	}
	if current, ok := l.drafts[key]; ok && current.Chosen == chosen {
		delete(l.drafts, key)
		return nil
	}
	if qty < 0 {
		qty = 0
	}
	l.drafts[key] = draftEntry{Chosen: chosen, Qty: qty}
	return nil
}

// AdjustDraftQuantity sets the draft quantity, clamped to at least 1.
func (l *Ledger) AdjustDraftQuantity(key conflict.ResourceRef, qty int) error {
	entry, ok := l.drafts[key]
	if !ok {
		return ErrNoDraft
	}
	if qty < 1 {
		qty = 1
	}
	entry.Qty = qty
	l.drafts[key] = entry
	return nil
}

// Commit promotes the draft for key into a committed substitution and
// clears the draft. When the draft quantity was never set it defaults to
// the row's shortage, and to 1 when no shortage is known. Re-committing a
// key replaces the prior committed entry, never duplicates it.
func (l *Ledger) Commit(key conflict.ResourceRef, shortageQty int) error {
	draft, ok := l.drafts[key]
	if !ok {
		return ErrNoDraft
	}

	qty := draft.Qty
	if qty < 1 {
		qty = shortageQty
	}
	if qty < 1 {
		qty = 1
	}

	l.committed[key] = committedEntry{To: draft.Chosen, Qty: qty}
	delete(l.drafts, key)
	return nil
}

// AdjustCommittedQuantity is the explicit re-edit of a pinned quantity.
func (l *Ledger) AdjustCommittedQuantity(key conflict.ResourceRef, qty int) error {
	entry, ok := l.committed[key]
	if !ok {
		return ErrNoDraft
	}
	if qty < 1 {
		qty = 1
	}
	entry.Qty = qty
	l.committed[key] = entry
	return nil
}

// ClearDraft drops the tentative pick for a resource, if any.
func (l *Ledger) ClearDraft(key conflict.ResourceRef) {
	delete(l.drafts, key)
}

// Remove drops both layers for a resource. The orchestrator calls this
// when the last cart line referencing the resource is removed.
func (l *Ledger) Remove(key conflict.ResourceRef) {
	delete(l.drafts, key)
	delete(l.committed, key)
}

// Draft reports the tentative pick for a resource.
func (l *Ledger) Draft(key conflict.ResourceRef) (chosen conflict.ResourceRef, qty int, ok bool) {
	entry, ok := l.drafts[key]
	if !ok {
		return conflict.ResourceRef{}, 0, false
	}
	return entry.Chosen, entry.Qty, true
}

// Applied reports the committed replacement for a resource.
func (l *Ledger) Applied(key conflict.ResourceRef) (to conflict.ResourceRef, qty int, ok bool) {
	entry, ok := l.committed[key]
	if !ok {
		return conflict.ResourceRef{}, 0, false
	}
	return entry.To, entry.Qty, true
}

// CommittedList returns the committed substitutions in stable key order,
// the form handed to the offer on submission.
func (l *Ledger) CommittedList() []Committed {
	out := make([]Committed, 0, len(l.committed))
	for from, entry := range l.committed {
		out = append(out, Committed{From: from, To: entry.To, Qty: entry.Qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].From.Key() < out[j].From.Key()
	})
	return out
}

// EffectiveSubstitutions merges committed substitutions with still-open
// drafts for a single conflict check. Draft values take precedence for
// the request only and are never persisted as committed. A draft with an
// unset quantity borrows the row's current shortage (falling back to 1).
func (l *Ledger) EffectiveSubstitutions(shortages map[conflict.ResourceRef]int) []conflict.Substitution {
	merged := make(map[conflict.ResourceRef]conflict.Substitution, len(l.committed)+len(l.drafts))

	for from, entry := range l.committed {
		merged[from] = conflict.Substitution{From: from, To: entry.To, Qty: entry.Qty}
	}
	for from, draft := range l.drafts {
		qty := draft.Qty
		if qty < 1 {
			qty = shortages[from]
		}
		if qty < 1 {
			qty = 1
		}
		merged[from] = conflict.Substitution{From: from, To: draft.Chosen, Qty: qty}
	}

	out := make([]conflict.Substitution, 0, len(merged))
	for _, sub := range merged {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].From.Key() < out[j].From.Key()
	})
	return out
}

// Keys returns every resource with draft or committed state, in stable
// order. The orchestrator uses it to drop substitutions whose resource is
// no longer demanded by the cart.
func (l *Ledger) Keys() []conflict.ResourceRef {
	seen := make(map[conflict.ResourceRef]bool, len(l.drafts)+len(l.committed))
	for key := range l.drafts {
		seen[key] = true
	}
	for key := range l.committed {
		seen[key] = true
	}
	out := make([]conflict.ResourceRef, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// HasCommitted reports whether any substitution has been applied yet.
func (l *Ledger) HasCommitted() bool {
	return len(l.committed) > 0
}
