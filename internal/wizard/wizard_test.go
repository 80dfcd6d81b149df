package wizard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"opsdesk/internal/cart"
	"opsdesk/internal/catalog"
	"opsdesk/internal/conflict"
	"opsdesk/internal/data"
	"opsdesk/internal/substitution"
)

var (
	trussA = conflict.ResourceRef{Kind: conflict.KindItem, ID: "truss-a"}
	trussB = conflict.ResourceRef{Kind: conflict.KindItem, ID: "truss-b"}
)

// memOracle computes shortages from a fixed free-quantity map. Unknown
// resources have zero free units.
type memOracle struct {
	mu           sync.Mutex
	cat          *catalog.Service
	free         map[conflict.ResourceRef]int
	alternatives map[conflict.ResourceRef][]conflict.AlternativeResource
	fail         error
	calls        int
}

func (o *memOracle) CheckAvailability(ctx context.Context, req conflict.CheckRequest) ([]conflict.ConflictRow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++

	if o.fail != nil {
		return nil, o.fail
	}

	demand := o.cat.RequiredResources(req.Items)
	for _, sub := range req.Substitutions {
		moved := sub.Qty
		if moved > demand[sub.From] {
			moved = demand[sub.From]
		}
		if moved <= 0 {
			continue
		}
		demand[sub.From] -= moved
		demand[sub.To] += moved
	}

	refs := make([]conflict.ResourceRef, 0, len(demand))
	for ref := range demand {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key() < refs[j].Key() })

	var rows []conflict.ConflictRow
	for _, ref := range refs {
		required := demand[ref]
		free := o.free[ref]
		if required <= free {
			continue
		}
		rows = append(rows, conflict.ConflictRow{
			Resource:     ref,
			Name:         ref.ID,
			RequiredQty:  required,
			AvailableQty: free,
			ShortageQty:  required - free,
			Alternatives: o.alternatives[ref],
		})
	}
	return rows, nil
}

func (o *memOracle) setFail(err error) {
	o.mu.Lock()
	o.fail = err
	o.mu.Unlock()
}

// memOffers records inserted offers instead of writing to sqlite.
type memOffers struct {
	records []data.OfferRecord
	items   []interface{}
	subs    []interface{}
	fail    error
}

func (m *memOffers) InsertSnapshot(rec data.OfferRecord, items interface{}, subs interface{}) error {
	if m.fail != nil {
		return m.fail
	}
	m.records = append(m.records, rec)
	m.items = append(m.items, items)
	m.subs = append(m.subs, subs)
	return nil
}

func testCatalog() *catalog.Service {
	cat := catalog.NewService()
	cat.LoadData(catalog.CatalogData{Products: []catalog.Product{
		{
			ID: "prod-stage-truss", Name: "Stage Truss Package", Available: true,
			UnitPrice: decimal.NewFromInt(80),
			Requirements: []catalog.Requirement{
				{Resource: trussA, QtyPerUnit: 1},
			},
		},
		{
			ID: "prod-stagehand-day", Name: "Stagehand Day Rate", Available: true,
			UnitPrice: decimal.NewFromInt(280),
		},
	}})
	return cat
}

func testOracle(cat *catalog.Service) *memOracle {
	return &memOracle{
		cat:  cat,
		free: map[conflict.ResourceRef]int{trussA: 3, trussB: 10},
		alternatives: map[conflict.ResourceRef][]conflict.AlternativeResource{
			trussA: {{Resource: trussB, Name: "Truss B", TotalQty: 10, AvailableQty: 10}},
		},
	}
}

func readyWizard(t *testing.T) (*Wizard, *memOracle, *memOffers) {
	t.Helper()

	cat := testCatalog()
	oracle := testOracle(cat)
	offers := &memOffers{}
	w := New(cat, oracle, offers, time.Second)

	w.SelectClient(data.Client{ID: "client-aurora", Name: "Aurora Festivals GmbH"})
	start := time.Date(2026, 10, 3, 8, 0, 0, 0, time.UTC)
	if err := w.SetMetadata(Metadata{
		EventID:   "evt-1",
		EventName: "Autumn Gala",
		Window:    conflict.TimeWindow{Start: start, End: start.Add(12 * time.Hour)},
	}); err != nil {
		t.Fatalf("metadata setup failed: %v", err)
	}
	return w, oracle, offers
}

// =============================================================================
// STEP MACHINE
// =============================================================================

func TestStepMachineGating(t *testing.T) {
	cat := testCatalog()
	w := New(cat, testOracle(cat), &memOffers{}, time.Second)

	if w.Step() != StepClient {
		t.Fatalf("expected client step first, got %s", w.Step())
	}
	if _, err := w.GoNext(); err != ErrClientRequired {
		t.Errorf("expected ErrClientRequired, got %v", err)
	}
	if _, err := w.GoTo(StepItems); err != ErrClientRequired {
		t.Errorf("direct jump without client must fail, got %v", err)
	}
	if _, err := w.GoBack(); err != ErrInvalidStep {
		t.Errorf("back from first step must fail, got %v", err)
	}

	w.SelectClient(data.Client{ID: "client-aurora"})
	if w.Step() != StepMetadata {
		t.Errorf("selecting a client should advance to metadata, got %s", w.Step())
	}

	if _, err := w.GoNext(); err != ErrMetadataRequired {
		t.Errorf("expected ErrMetadataRequired, got %v", err)
	}
	if _, err := w.GoTo(StepCatalog); err != ErrMetadataRequired {
		t.Errorf("jump to catalog without metadata must fail, got %v", err)
	}

	start := time.Now()
	if err := w.SetMetadata(Metadata{EventID: "evt-1", Window: conflict.TimeWindow{Start: start, End: start.Add(time.Hour)}}); err != nil {
		t.Fatalf("metadata failed: %v", err)
	}
	if w.Step() != StepCatalog {
		t.Errorf("metadata should advance to catalog, got %s", w.Step())
	}

	if step, err := w.GoNext(); err != nil || step != StepItems {
		t.Errorf("expected items step, got %s err=%v", step, err)
	}
	if _, err := w.GoNext(); err != ErrInvalidStep {
		t.Errorf("next from last step must fail, got %v", err)
	}
	if step, err := w.GoBack(); err != nil || step != StepCatalog {
		t.Errorf("expected back to catalog, got %s err=%v", step, err)
	}
}

func TestSetMetadataRejectsInvalidWindow(t *testing.T) {
	cat := testCatalog()
	w := New(cat, testOracle(cat), &memOffers{}, time.Second)
	w.SelectClient(data.Client{ID: "client-aurora"})

	start := time.Now()
	bad := []Metadata{
		{Window: conflict.TimeWindow{Start: start, End: start.Add(time.Hour)}},                          // no event id
		{EventID: "evt", Window: conflict.TimeWindow{Start: start, End: start}},                         // empty window
		{EventID: "evt", Window: conflict.TimeWindow{Start: start.Add(time.Hour), End: start}},          // reversed
		{EventID: "evt", Window: conflict.TimeWindow{Start: time.Time{}, End: start.Add(time.Hour)}},    // zero start
	}
	for i, meta := range bad {
		if err := w.SetMetadata(meta); err != ErrMetadataRequired {
			t.Errorf("case %d: expected ErrMetadataRequired, got %v", i, err)
		}
	}
}

// =============================================================================
// CART MUTATIONS AND CONFLICT CHECKS
// =============================================================================

func TestEveryMutationTriggersCheck(t *testing.T) {
	w, oracle, _ := readyWizard(t)
	ctx := context.Background()

	result, err := w.AddProductToOffer(ctx, "prod-stage-truss")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if result.HasConflicts {
		t.Errorf("1 required vs 3 free should not conflict")
	}

	itemID := result.Items[0].ID
	qty := 5
	result, err = w.UpdateOfferItem(ctx, itemID, cart.ItemPatch{Quantity: &qty})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !result.HasConflicts {
		t.Fatal("5 required vs 3 free must conflict")
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Row.ShortageQty != 2 {
		t.Errorf("expected shortage 2, got %+v", result.Conflicts)
	}

	if _, err := w.RemoveOfferItem(ctx, itemID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	if oracle.calls != 3 {
		t.Errorf("expected one check per mutation (3), got %d", oracle.calls)
	}
}

func TestAddUnknownProduct(t *testing.T) {
	w, _, _ := readyWizard(t)
	if _, err := w.AddProductToOffer(context.Background(), "prod-nope"); err != ErrUnknownProduct {
		t.Errorf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestCustomLineNeverConflicts(t *testing.T) {
	w, _, _ := readyWizard(t)

	result, err := w.AddCustomLine(context.Background(), "Catering", 2, "45.00")
	if err != nil {
		t.Fatalf("add custom line failed: %v", err)
	}
	if result.HasConflicts || len(result.Conflicts) != 0 {
		t.Errorf("custom lines demand no equipment, got %+v", result.Conflicts)
	}

	if _, err := w.AddCustomLine(context.Background(), "Bad price", 1, "not-a-number"); err == nil {
		t.Error("expected error for unparseable price")
	}
}

func TestRemoveItemClearsConflictAndPrunesLedger(t *testing.T) {
	w, _, _ := readyWizard(t)
	ctx := context.Background()

	result, _ := w.AddProductToOffer(ctx, "prod-stage-truss")
	itemID := result.Items[0].ID
	qty := 5
	result, _ = w.UpdateOfferItem(ctx, itemID, cart.ItemPatch{Quantity: &qty})
	if !result.HasConflicts {
		t.Fatal("setup: expected a conflict")
	}

	// Operator starts working on a substitution, then removes the line.
	if err := w.SelectAlternative(trussA, trussB, 0); err != nil {
		t.Fatalf("select failed: %v", err)
	}

	result, err := w.RemoveOfferItem(ctx, itemID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if result.HasConflicts || len(result.Conflicts) != 0 {
		t.Errorf("conflict rows must vanish with the item, got %+v", result.Conflicts)
	}
	if len(w.ConflictViews()) != 0 {
		t.Error("stale conflict views survive item removal")
	}
}

// =============================================================================
// SUBSTITUTION FLOW
// =============================================================================

func TestSubstitutionResolvesConflict(t *testing.T) {
	w, oracle, _ := readyWizard(t)
	ctx := context.Background()

	w.AddProductToOffer(ctx, "prod-stage-truss")
	items := w.Items()
	qty := 5
	result, _ := w.UpdateOfferItem(ctx, items[0].ID, cart.ItemPatch{Quantity: &qty})
	if !result.HasConflicts {
		t.Fatal("setup: expected a conflict")
	}
	checksBefore := oracle.calls

	// Selecting and adjusting a draft never rechecks.
	if err := w.SelectAlternative(trussA, trussB, 0); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if err := w.AdjustDraftQuantity(trussA, 2); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if oracle.calls != checksBefore {
		t.Errorf("draft edits must not trigger checks, got %d extra", oracle.calls-checksBefore)
	}

	views := w.ConflictViews()
	if views[0].Selected == nil || *views[0].Selected != trussB {
		t.Errorf("draft pick not reflected in view: %+v", views[0])
	}
	if views[0].EffectiveQty != 2 {
		t.Errorf("expected draft qty 2 in view, got %d", views[0].EffectiveQty)
	}

	// Commit applies the substitution and rechecks with it.
	result, err := w.CommitSubstitution(ctx, trussA)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if oracle.calls != checksBefore+1 {
		t.Errorf("commit must trigger exactly one check, got %d", oracle.calls-checksBefore)
	}
	if result.HasConflicts {
		t.Errorf("moving 2 units to truss-b should resolve the conflict, got %+v", result.Conflicts)
	}
}

func TestCommitWithoutDraft(t *testing.T) {
	w, _, _ := readyWizard(t)
	if _, err := w.CommitSubstitution(context.Background(), trussA); !errors.Is(err, substitution.ErrNoDraft) {
		t.Errorf("expected ErrNoDraft, got %v", err)
	}
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmitHappyPath(t *testing.T) {
	w, _, offers := readyWizard(t)
	ctx := context.Background()

	w.AddProductToOffer(ctx, "prod-stage-truss")
	w.AddCustomLine(ctx, "Crew", 2, "100")

	result, err := w.Submit(ctx, false)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Blocked || result.OfferID == "" {
		t.Fatalf("expected successful submit, got %+v", result)
	}

	if len(offers.records) != 1 {
		t.Fatalf("expected 1 persisted offer, got %d", len(offers.records))
	}
	rec := offers.records[0]
	if rec.ClientID != "client-aurora" || rec.EventID != "evt-1" {
		t.Errorf("offer record fields wrong: %+v", rec)
	}
	if rec.OverrideUsed {
		t.Error("override must not be recorded on a clean submit")
	}
	if rec.TotalAmount != 280 { // 80 + 2*100
		t.Errorf("expected total 280, got %v", rec.TotalAmount)
	}

	// The session is spent.
	if _, err := w.Submit(ctx, false); err != ErrAlreadySubmitted {
		t.Errorf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmitValidatesPreconditions(t *testing.T) {
	cat := testCatalog()
	w := New(cat, testOracle(cat), &memOffers{}, time.Second)
	ctx := context.Background()

	if _, err := w.Submit(ctx, false); err != ErrClientRequired {
		t.Errorf("expected ErrClientRequired, got %v", err)
	}

	w.SelectClient(data.Client{ID: "client-aurora"})
	if _, err := w.Submit(ctx, false); err != ErrMetadataRequired {
		t.Errorf("expected ErrMetadataRequired, got %v", err)
	}

	start := time.Now()
	w.SetMetadata(Metadata{EventID: "evt-1", Window: conflict.TimeWindow{Start: start, End: start.Add(time.Hour)}})
	if _, err := w.Submit(ctx, false); err != ErrEmptyCart {
		t.Errorf("expected ErrEmptyCart, got %v", err)
	}
}

func TestSubmitBlockedByShortage(t *testing.T) {
	w, _, offers := readyWizard(t)
	ctx := context.Background()

	result, _ := w.AddProductToOffer(ctx, "prod-stage-truss")
	qty := 5
	w.UpdateOfferItem(ctx, result.Items[0].ID, cart.ItemPatch{Quantity: &qty})

	submit, err := w.Submit(ctx, false)
	if !errors.Is(err, ErrUnresolvedConflicts) {
		t.Fatalf("expected ErrUnresolvedConflicts, got %v", err)
	}
	if !submit.Blocked || len(submit.Conflicts) == 0 {
		t.Errorf("blocked submit must carry the conflict view: %+v", submit)
	}
	if len(offers.records) != 0 {
		t.Error("blocked submit must not persist anything")
	}

	// The explicit override lets the shortage through and is recorded.
	submit, err = w.Submit(ctx, true)
	if err != nil {
		t.Fatalf("override submit failed: %v", err)
	}
	if submit.Blocked || submit.OfferID == "" {
		t.Fatalf("expected override submit to pass, got %+v", submit)
	}
	if len(offers.records) != 1 || !offers.records[0].OverrideUsed {
		t.Errorf("override must be recorded on the offer: %+v", offers.records)
	}
}

func TestCheckFailureBlocksSubmitUnconditionally(t *testing.T) {
	w, oracle, offers := readyWizard(t)
	ctx := context.Background()

	w.AddProductToOffer(ctx, "prod-stage-truss")
	oracle.setFail(errors.New("reservation store unreachable"))

	// Even the override cannot bypass an unproven availability state.
	submit, err := w.Submit(ctx, true)
	if !errors.Is(err, ErrAvailabilityUnproven) {
		t.Fatalf("expected ErrAvailabilityUnproven, got %v", err)
	}
	if !submit.Blocked {
		t.Error("failed check must block")
	}
	if len(submit.Conflicts) == 0 || !submit.Conflicts[0].Row.CheckError {
		t.Errorf("expected the error row in the conflict view: %+v", submit.Conflicts)
	}
	if len(offers.records) != 0 {
		t.Error("nothing may be persisted while availability is unproven")
	}

	// Recovery: the next submit runs a fresh, authoritative check.
	oracle.setFail(nil)
	submit, err = w.Submit(ctx, false)
	if err != nil {
		t.Fatalf("submit after recovery failed: %v", err)
	}
	if submit.OfferID == "" || len(offers.records) != 1 {
		t.Errorf("expected successful submit after recovery, got %+v", submit)
	}
}

func TestSubmitPersistsSubstitutionSnapshot(t *testing.T) {
	w, _, offers := readyWizard(t)
	ctx := context.Background()

	result, _ := w.AddProductToOffer(ctx, "prod-stage-truss")
	qty := 5
	w.UpdateOfferItem(ctx, result.Items[0].ID, cart.ItemPatch{Quantity: &qty})
	w.SelectAlternative(trussA, trussB, 0)
	if _, err := w.CommitSubstitution(ctx, trussA); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if _, err := w.Submit(ctx, false); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	subs, ok := offers.subs[0].([]substitution.Committed)
	if !ok {
		t.Fatalf("unexpected substitution snapshot type %T", offers.subs[0])
	}
	if len(subs) != 1 || subs[0].From != trussA || subs[0].To != trussB || subs[0].Qty != 2 {
		t.Errorf("substitution snapshot wrong: %+v", subs)
	}
}

func TestSubmitStoreFailureLeavesSessionUsable(t *testing.T) {
	w, _, offers := readyWizard(t)
	ctx := context.Background()

	w.AddProductToOffer(ctx, "prod-stage-truss")
	offers.fail = errors.New("disk full")

	if _, err := w.Submit(ctx, false); err == nil {
		t.Fatal("expected store error to surface")
	}

	// The offer was not marked submitted; a retry can succeed.
	offers.fail = nil
	result, err := w.Submit(ctx, false)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.OfferID == "" {
		t.Error("expected offer id on retry")
	}
}
