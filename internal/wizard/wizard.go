// internal/wizard/wizard.go
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"opsdesk/internal/cart"
	"opsdesk/internal/catalog"
	"opsdesk/internal/conflict"
	"opsdesk/internal/data"
	"opsdesk/internal/logger"
	"opsdesk/internal/metrics"
	"opsdesk/internal/substitution"
)

// Step identifies one stage of the offer-building flow.
type Step string

const (
	StepClient   Step = "client"
	StepMetadata Step = "metadata"
	StepCatalog  Step = "catalog"
	StepItems    Step = "items"
)

var stepOrder = []Step{StepClient, StepMetadata, StepCatalog, StepItems}

// Validation and gating errors. All of these are recoverable by fixing
// the input and retrying; none is fatal to the session.
var (
	ErrClientRequired       = errors.New("a client must be selected")
	ErrMetadataRequired     = errors.New("offer metadata with a valid event window is required")
	ErrEmptyCart            = errors.New("the offer has no line items")
	ErrUnknownProduct       = errors.New("product not found in catalog")
	ErrInvalidStep          = errors.New("step transition not allowed")
	ErrUnresolvedConflicts  = errors.New("unresolved equipment shortages block submission")
	ErrAvailabilityUnproven = errors.New("availability could not be verified; submission blocked")
	ErrAlreadySubmitted     = errors.New("offer already submitted")
)

// Metadata describes the offer's event. The time window here is the one
// every availability check runs against.
type Metadata struct {
	EventID   string              `json:"event_id"`
	EventName string              `json:"event_name"`
	Window    conflict.TimeWindow `json:"window"`
	Notes     string              `json:"notes,omitempty"`
}

// OfferStore is the external "create offer" operation. The wizard's only
// obligation toward it is refusing the call while shortages remain
// unresolved and unoverridden.
type OfferStore interface {
	InsertSnapshot(rec data.OfferRecord, items interface{}, subs interface{}) error
}

// Wizard sequences the offer-building flow for one operator session:
// client selection, offer metadata, catalog browsing, cart editing. Every
// cart mutation triggers a conflict check with the list that mutation
// produced, and submission is gated on the final, authoritative check.
//
// All methods serialize on one mutex: within a session there is no
// parallel execution, matching the callback-driven flow this models.
type Wizard struct {
	mu sync.Mutex

	step      Step
	client    *data.Client
	meta      Metadata
	submitted bool

	cart     *cart.Cart
	ledger   *substitution.Ledger
	resolver *conflict.Resolver

	catalog      *catalog.Service
	offers       OfferStore
	checkTimeout time.Duration
}

func New(cat *catalog.Service, oracle conflict.Oracle, offers OfferStore, checkTimeout time.Duration) *Wizard {
	if checkTimeout <= 0 {
		checkTimeout = 10 * time.Second
	}
	return &Wizard{
		step:         StepClient,
		cart:         cart.New(),
		ledger:       substitution.NewLedger(),
		resolver:     conflict.NewResolver(oracle),
		catalog:      cat,
		offers:       offers,
		checkTimeout: checkTimeout,
	}
}

// =============================================================================
// STEP MACHINE
// =============================================================================

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// GoNext advances one step, gated on the current step being complete.
func (w *Wizard) GoNext() (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.step {
	case StepClient:
		if w.client == nil {
			return w.step, ErrClientRequired
		}
	case StepMetadata:
		if !w.metadataValid() {
			return w.step, ErrMetadataRequired
		}
	case StepItems:
		return w.step, ErrInvalidStep
	}

	w.step = stepAfter(w.step)
	return w.step, nil
}

// GoBack moves one step back. Cart and ledger state survive going back.
func (w *Wizard) GoBack() (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step == StepClient {
		return w.step, ErrInvalidStep
	}
	w.step = stepBefore(w.step)
	return w.step, nil
}

// GoTo jumps directly to a step. The catalog and items steps may be
// entered directly when a client was pre-selected externally.
func (w *Wizard) GoTo(step Step) (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch step {
	case StepClient:
		w.step = step
	case StepMetadata:
		if w.client == nil {
			return w.step, ErrClientRequired
		}
		w.step = step
	case StepCatalog, StepItems:
		if w.client == nil {
			return w.step, ErrClientRequired
		}
		if !w.metadataValid() {
			return w.step, ErrMetadataRequired
		}
		w.step = step
	default:
		return w.step, ErrInvalidStep
	}
	return w.step, nil
}

func stepAfter(s Step) Step {
	for i, step := range stepOrder {
		if step == s && i+1 < len(stepOrder) {
			return stepOrder[i+1]
		}
	}
	return s
}

func stepBefore(s Step) Step {
	for i, step := range stepOrder {
		if step == s && i > 0 {
			return stepOrder[i-1]
		}
	}
	return s
}

// =============================================================================
// CLIENT AND METADATA
// =============================================================================

// SelectClient sets the offer's client and advances past the client step.
func (w *Wizard) SelectClient(c data.Client) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.client = &c
	if w.step == StepClient {
		w.step = StepMetadata
	}
}

// Client returns the selected client, or nil.
func (w *Wizard) Client() *data.Client {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return nil
	}
	c := *w.client
	return &c
}

// SetMetadata validates and stores the offer metadata.
func (w *Wizard) SetMetadata(meta Metadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if meta.EventID == "" || meta.Window.Start.IsZero() || meta.Window.End.IsZero() ||
		!meta.Window.End.After(meta.Window.Start) {
		return ErrMetadataRequired
	}
	w.meta = meta
	if w.step == StepMetadata {
		w.step = StepCatalog
	}
	return nil
}

func (w *Wizard) Metadata() Metadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meta
}

func (w *Wizard) metadataValid() bool {
	return w.meta.EventID != "" && !w.meta.Window.Start.IsZero() &&
		w.meta.Window.End.After(w.meta.Window.Start)
}

// =============================================================================
// CART MUTATIONS (each one triggers a conflict check)
// =============================================================================

// MutationResult is what every cart-mutating entry point returns: the new
// item list, the conflict rows for exactly that list, and whether any
// unresolved conflict exists. Conflicts never make the mutation fail;
// they only warn, and block final submission.
type MutationResult struct {
	Items        []cart.LineItem    `json:"items"`
	Conflicts    []conflict.RowView `json:"conflicts"`
	HasConflicts bool               `json:"has_conflicts"`
}

// AddProductToOffer adds a catalog product to the cart (or bumps its
// quantity) and immediately rechecks availability with the produced list.
func (w *Wizard) AddProductToOffer(ctx context.Context, productID string) (MutationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	product, ok := w.catalog.GetProduct(productID)
	if !ok {
		return MutationResult{}, ErrUnknownProduct
	}

	items := w.cart.AddProduct(cart.Product{
		ID:        product.ID,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
	})
	return w.afterMutationLocked(ctx, items), nil
}

// AddCustomLine adds a free-text line. Custom lines carry no equipment
// requirement, but the recheck still runs: the produced list is what the
// conflict view must stay consistent with.
func (w *Wizard) AddCustomLine(ctx context.Context, name string, qty int, unitPrice string) (MutationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	price, err := parsePrice(unitPrice)
	if err != nil {
		return MutationResult{}, err
	}
	items := w.cart.AddCustomLine(name, qty, price)
	return w.afterMutationLocked(ctx, items), nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	return price, nil
}

// RemoveOfferItem deletes a line, drops substitutions whose resource the
// cart no longer demands, and rechecks.
func (w *Wizard) RemoveOfferItem(ctx context.Context, itemID string) (MutationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	items, err := w.cart.RemoveItem(itemID)
	if err != nil {
		return MutationResult{}, err
	}
	w.pruneOrphanedSubstitutionsLocked(items)
	return w.afterMutationLocked(ctx, items), nil
}

// UpdateOfferItem patches a line and rechecks.
func (w *Wizard) UpdateOfferItem(ctx context.Context, itemID string, patch cart.ItemPatch) (MutationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	items, err := w.cart.UpdateItem(itemID, patch)
	if err != nil {
		return MutationResult{}, err
	}
	return w.afterMutationLocked(ctx, items), nil
}

// Items returns the current cart snapshot.
func (w *Wizard) Items() []cart.LineItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cart.Items()
}

// afterMutationLocked runs the conflict check for the item list a
// mutation just produced and reports the outcome. Callers hold w.mu.
func (w *Wizard) afterMutationLocked(ctx context.Context, items []cart.LineItem) MutationResult {
	rows := w.checkLocked(ctx, items)
	result := MutationResult{
		Items:        items,
		Conflicts:    conflict.DeriveRowViews(rows, w.ledger),
		HasConflicts: w.resolver.HasConflicts(),
	}
	if result.HasConflicts {
		logger.LogWarn("Offer for event %s has %d conflict rows after cart mutation", w.meta.EventID, len(rows))
	}
	return result
}

// checkLocked issues one availability check. Drafts overlay committed
// substitutions for the request only.
func (w *Wizard) checkLocked(ctx context.Context, items []cart.LineItem) []conflict.ConflictRow {
	subs := w.ledger.EffectiveSubstitutions(w.shortagesLocked())

	checkCtx, cancel := context.WithTimeout(ctx, w.checkTimeout)
	defer cancel()
	return w.resolver.Check(checkCtx, w.meta.EventID, w.meta.Window, items, subs)
}

// shortagesLocked maps each conflicted resource to its latest shortage.
func (w *Wizard) shortagesLocked() map[conflict.ResourceRef]int {
	shortages := make(map[conflict.ResourceRef]int)
	for _, row := range w.resolver.Rows() {
		if row.ShortageQty > 0 {
			shortages[row.Resource] = row.ShortageQty
		}
	}
	return shortages
}

// pruneOrphanedSubstitutionsLocked removes ledger state for resources the
// remaining items no longer demand. The cart never does this itself.
func (w *Wizard) pruneOrphanedSubstitutionsLocked(items []cart.LineItem) {
	demand := w.catalog.RequiredResources(conflict.BuildRequest("", conflict.TimeWindow{}, items, nil).Items)
	for _, key := range w.ledger.Keys() {
		if demand[key] == 0 {
			w.ledger.Remove(key)
		}
	}
}

// =============================================================================
// SUBSTITUTIONS
// =============================================================================

// SelectAlternative toggles a draft pick. Deliberately no recheck here:
// rechecking while the operator is still deciding would flood the oracle
// and make shortage numbers flicker.
func (w *Wizard) SelectAlternative(key, chosen conflict.ResourceRef, qty int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.SelectAlternative(key, chosen, qty)
}

// AdjustDraftQuantity changes a draft quantity. No recheck either.
func (w *Wizard) AdjustDraftQuantity(key conflict.ResourceRef, qty int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.AdjustDraftQuantity(key, qty)
}

// CommitSubstitution promotes the draft for key into a committed
// substitution and rechecks. Commit is the only substitution action that
// may trigger a recheck.
func (w *Wizard) CommitSubstitution(ctx context.Context, key conflict.ResourceRef) (MutationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ledger.Commit(key, w.shortagesLocked()[key]); err != nil {
		return MutationResult{}, err
	}
	return w.afterMutationLocked(ctx, w.cart.Items()), nil
}

// ConflictViews derives the presentation state for the latest rows.
func (w *Wizard) ConflictViews() []conflict.RowView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return conflict.DeriveRowViews(w.resolver.Rows(), w.ledger)
}

// CheckBusy reports whether an availability check is in flight.
func (w *Wizard) CheckBusy() bool {
	return w.resolver.Busy()
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitResult reports the outcome of a submission attempt. When Blocked
// is set the conflict view must be forced open and Conflicts explains why.
type SubmitResult struct {
	OfferID   string             `json:"offer_id,omitempty"`
	Blocked   bool               `json:"blocked"`
	Conflicts []conflict.RowView `json:"conflicts,omitempty"`
}

// Submit re-runs the conflict check one final time and persists the offer
// when it passes. The final check is authoritative: reservation state may
// have changed since the last check, so no cached result can stand in for
// it. Shortages block submission unless override is set; a failed
// availability check blocks it unconditionally.
func (w *Wizard) Submit(ctx context.Context, override bool) (SubmitResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitted {
		return SubmitResult{}, ErrAlreadySubmitted
	}
	if w.client == nil {
		return SubmitResult{}, ErrClientRequired
	}
	if !w.metadataValid() {
		return SubmitResult{}, ErrMetadataRequired
	}
	if w.cart.Len() == 0 {
		return SubmitResult{}, ErrEmptyCart
	}

	items := w.cart.Items()
	rows := w.checkLocked(ctx, items)

	if w.resolver.LastCheckFailed() {
		metrics.SubmissionsBlocked.Inc()
		return SubmitResult{
			Blocked:   true,
			Conflicts: conflict.DeriveRowViews(rows, w.ledger),
		}, ErrAvailabilityUnproven
	}

	if w.resolver.HasConflicts() && !override {
		metrics.SubmissionsBlocked.Inc()
		logger.LogWarn("Submission blocked for event %s: %d conflict rows", w.meta.EventID, len(rows))
		return SubmitResult{
			Blocked:   true,
			Conflicts: conflict.DeriveRowViews(rows, w.ledger),
		}, ErrUnresolvedConflicts
	}

	rec := data.OfferRecord{
		OfferID:      uuid.NewString(),
		ClientID:     w.client.ID,
		EventID:      w.meta.EventID,
		EventName:    w.meta.EventName,
		WindowStart:  w.meta.Window.Start,
		WindowEnd:    w.meta.Window.End,
		TotalAmount:  w.cart.Total().InexactFloat64(),
		OverrideUsed: override && w.resolver.HasConflicts(),
		SubmittedAt:  time.Now(),
	}
	if err := w.offers.InsertSnapshot(rec, items, w.ledger.CommittedList()); err != nil {
		return SubmitResult{}, err
	}

	w.submitted = true
	metrics.OffersSubmitted.Inc()
	logger.LogInfo("Offer %s submitted for client %s (override=%v)", rec.OfferID, rec.ClientID, rec.OverrideUsed)
	return SubmitResult{OfferID: rec.OfferID}, nil
}
