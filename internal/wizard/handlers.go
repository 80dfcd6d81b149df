// internal/wizard/handlers.go
package wizard

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"opsdesk/internal/cart"
	"opsdesk/internal/catalog"
	"opsdesk/internal/config"
	"opsdesk/internal/conflict"
	"opsdesk/internal/data"
	"opsdesk/internal/logger"
	"opsdesk/internal/middleware"
	"opsdesk/internal/session"
	"opsdesk/internal/substitution"
)

// Handlers is the JSON API over per-operator wizard sessions. One session
// token corresponds to one offer draft.
type Handlers struct {
	sessions     *session.Store[*Wizard]
	catalog      *catalog.Service
	clients      *data.ClientRepository
	oracle       conflict.Oracle
	offers       OfferStore
	checkTimeout time.Duration
}

func NewHandlers(store *session.Store[*Wizard], cat *catalog.Service, clients *data.ClientRepository, oracle conflict.Oracle, offers OfferStore, checkTimeout time.Duration) *Handlers {
	return &Handlers{
		sessions:     store,
		catalog:      cat,
		clients:      clients,
		oracle:       oracle,
		offers:       offers,
		checkTimeout: checkTimeout,
	}
}

// =============================================================================
// SESSION AND LOOKUPS
// =============================================================================

// CreateSessionHandler starts a wizard session. A client id in the body
// pre-selects the client so the caller may jump straight to the catalog.
func (h *Handlers) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}

	var requestBody struct {
		ClientID string `json:"client_id"`
	}
	if r.ContentLength > 0 {
		if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
				"Invalid JSON body", err.Error())
			return
		}
	}

	wiz := New(h.catalog, h.oracle, h.offers, h.checkTimeout)

	if requestBody.ClientID != "" {
		client, err := h.clients.GetByID(requestBody.ClientID)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "client_lookup_failed",
				"Failed to look up client", err.Error())
			return
		}
		if client == nil {
			middleware.WriteAPIError(w, r, http.StatusNotFound, "client_not_found",
				"Client not found", "")
			return
		}
		wiz.SelectClient(*client)
	}

	token, err := h.sessions.Create(wiz)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "session_create_failed",
			"Failed to create session", err.Error())
		return
	}

	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"token": token,
		"step":  wiz.Step(),
	})
}

// ListClientsHandler returns all clients for the client selection step.
func (h *Handlers) ListClientsHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only GET requests are supported", "")
		return
	}

	clients, err := h.clients.List()
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "client_list_failed",
			"Failed to list clients", err.Error())
		return
	}
	middleware.WriteAPISuccess(w, r, clients)
}

// ListProductsHandler returns the sellable catalog for browsing.
func (h *Handlers) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only GET requests are supported", "")
		return
	}
	middleware.WriteAPISuccess(w, r, h.catalog.AvailableProducts())
}

// withSession resolves the wizard for the request's session token.
func (h *Handlers) withSession(w http.ResponseWriter, r *http.Request) (*Wizard, bool) {
	token := middleware.GetSessionToken(r.Context())
	if token == "" {
		middleware.WriteAPIError(w, r, http.StatusUnauthorized, "missing_session",
			"Session token required", "")
		return nil, false
	}
	wiz, ok := h.sessions.Get(token)
	if !ok {
		middleware.WriteAPIError(w, r, http.StatusUnauthorized, "invalid_session",
			"Session is unknown or expired", "")
		return nil, false
	}
	return wiz, true
}

// =============================================================================
// WIZARD FLOW
// =============================================================================

// StateHandler reports the whole wizard state in one shot.
func (h *Handlers) StateHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only GET requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"step":       wiz.Step(),
		"client":     wiz.Client(),
		"metadata":   wiz.Metadata(),
		"items":      wiz.Items(),
		"conflicts":  wiz.ConflictViews(),
		"check_busy": wiz.CheckBusy(),
	})
}

// SelectClientHandler sets the offer's client.
func (h *Handlers) SelectClientHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		ClientID string `json:"client_id"`
	}
	if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}
	if requestBody.ClientID == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_client_id",
			"client_id is required", "")
		return
	}

	client, err := h.clients.GetByID(requestBody.ClientID)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "client_lookup_failed",
			"Failed to look up client", err.Error())
		return
	}
	if client == nil {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "client_not_found",
			"Client not found", "")
		return
	}

	wiz.SelectClient(*client)
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"step": wiz.Step()})
}

// SetMetadataHandler stores the offer metadata (event id, name, window).
func (h *Handlers) SetMetadataHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var meta Metadata
	if err := middleware.ParseJSONRequest(r, &meta); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}
	if err := wiz.SetMetadata(meta); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_metadata",
			"Event id and a valid time window are required", err.Error())
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"step": wiz.Step()})
}

// StepHandler drives the step machine: next, back, or a direct jump.
func (h *Handlers) StepHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		Action string `json:"action"` // next, back, goto
		Step   Step   `json:"step,omitempty"`
	}
	if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}

	var step Step
	var err error
	switch requestBody.Action {
	case "next":
		step, err = wiz.GoNext()
	case "back":
		step, err = wiz.GoBack()
	case "goto":
		step, err = wiz.GoTo(requestBody.Step)
	default:
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_action",
			"Action must be next, back or goto", "")
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusConflict, "step_blocked", err.Error(), "")
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"step": step})
}

// =============================================================================
// CART MUTATIONS
// =============================================================================

// AddItemHandler adds a catalog product or, when product_id is empty, a
// custom free-text line. Conflicts are returned as a warning, never as a
// failure of the add itself.
func (h *Handlers) AddItemHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		ProductID string `json:"product_id,omitempty"`
		Name      string `json:"name,omitempty"`
		Quantity  int    `json:"quantity,omitempty"`
		UnitPrice string `json:"unit_price,omitempty"`
	}
	if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}

	var result MutationResult
	var err error
	if requestBody.ProductID != "" {
		result, err = wiz.AddProductToOffer(r.Context(), requestBody.ProductID)
	} else if requestBody.Name != "" {
		result, err = wiz.AddCustomLine(r.Context(), requestBody.Name, requestBody.Quantity, requestBody.UnitPrice)
	} else {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_item",
			"Either product_id or name is required", "")
		return
	}
	if err != nil {
		writeWizardError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, result)
}

// UpdateItemHandler patches one line item.
func (h *Handlers) UpdateItemHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		ItemID          string   `json:"item_id"`
		Name            *string  `json:"name,omitempty"`
		Quantity        *int     `json:"quantity,omitempty"`
		UnitPrice       *string  `json:"unit_price,omitempty"`
		DiscountPercent *float64 `json:"discount_percent,omitempty"`
	}
	if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}
	if requestBody.ItemID == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_item_id",
			"item_id is required", "")
		return
	}

	patch := cart.ItemPatch{
		Name:     requestBody.Name,
		Quantity: requestBody.Quantity,
	}
	if requestBody.UnitPrice != nil {
		price, err := parsePrice(*requestBody.UnitPrice)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_price", err.Error(), "")
			return
		}
		patch.UnitPrice = &price
	}
	if requestBody.DiscountPercent != nil {
		discount := decimal.NewFromFloat(*requestBody.DiscountPercent)
		patch.DiscountPercent = &discount
	}

	result, err := wiz.UpdateOfferItem(r.Context(), requestBody.ItemID, patch)
	if err != nil {
		writeWizardError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, result)
}

// RemoveItemHandler deletes one line item.
func (h *Handlers) RemoveItemHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		ItemID string `json:"item_id"`
	}
	if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}
	if requestBody.ItemID == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_item_id",
			"item_id is required", "")
		return
	}

	result, err := wiz.RemoveOfferItem(r.Context(), requestBody.ItemID)
	if err != nil {
		writeWizardError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, result)
}

// =============================================================================
// CONFLICTS AND SUBSTITUTIONS
// =============================================================================

// ConflictsHandler returns the latest conflict view.
func (h *Handlers) ConflictsHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only GET requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"conflicts":  wiz.ConflictViews(),
		"check_busy": wiz.CheckBusy(),
	})
}

type substitutionRequest struct {
	Key    conflict.ResourceRef `json:"key"`
	Chosen conflict.ResourceRef `json:"chosen,omitempty"`
	Qty    int                  `json:"qty,omitempty"`
}

// SelectAlternativeHandler toggles a draft pick for a conflict row.
func (h *Handlers) SelectAlternativeHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody substitutionRequest
	if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}

	if err := wiz.SelectAlternative(requestBody.Key, requestBody.Chosen, requestBody.Qty); err != nil {
		writeWizardError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"conflicts": wiz.ConflictViews()})
}

// DraftQuantityHandler adjusts a draft's quantity.
func (h *Handlers) DraftQuantityHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody substitutionRequest
	if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}

	if err := wiz.AdjustDraftQuantity(requestBody.Key, requestBody.Qty); err != nil {
		writeWizardError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"conflicts": wiz.ConflictViews()})
}

// CommitSubstitutionHandler applies the draft for a resource and rechecks.
func (h *Handlers) CommitSubstitutionHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody substitutionRequest
	if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
			"Invalid JSON body", err.Error())
		return
	}

	result, err := wiz.CommitSubstitution(r.Context(), requestBody.Key)
	if err != nil {
		writeWizardError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, result)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitHandler runs the final authoritative conflict check and persists
// the offer when it passes (or when the operator explicitly overrides
// remaining shortages).
func (h *Handlers) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST requests are supported", "")
		return
	}
	wiz, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		Override bool `json:"override,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := middleware.ParseJSONRequest(r, &requestBody); err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request",
				"Invalid JSON body", err.Error())
			return
		}
	}

	// The override is honored only when the deployment allows it.
	override := requestBody.Override && config.OverrideAllowed()

	result, err := wiz.Submit(r.Context(), override)
	if err != nil {
		if errors.Is(err, ErrUnresolvedConflicts) || errors.Is(err, ErrAvailabilityUnproven) {
			// Submission refused; force the conflict view open on the client.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(result)
			return
		}
		writeWizardError(w, r, err)
		return
	}

	token := middleware.GetSessionToken(r.Context())
	h.sessions.Delete(token)
	middleware.WriteAPISuccess(w, r, result)
}

// writeWizardError maps domain errors onto API error responses.
func writeWizardError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnknownProduct):
		middleware.WriteAPIError(w, r, http.StatusNotFound, "unknown_product", err.Error(), "")
	case errors.Is(err, cart.ErrItemNotFound):
		middleware.WriteAPIError(w, r, http.StatusNotFound, "item_not_found", err.Error(), "")
	case errors.Is(err, ErrClientRequired), errors.Is(err, ErrMetadataRequired),
		errors.Is(err, ErrEmptyCart):
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "validation_failed", err.Error(), "")
	case errors.Is(err, substitution.ErrNoDraft), errors.Is(err, substitution.ErrEmptyResource):
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_substitution", err.Error(), "")
	case errors.Is(err, ErrAlreadySubmitted):
		middleware.WriteAPIError(w, r, http.StatusConflict, "already_submitted", err.Error(), "")
	default:
		logger.LogHTTPError(r, http.StatusInternalServerError, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error",
			"An internal error occurred", err.Error())
	}
}
