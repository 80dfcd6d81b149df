package conflict

import (
	"context"
	"fmt"
	"time"
)

// ResourceKind distinguishes single equipment items from pre-built kits.
type ResourceKind string

const (
	KindItem ResourceKind = "item"
	KindKit  ResourceKind = "kit"
)

// ResourceRef identifies the unit of conflict and substitution.
type ResourceRef struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
}

// Key renders a stable map key. Only used for JSON and logging; Go code
// indexes maps by the struct itself so separator characters in ids can
// never collide.
func (r ResourceRef) Key() string {
	return fmt.Sprintf("%s|%s", r.Kind, r.ID)
}

func (r ResourceRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// TimeWindow is the event window availability is checked against.
// Owned by the offer's event metadata, never by the resolver.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ReservationOverlap describes a competing reservation inside the window.
type ReservationOverlap struct {
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	CompetingEventName string    `json:"competing_event_name"`
}

// AlternativeResource is a read-only suggestion attached to a ConflictRow.
type AlternativeResource struct {
	Resource     ResourceRef `json:"resource"`
	Name         string      `json:"name"`
	TotalQty     int         `json:"total_qty"`
	ReservedQty  int         `json:"reserved_qty"`
	AvailableQty int         `json:"available_qty"`
}

// ConflictRow reports one resource whose demand exceeds what remains
// available in the event window. Rows are produced fresh on every check
// and replaced wholesale, never mutated.
type ConflictRow struct {
	Resource                ResourceRef           `json:"resource"`
	Name                    string                `json:"name"`
	RequiredQty             int                   `json:"required_qty"`
	TotalQty                int                   `json:"total_qty"`
	ReservedQty             int                   `json:"reserved_qty"`
	AvailableQty            int                   `json:"available_qty"`
	ShortageQty             int                   `json:"shortage_qty"`
	ConflictingReservations []ReservationOverlap  `json:"conflicting_reservations,omitempty"`
	EarliestFreeAt          *time.Time            `json:"earliest_free_at,omitempty"`
	Alternatives            []AlternativeResource `json:"alternatives,omitempty"`
	CheckError              bool                  `json:"check_error,omitempty"`
}

// Substitution is a resource replacement forwarded to the oracle. Committed
// substitutions and still-open drafts both arrive here; the resolver does
// not care which layer a substitution came from.
type Substitution struct {
	From ResourceRef `json:"from_resource"`
	To   ResourceRef `json:"to_resource"`
	Qty  int         `json:"qty"`
}

// RequestItem is the projection of a cart line the oracle understands.
// Custom (free-text) lines never become request items.
type RequestItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CheckRequest is the full availability question posed to the oracle.
type CheckRequest struct {
	EventID       string         `json:"event_id"`
	Window        TimeWindow     `json:"time_window"`
	Items         []RequestItem  `json:"items"`
	Substitutions []Substitution `json:"substitutions,omitempty"`
}

// Oracle is the external availability authority. Implementations must be
// read-only against reservation state; an empty row slice means the cart
// is fully available.
type Oracle interface {
	CheckAvailability(ctx context.Context, req CheckRequest) ([]ConflictRow, error)
}
