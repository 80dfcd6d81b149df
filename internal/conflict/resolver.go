// internal/conflict/resolver.go
package conflict

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opsdesk/internal/cart"
	"opsdesk/internal/logger"
	"opsdesk/internal/metrics"
)

// Resolver translates the current cart plus substitutions into an oracle
// request and holds the last known conflict rows. Every check carries a
// strictly increasing sequence number; a response is applied only while
// its sequence is still the latest issued, so a slow early response can
// never overwrite a newer one regardless of arrival order.
type Resolver struct {
	oracle Oracle

	mu       sync.Mutex
	issued   uint64
	inFlight int
	rows     []ConflictRow
	failed   bool
	checked  bool
}

func NewResolver(oracle Oracle) *Resolver {
	return &Resolver{oracle: oracle}
}

// BuildRequest projects cart lines onto the oracle request shape. Custom
// lines carry no equipment requirement and are dropped.
func BuildRequest(eventID string, window TimeWindow, items []cart.LineItem, subs []Substitution) CheckRequest {
	req := CheckRequest{
		EventID:       eventID,
		Window:        window,
		Substitutions: subs,
	}
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		req.Items = append(req.Items, RequestItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return req
}

// Check runs one availability check. It returns the conflict rows now on
// display, which are this check's rows unless a newer check superseded it
// while the oracle call was in flight.
//
// On oracle failure the resolver does not assume availability: it keeps
// the previously known conflicts and prepends a synthetic error row, so
// the failure is visible and submission stays blocked.
func (r *Resolver) Check(ctx context.Context, eventID string, window TimeWindow, items []cart.LineItem, subs []Substitution) []ConflictRow {
	req := BuildRequest(eventID, window, items, subs)

	r.mu.Lock()
	r.issued++
	seq := r.issued
	r.inFlight++
	r.mu.Unlock()

	metrics.ConflictChecksTotal.Inc()
	start := time.Now()
	rows, err := r.oracle.CheckAvailability(ctx, req)
	metrics.ConflictCheckDuration.Observe(time.Since(start).Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--

	if seq != r.issued {
		// A later mutation already issued a newer check; this response is
		// stale and must not touch the displayed rows.
		metrics.StaleCheckResponses.Inc()
		logger.LogDebug("Discarding stale conflict response (seq %d, latest %d)", seq, r.issued)
		return r.snapshotLocked()
	}

	if err != nil {
		metrics.ConflictCheckFailures.Inc()
		logger.LogError("Availability check failed for event %s: %v", eventID, err)
		r.rows = append([]ConflictRow{errorRow(err)}, withoutErrorRows(r.rows)...)
		r.failed = true
		r.checked = true
		return r.snapshotLocked()
	}

	r.rows = rows
	r.failed = false
	r.checked = true
	return r.snapshotLocked()
}

// Rows returns the latest applied conflict rows.
func (r *Resolver) Rows() []ConflictRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Busy reports whether a check is currently in flight.
func (r *Resolver) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight > 0
}

// Checked reports whether at least one check has completed.
func (r *Resolver) Checked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checked
}

// HasConflicts reports whether the latest rows contain an unresolved
// shortage or a failed check. A failed check counts as conflicted: the
// resolver never assumes availability it could not verify.
func (r *Resolver) HasConflicts() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ShortageQty > 0 || row.CheckError {
			return true
		}
	}
	return false
}

// LastCheckFailed reports whether the most recent applied check errored.
func (r *Resolver) LastCheckFailed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

func (r *Resolver) snapshotLocked() []ConflictRow {
	out := make([]ConflictRow, len(r.rows))
	copy(out, r.rows)
	return out
}

func errorRow(err error) ConflictRow {
	return ConflictRow{
		Resource:   ResourceRef{Kind: "check", ID: "availability"},
		Name:       fmt.Sprintf("Availability check failed: %v", err),
		CheckError: true,
	}
}

func withoutErrorRows(rows []ConflictRow) []ConflictRow {
	out := rows[:0:0]
	for _, row := range rows {
		if !row.CheckError {
			out = append(out, row)
		}
	}
	return out
}
