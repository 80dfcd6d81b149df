// internal/availability/oracle.go
package availability

import (
	"context"
	"sort"
	"time"

	"opsdesk/internal/catalog"
	"opsdesk/internal/conflict"
	"opsdesk/internal/data"
	"opsdesk/internal/logger"
)

// Service is the in-process availability oracle. It computes, for one
// event window, whether the resource demand implied by the requested
// products (after substitutions) fits into what reservations leave free.
// It only reads reservation state and is safe to call repeatedly with
// identical inputs.
type Service struct {
	catalog      *catalog.Service
	reservations *data.ReservationRepository
}

func NewService(cat *catalog.Service, repo *data.ReservationRepository) *Service {
	return &Service{catalog: cat, reservations: repo}
}

// CheckAvailability implements conflict.Oracle. An empty result means the
// whole request is satisfiable inside the window.
func (s *Service) CheckAvailability(ctx context.Context, req conflict.CheckRequest) ([]conflict.ConflictRow, error) {
	demand := s.catalog.RequiredResources(req.Items)
	applySubstitutions(demand, req.Substitutions)

	// Deterministic resource order keeps repeated checks with unchanged
	// inputs byte-for-byte identical.
	refs := make([]conflict.ResourceRef, 0, len(demand))
	for ref, qty := range demand {
		if qty > 0 {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key() < refs[j].Key() })

	rows := []conflict.ConflictRow{}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, conflicted, err := s.checkResource(ref, demand[ref], req.Window)
		if err != nil {
			return nil, err
		}
		if conflicted {
			rows = append(rows, row)
		}
	}

	logger.LogDebug("Availability check for event %s: %d resources demanded, %d conflicted",
		req.EventID, len(refs), len(rows))
	return rows, nil
}

// applySubstitutions shifts demand from a replaced resource to its
// substitute, capped at the demand actually present.
func applySubstitutions(demand map[conflict.ResourceRef]int, subs []conflict.Substitution) {
	for _, sub := range subs {
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
}

func (s *Service) checkResource(ref conflict.ResourceRef, required int, window conflict.TimeWindow) (conflict.ConflictRow, bool, error) {
	res, err := s.reservations.GetResource(string(ref.Kind), ref.ID)
	if err != nil {
		return conflict.ConflictRow{}, false, err
	}

	if res == nil {
		// Demand against a resource the store does not know cannot be
		// satisfied; report it as a full shortage rather than hiding it.
		return conflict.ConflictRow{
			Resource:    ref,
			Name:        "Unknown resource " + ref.ID,
			RequiredQty: required,
			ShortageQty: required,
		}, true, nil
	}

	overlaps, err := s.reservations.OverlappingReservations(res.Kind, res.ID, window.Start, window.End)
	if err != nil {
		return conflict.ConflictRow{}, false, err
	}

	reserved := 0
	var conflicting []conflict.ReservationOverlap
	var earliestFree *time.Time
	for _, r := range overlaps {
		reserved += r.Qty
		conflicting = append(conflicting, conflict.ReservationOverlap{
			WindowStart:        r.WindowStart,
			WindowEnd:          r.WindowEnd,
			CompetingEventName: r.EventName,
		})
		if earliestFree == nil || r.WindowEnd.After(*earliestFree) {
			end := r.WindowEnd
			earliestFree = &end
		}
	}

	available := res.TotalQty - reserved
	if available < 0 {
		available = 0
	}
	shortage := required - available
	if shortage <= 0 {
		return conflict.ConflictRow{}, false, nil
	}

	alternatives, err := s.alternativesFor(*res, window)
	if err != nil {
		return conflict.ConflictRow{}, false, err
	}

	return conflict.ConflictRow{
		Resource:                ref,
		Name:                    res.Name,
		RequiredQty:             required,
		TotalQty:                res.TotalQty,
		ReservedQty:             reserved,
		AvailableQty:            available,
		ShortageQty:             shortage,
		ConflictingReservations: conflicting,
		EarliestFreeAt:          earliestFree,
		Alternatives:            alternatives,
	}, true, nil
}

// alternativesFor computes current availability for every other member of
// the resource's alternative group, most available first.
func (s *Service) alternativesFor(res data.Resource, window conflict.TimeWindow) ([]conflict.AlternativeResource, error) {
	candidates, err := s.reservations.GetAlternatives(res)
	if err != nil {
		return nil, err
	}

	var out []conflict.AlternativeResource
	for _, cand := range candidates {
		overlaps, err := s.reservations.OverlappingReservations(cand.Kind, cand.ID, window.Start, window.End)
		if err != nil {
			return nil, err
		}
		reserved := 0
		for _, r := range overlaps {
			reserved += r.Qty
		}
		available := cand.TotalQty - reserved
		if available < 0 {
			available = 0
		}
		out = append(out, conflict.AlternativeResource{
			Resource:     conflict.ResourceRef{Kind: conflict.ResourceKind(cand.Kind), ID: cand.ID},
			Name:         cand.Name,
			TotalQty:     cand.TotalQty,
			ReservedQty:  reserved,
			AvailableQty: available,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AvailableQty > out[j].AvailableQty
	})
	return out, nil
}
