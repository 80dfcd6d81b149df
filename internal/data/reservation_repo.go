package data

import (
	"database/sql"
	"fmt"
	"time"
)

// =============================================================================
// RESOURCE / RESERVATION REPOSITORY
// =============================================================================

// ReservationRepository serves the availability oracle: resource totals,
// overlapping reservations for a window, and alternative-group lookups.
// All reads, no writes from the wizard path.
type ReservationRepository struct {
	db *sql.DB
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{db: db}
}

// GetResource returns one resource row.
func (r *ReservationRepository) GetResource(kind, resourceID string) (*Resource, error) {
	const stmt = `
		SELECT kind, resource_id, name, total_qty, alternative_group
		FROM resources WHERE kind = ? AND resource_id = ?`

	var res Resource
	err := QueryRowDB(stmt, kind, resourceID).Scan(
		&res.Kind, &res.ID, &res.Name, &res.TotalQty, &res.AlternativeGroup,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resource %s/%s: %w", kind, resourceID, err)
	}
	return &res, nil
}

// GetAlternatives returns the other members of a resource's alternative
// group, excluding the resource itself. Resources with an empty group
// have no alternatives.
func (r *ReservationRepository) GetAlternatives(res Resource) ([]Resource, error) {
	if res.AlternativeGroup == "" {
		return nil, nil
	}

	const stmt = `
		SELECT kind, resource_id, name, total_qty, alternative_group
		FROM resources
		WHERE alternative_group = ? AND NOT (kind = ? AND resource_id = ?)
		ORDER BY name`

	rows, err := QueryDB(stmt, res.AlternativeGroup, res.Kind, res.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alternatives: %w", err)
	}
	defer rows.Close()

	var result []Resource
	for rows.Next() {
		var alt Resource
		if err := rows.Scan(&alt.Kind, &alt.ID, &alt.Name, &alt.TotalQty, &alt.AlternativeGroup); err != nil {
			return nil, fmt.Errorf("failed to scan alternative row: %w", err)
		}
		result = append(result, alt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alternative rows: %w", err)
	}
	return result, nil
}

// OverlappingReservations returns every reservation of a resource that
// intersects the window, ordered by window start. Two windows overlap
// when each starts before the other ends.
func (r *ReservationRepository) OverlappingReservations(kind, resourceID string, start, end time.Time) ([]Reservation, error) {
	const stmt = `
		SELECT reservation_id, resource_kind, resource_id, qty, window_start, window_end, event_name
		FROM reservations
		WHERE resource_kind = ? AND resource_id = ?
		  AND window_start < ? AND window_end > ?
		ORDER BY window_start`

	rows, err := QueryDB(stmt, kind, resourceID, formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping reservations: %w", err)
	}
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservation rows: %w", err)
	}
	return result, nil
}

// InsertResource adds or replaces one resource row. Used by the seeder
// and by tests.
func (r *ReservationRepository) InsertResource(res Resource) error {
	const stmt = `
		INSERT OR REPLACE INTO resources (kind, resource_id, name, total_qty, alternative_group)
		VALUES (?, ?, ?, ?, ?)`

	_, err := ExecDB(stmt, res.Kind, res.ID, res.Name, res.TotalQty, res.AlternativeGroup)
	if err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

// InsertReservation records a reservation. Used by the seeder and tests;
// the wizard never writes reservations.
func (r *ReservationRepository) InsertReservation(res Reservation) error {
	const stmt = `
		INSERT INTO reservations (resource_kind, resource_id, qty, window_start, window_end, event_name)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := ExecDB(stmt,
		res.ResourceKind, res.ResourceID, res.Qty,
		formatTime(res.WindowStart), formatTime(res.WindowEnd), res.EventName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func scanReservation(rows *sql.Rows) (*Reservation, error) {
	var res Reservation
	var windowStart, windowEnd string

	err := rows.Scan(
		&res.ID, &res.ResourceKind, &res.ResourceID, &res.Qty,
		&windowStart, &windowEnd, &res.EventName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reservation row: %w", err)
	}

	if res.WindowStart, err = parseTime(windowStart); err != nil {
		return nil, fmt.Errorf("failed to parse reservation window start: %w", err)
	}
	if res.WindowEnd, err = parseTime(windowEnd); err != nil {
		return nil, fmt.Errorf("failed to parse reservation window end: %w", err)
	}
	return &res, nil
}
