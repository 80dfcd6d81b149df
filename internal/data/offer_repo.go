package data

import (
	"database/sql"
	"fmt"
	"time"
)

// =============================================================================
// OFFER REPOSITORY
// =============================================================================

// OfferRepository persists offers after the final conflict check passed
// (or was explicitly overridden). The wizard only ever inserts; edits to
// submitted offers happen elsewhere.
type OfferRepository struct {
	db *sql.DB
}

func NewOfferRepository() *OfferRepository {
	return &OfferRepository{db: db}
}

func (r *OfferRepository) Insert(rec OfferRecord) error {
	const stmt = `
		INSERT INTO offers (
			offer_id, client_id, event_id, event_name, window_start, window_end,
			items_json, substitutions_json, total_amount, override_used, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := ExecDB(stmt,
		rec.OfferID, rec.ClientID, rec.EventID, rec.EventName,
		formatTime(rec.WindowStart), formatTime(rec.WindowEnd),
		rec.ItemsJSON, rec.SubstitutionsJSON,
		rec.TotalAmount, rec.OverrideUsed, formatTime(rec.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}
	return nil
}

// InsertSnapshot marshals the item and substitution snapshots into the
// record before inserting it.
func (r *OfferRepository) InsertSnapshot(rec OfferRecord, items interface{}, subs interface{}) error {
	itemsJSON, err := marshalJSON(items)
	if err != nil {
		return fmt.Errorf("failed to marshal offer items: %w", err)
	}
	subsJSON, err := marshalJSON(subs)
	if err != nil {
		return fmt.Errorf("failed to marshal offer substitutions: %w", err)
	}
	rec.ItemsJSON = itemsJSON
	rec.SubstitutionsJSON = subsJSON
	return r.Insert(rec)
}

// DecodeItems unmarshals the stored item snapshot into v.
func (rec *OfferRecord) DecodeItems(v interface{}) error {
	return unmarshalJSON(rec.ItemsJSON, v)
}

// DecodeSubstitutions unmarshals the stored substitution snapshot into v.
func (rec *OfferRecord) DecodeSubstitutions(v interface{}) error {
	return unmarshalJSON(rec.SubstitutionsJSON, v)
}

func (r *OfferRepository) GetByID(offerID string) (*OfferRecord, error) {
	const stmt = `
		SELECT offer_id, client_id, event_id, event_name, window_start, window_end,
			items_json, substitutions_json, total_amount, override_used, submitted_at
		FROM offers WHERE offer_id = ?`

	row := QueryRowDB(stmt, offerID)
	return scanOffer(row)
}

func (r *OfferRepository) ListByClient(clientID string) ([]OfferRecord, error) {
	const stmt = `
		SELECT offer_id, client_id, event_id, event_name, window_start, window_end,
			items_json, substitutions_json, total_amount, override_used, submitted_at
		FROM offers WHERE client_id = ? ORDER BY submitted_at DESC`

	rows, err := QueryDB(stmt, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers by client: %w", err)
	}
	defer rows.Close()

	var result []OfferRecord
	for rows.Next() {
		var rec OfferRecord
		var windowStart, windowEnd, submittedAt string
		var eventName sql.NullString
		err := rows.Scan(
			&rec.OfferID, &rec.ClientID, &rec.EventID, &eventName,
			&windowStart, &windowEnd, &rec.ItemsJSON, &rec.SubstitutionsJSON,
			&rec.TotalAmount, &rec.OverrideUsed, &submittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer row: %w", err)
		}
		rec.EventName = eventName.String
		if rec.WindowStart, rec.WindowEnd, rec.SubmittedAt, err = parseOfferTimes(windowStart, windowEnd, submittedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offer rows: %w", err)
	}
	return result, nil
}

func scanOffer(row *sql.Row) (*OfferRecord, error) {
	var rec OfferRecord
	var windowStart, windowEnd, submittedAt string
	var eventName sql.NullString

	err := row.Scan(
		&rec.OfferID, &rec.ClientID, &rec.EventID, &eventName,
		&windowStart, &windowEnd, &rec.ItemsJSON, &rec.SubstitutionsJSON,
		&rec.TotalAmount, &rec.OverrideUsed, &submittedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan offer row: %w", err)
	}
	rec.EventName = eventName.String
	if rec.WindowStart, rec.WindowEnd, rec.SubmittedAt, err = parseOfferTimes(windowStart, windowEnd, submittedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func parseOfferTimes(windowStart, windowEnd, submittedAt string) (time.Time, time.Time, time.Time, error) {
	ws, err := parseTime(windowStart)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, fmt.Errorf("failed to parse offer window start: %w", err)
	}
	we, err := parseTime(windowEnd)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, fmt.Errorf("failed to parse offer window end: %w", err)
	}
	sa, err := parseTime(submittedAt)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, fmt.Errorf("failed to parse offer submitted_at: %w", err)
	}
	return ws, we, sa, nil
}
