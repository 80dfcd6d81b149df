package data

import (
	"database/sql"
	"fmt"
)

// =============================================================================
// CLIENT REPOSITORY
// =============================================================================

// ClientRepository is the read-only client lookup backing the wizard's
// client selection step.
type ClientRepository struct {
	db *sql.DB
}

func NewClientRepository() *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) GetByID(clientID string) (*Client, error) {
	const stmt = `SELECT client_id, name, email, company FROM clients WHERE client_id = ?`

	var c Client
	var email, company sql.NullString
	err := QueryRowDB(stmt, clientID).Scan(&c.ID, &c.Name, &email, &company)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client %s: %w", clientID, err)
	}
	c.Email = email.String
	c.Company = company.String
	return &c, nil
}

func (r *ClientRepository) List() ([]Client, error) {
	const stmt = `SELECT client_id, name, email, company FROM clients ORDER BY name`

	rows, err := QueryDB(stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		var c Client
		var email, company sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &email, &company); err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		c.Email = email.String
		c.Company = company.String
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating client rows: %w", err)
	}
	return result, nil
}

// Insert adds a client. Used by the seeder and tests.
func (r *ClientRepository) Insert(c Client) error {
	const stmt = `INSERT OR REPLACE INTO clients (client_id, name, email, company) VALUES (?, ?, ?, ?)`

	_, err := ExecDB(stmt, c.ID, c.Name, c.Email, c.Company)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}
