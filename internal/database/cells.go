package database

import (
	"encoding/json"
	"fmt"
)

// SaveCell inserts or replaces the persisted state of one matrix cell.
func (db *DB) SaveCell(c CellRow) error {
	sourceJSON, err := json.Marshal(c.Sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO matrix_cells (entity, artifact_type, status, priority, sources, last_run, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Entity, c.ArtifactType, c.Status, c.Priority, string(sourceJSON), c.LastRun, c.Position,
	)
	return err
}

// GetAllCells returns every matrix cell in insertion order.
func (db *DB) GetAllCells() ([]CellRow, error) {
	rows, err := db.conn.Query(
		`SELECT entity, artifact_type, status, priority, sources, last_run, position
		FROM matrix_cells ORDER BY position`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []CellRow
	for rows.Next() {
		var c CellRow
		var sourceJSON *string
		if err := rows.Scan(&c.Entity, &c.ArtifactType, &c.Status, &c.Priority, &sourceJSON, &c.LastRun, &c.Position); err != nil {
			return nil, err
		}
		if sourceJSON != nil {
			if err := json.Unmarshal([]byte(*sourceJSON), &c.Sources); err != nil {
				c.Sources = nil
			}
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// ResetCells drops all matrix cells. Used only by explicit reconfiguration.
func (db *DB) ResetCells() error {
	_, err := db.conn.Exec("DELETE FROM matrix_cells")
	return err
}
