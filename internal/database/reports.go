package database

import (
	"database/sql"
	"encoding/json"
)

// InsertReport stores a per-objective report record.
func (db *DB) InsertReport(r ObjectiveReport) (int64, error) {
	var failedJSON *string
	if len(r.FailedSources) > 0 {
		data, err := json.Marshal(r.FailedSources)
		if err != nil {
			return 0, err
		}
		s := string(data)
		failedJSON = &s
	}

	flagged := 0
	if r.Flagged {
		flagged = 1
	}

	result, err := db.conn.Exec(
		`INSERT INTO objective_reports
		(entity, artifact_type, cell_status_after, discovery_count, failed_sources, flagged, body_markdown)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Entity, r.ArtifactType, r.CellStatusAfter, r.DiscoveryCount, failedJSON, flagged, r.BodyMarkdown,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetReport returns a single report by ID, or nil.
func (db *DB) GetReport(id int64) (*ObjectiveReport, error) {
	row := db.conn.QueryRow(
		`SELECT id, entity, artifact_type, cell_status_after, discovery_count, failed_sources, flagged, body_markdown, generated_at
		FROM objective_reports WHERE id = ?`, id,
	)
	r, err := scanReport(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRecentReports returns the most recent reports, newest first.
func (db *DB) GetRecentReports(limit int) ([]ObjectiveReport, error) {
	rows, err := db.conn.Query(
		`SELECT id, entity, artifact_type, cell_status_after, discovery_count, failed_sources, flagged, body_markdown, generated_at
		FROM objective_reports ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []ObjectiveReport
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func scanReport(scan func(...any) error) (*ObjectiveReport, error) {
	var r ObjectiveReport
	var failedJSON *string
	var flagged int
	if err := scan(&r.ID, &r.Entity, &r.ArtifactType, &r.CellStatusAfter, &r.DiscoveryCount,
		&failedJSON, &flagged, &r.BodyMarkdown, &r.GeneratedAt); err != nil {
		return nil, err
	}
	r.Flagged = flagged != 0
	if failedJSON != nil {
		if err := json.Unmarshal([]byte(*failedJSON), &r.FailedSources); err != nil {
			r.FailedSources = nil
		}
	}
	return &r, nil
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM entities", &s.Entities},
		{"SELECT COUNT(*) FROM entities WHERE promoted_from IS NOT NULL", &s.PromotedEntities},
		{"SELECT COUNT(*) FROM matrix_cells", &s.Cells},
		{"SELECT COUNT(*) FROM matrix_cells WHERE status = 'pending'", &s.PendingCells},
		{"SELECT COUNT(*) FROM matrix_cells WHERE status = 'exhausted'", &s.ExhaustedCells},
		{"SELECT COUNT(*) FROM discoveries", &s.Discoveries},
		{"SELECT COUNT(*) FROM discoveries WHERE score >= 0.8", &s.HighValue},
		{"SELECT COUNT(*) FROM objective_reports", &s.Reports},
		{"SELECT COUNT(*) FROM objective_reports WHERE flagged = 1", &s.FlaggedReports},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
