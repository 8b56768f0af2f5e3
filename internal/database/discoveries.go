package database

import (
	"database/sql"
	"fmt"
	"time"

	"narrahunt/internal/artifact"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// UpsertDiscovery merges a discovery into the store keyed by
// (value, subtype). Scores only increase, sources only accumulate, and the
// display form follows the highest-scoring occurrence. Returns the stored
// record and whether it was newly created.
func (db *DB) UpsertDiscovery(d artifact.Discovery) (*artifact.Discovery, bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var id int64
	var score float64
	var display string
	var created bool
	err = tx.QueryRow(
		"SELECT id, score, display FROM discoveries WHERE value = ? AND subtype = ?",
		d.Value, string(d.Subtype),
	).Scan(&id, &score, &display)

	switch {
	case err == sql.ErrNoRows:
		result, err := tx.Exec(
			`INSERT INTO discoveries (value, display, subtype, entity, score) VALUES (?, ?, ?, ?, ?)`,
			d.Value, d.Display, string(d.Subtype), d.Entity, d.Score,
		)
		if err != nil {
			return nil, false, fmt.Errorf("inserting discovery: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return nil, false, err
		}
		created = true
	case err != nil:
		return nil, false, err
	default:
		// Monotonic merge: never lower the score, extend last_seen forward.
		if d.Score > score {
			score = d.Score
			display = d.Display
		}
		if _, err := tx.Exec(
			`UPDATE discoveries SET score = ?, display = ?, last_seen = datetime('now') WHERE id = ?`,
			score, display, id,
		); err != nil {
			return nil, false, fmt.Errorf("merging discovery: %w", err)
		}
	}

	for _, src := range d.Sources {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO discovery_sources (discovery_id, source) VALUES (?, ?)`,
			id, src,
		); err != nil {
			return nil, false, fmt.Errorf("recording source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	stored, err := db.GetDiscovery(d.Value, d.Subtype)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// GetDiscovery returns the record for a (value, subtype) pair, or nil.
func (db *DB) GetDiscovery(value string, subtype artifact.Type) (*artifact.Discovery, error) {
	row := db.conn.QueryRow(
		`SELECT id, value, display, subtype, entity, score, first_seen, last_seen
		FROM discoveries WHERE value = ? AND subtype = ?`,
		value, string(subtype),
	)
	d, err := scanDiscovery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := db.loadSources(d); err != nil {
		return nil, err
	}
	return d, nil
}

// HighValue returns all discoveries at or above the threshold score,
// highest first.
func (db *DB) HighValue(threshold float64) ([]artifact.Discovery, error) {
	return db.queryDiscoveries(
		`SELECT id, value, display, subtype, entity, score, first_seen, last_seen
		FROM discoveries WHERE score >= ? ORDER BY score DESC, value ASC`,
		threshold,
	)
}

// GetDiscoveriesForEntity returns all discoveries tied to one entity.
func (db *DB) GetDiscoveriesForEntity(entity string) ([]artifact.Discovery, error) {
	return db.queryDiscoveries(
		`SELECT id, value, display, subtype, entity, score, first_seen, last_seen
		FROM discoveries WHERE entity = ? ORDER BY score DESC, value ASC`,
		entity,
	)
}

// GetAllDiscoveries returns every stored discovery, highest score first.
func (db *DB) GetAllDiscoveries() ([]artifact.Discovery, error) {
	return db.queryDiscoveries(
		`SELECT id, value, display, subtype, entity, score, first_seen, last_seen
		FROM discoveries ORDER BY score DESC, value ASC`,
	)
}

func (db *DB) queryDiscoveries(query string, args ...any) ([]artifact.Discovery, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var discoveries []artifact.Discovery
	for rows.Next() {
		d, err := scanDiscoveryRows(rows)
		if err != nil {
			return nil, err
		}
		discoveries = append(discoveries, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range discoveries {
		if err := db.loadSources(&discoveries[i]); err != nil {
			return nil, err
		}
	}
	return discoveries, nil
}

func (db *DB) loadSources(d *artifact.Discovery) error {
	rows, err := db.conn.Query(
		"SELECT source FROM discovery_sources WHERE discovery_id = ? ORDER BY source", d.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	d.Sources = nil
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return err
		}
		d.Sources = append(d.Sources, src)
	}
	return rows.Err()
}

func scanDiscovery(row *sql.Row) (*artifact.Discovery, error) {
	var d artifact.Discovery
	var subtype, firstSeen, lastSeen string
	if err := row.Scan(&d.ID, &d.Value, &d.Display, &subtype, &d.Entity, &d.Score, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	d.Subtype = artifact.Type(subtype)
	d.FirstSeen = parseTime(firstSeen)
	d.LastSeen = parseTime(lastSeen)
	return &d, nil
}

func scanDiscoveryRows(rows *sql.Rows) (*artifact.Discovery, error) {
	var d artifact.Discovery
	var subtype, firstSeen, lastSeen string
	if err := rows.Scan(&d.ID, &d.Value, &d.Display, &subtype, &d.Entity, &d.Score, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	d.Subtype = artifact.Type(subtype)
	d.FirstSeen = parseTime(firstSeen)
	d.LastSeen = parseTime(lastSeen)
	return &d, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
