package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    aliases TEXT,
    promoted_from TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS matrix_cells (
    entity TEXT NOT NULL,
    artifact_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'active', 'exhausted')),
    priority REAL NOT NULL DEFAULT 1.0,
    sources TEXT,
    last_run TEXT,
    position INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (entity, artifact_type)
);

CREATE TABLE IF NOT EXISTS discoveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    value TEXT NOT NULL,
    display TEXT NOT NULL,
    subtype TEXT NOT NULL,
    entity TEXT NOT NULL,
    score REAL NOT NULL,
    first_seen TEXT DEFAULT (datetime('now')),
    last_seen TEXT DEFAULT (datetime('now')),
    UNIQUE (value, subtype)
);

CREATE TABLE IF NOT EXISTS discovery_sources (
    discovery_id INTEGER NOT NULL REFERENCES discoveries(id),
    source TEXT NOT NULL,
    PRIMARY KEY (discovery_id, source)
);

CREATE TABLE IF NOT EXISTS objective_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity TEXT NOT NULL,
    artifact_type TEXT NOT NULL,
    cell_status_after TEXT NOT NULL,
    discovery_count INTEGER DEFAULT 0,
    failed_sources TEXT,
    flagged INTEGER DEFAULT 0,
    body_markdown TEXT,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_discoveries_entity ON discoveries(entity);
CREATE INDEX IF NOT EXISTS idx_discoveries_score ON discoveries(score);
CREATE INDEX IF NOT EXISTS idx_reports_entity ON objective_reports(entity);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
