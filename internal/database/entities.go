package database

import (
	"database/sql"
	"encoding/json"
)

// InsertEntity creates an entity if it does not already exist.
// Returns the ID, or 0 if the name was already present.
func (db *DB) InsertEntity(name string, aliases []string, promotedFrom *string) (int64, error) {
	var aliasJSON *string
	if len(aliases) > 0 {
		data, err := json.Marshal(aliases)
		if err != nil {
			return 0, err
		}
		s := string(data)
		aliasJSON = &s
	}

	result, err := db.conn.Exec(
		`INSERT INTO entities (name, aliases, promoted_from) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		name, aliasJSON, promotedFrom,
	)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil || affected == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// GetEntity returns a single entity by name, or nil.
func (db *DB) GetEntity(name string) (*Entity, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, aliases, promoted_from, created_at FROM entities WHERE name = ?", name,
	)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetAllEntities returns every entity in creation order.
func (db *DB) GetAllEntities() ([]Entity, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, aliases, promoted_from, created_at FROM entities ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var aliasJSON *string
		if err := rows.Scan(&e.ID, &e.Name, &aliasJSON, &e.PromotedFrom, &e.CreatedAt); err != nil {
			return nil, err
		}
		decodeAliases(&e, aliasJSON)
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// AppendAlias adds an alias to an entity. Identity is immutable; aliases
// only accumulate.
func (db *DB) AppendAlias(name, alias string) error {
	e, err := db.GetEntity(name)
	if err != nil || e == nil {
		return err
	}
	for _, a := range e.Aliases {
		if a == alias {
			return nil
		}
	}
	data, err := json.Marshal(append(e.Aliases, alias))
	if err != nil {
		return err
	}
	_, err = db.conn.Exec("UPDATE entities SET aliases = ? WHERE name = ?", string(data), name)
	return err
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var aliasJSON *string
	if err := row.Scan(&e.ID, &e.Name, &aliasJSON, &e.PromotedFrom, &e.CreatedAt); err != nil {
		return nil, err
	}
	decodeAliases(&e, aliasJSON)
	return &e, nil
}

func decodeAliases(e *Entity, aliasJSON *string) {
	if aliasJSON == nil {
		return
	}
	if err := json.Unmarshal([]byte(*aliasJSON), &e.Aliases); err != nil {
		e.Aliases = nil
	}
}
