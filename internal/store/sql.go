package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golovatskygroup/mcp-toolkit/internal/schema"
	"github.com/golovatskygroup/mcp-toolkit/internal/tool"
)

// Dialect names a supported SQL driver.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

var createTable = map[Dialect]string{
	DialectSQLite: `
	CREATE TABLE IF NOT EXISTS custom_tools (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		kind TEXT NOT NULL,
		body_schema TEXT NOT NULL DEFAULT '',
		query_schema TEXT NOT NULL DEFAULT '',
		script TEXT NOT NULL DEFAULT '',
		api TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	DialectMySQL: `
	CREATE TABLE IF NOT EXISTS custom_tools (
		name VARCHAR(64) PRIMARY KEY,
		description TEXT NOT NULL,
		kind VARCHAR(16) NOT NULL,
		body_schema MEDIUMTEXT NOT NULL,
		query_schema MEDIUMTEXT NOT NULL,
		script MEDIUMTEXT NOT NULL,
		api TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

var upsertQuery = map[Dialect]string{
	DialectSQLite: `
	INSERT INTO custom_tools (name, description, kind, body_schema, query_schema, script, api, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		description = excluded.description,
		kind = excluded.kind,
		body_schema = excluded.body_schema,
		query_schema = excluded.query_schema,
		script = excluded.script,
		api = excluded.api,
		updated_at = excluded.updated_at`,
	DialectMySQL: `
	INSERT INTO custom_tools (name, description, kind, body_schema, query_schema, script, api, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		description = VALUES(description),
		kind = VALUES(kind),
		body_schema = VALUES(body_schema),
		query_schema = VALUES(query_schema),
		script = VALUES(script),
		api = VALUES(api),
		updated_at = VALUES(updated_at)`,
}

// SQLStore keeps descriptors in the custom_tools table of a relational
// database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database and creates the table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	ddl, ok := createTable[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// List returns every stored descriptor ordered by name.
func (s *SQLStore) List(ctx context.Context) ([]*tool.Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, kind, body_schema, query_schema, script, api
		FROM custom_tools
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools: %w", err)
	}
	defer rows.Close()

	var out []*tool.Descriptor
	for rows.Next() {
		var (
			d                   tool.Descriptor
			kind                string
			bodyJSON, queryJSON string
			apiJSON             string
		)
		if err := rows.Scan(&d.Name, &d.Description, &kind, &bodyJSON, &queryJSON, &d.Script, &apiJSON); err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		d.Kind = tool.Kind(kind)

		if d.BodySchema, err = decodeSchema(bodyJSON); err != nil {
			return nil, fmt.Errorf("tool %s: body schema: %w", d.Name, err)
		}
		if d.QuerySchema, err = decodeSchema(queryJSON); err != nil {
			return nil, fmt.Errorf("tool %s: query schema: %w", d.Name, err)
		}
		if apiJSON != "" {
			d.API = &tool.API{}
			if err := json.Unmarshal([]byte(apiJSON), d.API); err != nil {
				return nil, fmt.Errorf("tool %s: api: %w", d.Name, err)
			}
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Upsert inserts d or replaces the row with the same name.
func (s *SQLStore) Upsert(ctx context.Context, d *tool.Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	bodyJSON, err := encodeJSON(d.BodySchema)
	if err != nil {
		return fmt.Errorf("failed to marshal body schema: %w", err)
	}
	queryJSON, err := encodeJSON(d.QuerySchema)
	if err != nil {
		return fmt.Errorf("failed to marshal query schema: %w", err)
	}
	apiJSON, err := encodeJSON(d.API)
	if err != nil {
		return fmt.Errorf("failed to marshal api: %w", err)
	}

	_, err = s.db.ExecContext(ctx, upsertQuery[s.dialect],
		d.Name, d.Description, string(d.Kind), bodyJSON, queryJSON, d.Script, apiJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert tool: %w", err)
	}
	return nil
}

// Delete removes the named descriptor.
func (s *SQLStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM custom_tools WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", tool.ErrNotFound, name)
	}
	return nil
}

func decodeSchema(raw string) (*schema.Schema, error) {
	if raw == "" {
		return nil, nil
	}
	var s schema.Schema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// encodeJSON stores nil pointers as empty strings so the columns stay NOT NULL.
func encodeJSON[T any](v *T) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
