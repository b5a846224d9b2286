package kgraph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fabflow/internal/planner"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS tools (
    tool_id     TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    model_ref   TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'online',
    wafer_size  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS capabilities (
    tool_id     TEXT NOT NULL,
    category    TEXT NOT NULL,
    material_id INTEGER NOT NULL,
    UNIQUE(tool_id, category, material_id),
    FOREIGN KEY (tool_id) REFERENCES tools(tool_id)
);
CREATE INDEX IF NOT EXISTS idx_capabilities_lookup ON capabilities(category, material_id);

CREATE TABLE IF NOT EXISTS incompatibilities (
    tool_id     TEXT NOT NULL,
    material_id INTEGER NOT NULL,
    UNIQUE(tool_id, material_id),
    FOREIGN KEY (tool_id) REFERENCES tools(tool_id)
);
CREATE INDEX IF NOT EXISTS idx_incompat_tool ON incompatibilities(tool_id);
`

// #endregion schema

// #region store

// Store is the SQLite-backed knowledge store of tools, their process
// capabilities, and material incompatibilities. It implements
// planner.ToolCatalog.
type Store struct {
	db *sql.DB
}

// NewStore creates tables and returns a Store over an opened handle. The
// caller owns the handle's lifecycle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("kgraph schema: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion store

// #region find-capable-tools

// FindCapableTools returns online tools capable of performing category on
// material at the given wafer size, ordered by tool id so results are stable
// for identical inputs.
func (s *Store) FindCapableTools(ctx context.Context, category planner.ProcessCategory, material uint8, waferSize int) ([]planner.Tool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.tool_id, t.name, t.model_ref
		 FROM tools t
		 JOIN capabilities c ON c.tool_id = t.tool_id
		 WHERE c.category = ?
		   AND c.material_id = ?
		   AND t.status = 'online'
		   AND t.wafer_size = ?
		 ORDER BY t.tool_id`,
		string(category), int(material), waferSize,
	)
	if err != nil {
		return nil, fmt.Errorf("find capable tools: %w", err)
	}
	defer rows.Close()

	var tools []planner.Tool
	for rows.Next() {
		var t planner.Tool
		if err := rows.Scan(&t.ToolID, &t.Name, &t.ModelRef); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// #endregion find-capable-tools

// #region check-incompatibility

// CheckIncompatibility reports whether the tool has a declared adverse
// relationship with any of the listed materials.
func (s *Store) CheckIncompatibility(ctx context.Context, toolID string, materials []uint8) (bool, error) {
	if len(materials) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(materials)), ",")
	args := make([]interface{}, 0, len(materials)+1)
	args = append(args, toolID)
	for _, m := range materials {
		args = append(args, int(m))
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incompatibilities
		 WHERE tool_id = ? AND material_id IN (`+placeholders+`)`,
		args...,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check incompatibility: %w", err)
	}
	return count > 0, nil
}

// #endregion check-incompatibility

// #region mutators

// AddTool inserts or replaces a tool record.
func (s *Store) AddTool(toolID, name, modelRef, status string, waferSize int) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO tools (tool_id, name, model_ref, status, wafer_size)
		 VALUES (?, ?, ?, ?, ?)`,
		toolID, name, modelRef, status, waferSize,
	)
	return err
}

// AddCapability declares that a tool can perform category on material.
func (s *Store) AddCapability(toolID string, category planner.ProcessCategory, material uint8) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO capabilities (tool_id, category, material_id) VALUES (?, ?, ?)`,
		toolID, string(category), int(material),
	)
	return err
}

// AddIncompatibility declares an adverse relationship between a tool and a
// material.
func (s *Store) AddIncompatibility(toolID string, material uint8) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO incompatibilities (tool_id, material_id) VALUES (?, ?)`,
		toolID, int(material),
	)
	return err
}

// #endregion mutators
