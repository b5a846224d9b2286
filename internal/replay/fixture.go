package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"fabflow/internal/schematic"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// snapshot sequence, the tool catalog in force at the time, and the expected
// planning outcome.
type Fixture struct {
	Description string            `json:"description"`
	Wafer       FixtureWafer      `json:"wafer"`
	Catalog     []FixtureTool     `json:"catalog"`
	Snapshots   []FixtureSnapshot `json:"snapshots"`
	Expected    FixtureExpected   `json:"expected"`
}

// FixtureWafer is the starting wafer state, materials by registry name.
type FixtureWafer struct {
	Size      int      `json:"size"`
	Materials []string `json:"materials"`
}

// FixtureTool mirrors a knowledge-store tool with JSON tags.
type FixtureTool struct {
	ToolID       string              `json:"tool_id"`
	Name         string              `json:"name"`
	ModelRef     string              `json:"model_ref"`
	Status       string              `json:"status"`
	WaferSize    int                 `json:"wafer_size"`
	Capabilities []FixtureCapability `json:"capabilities"`
	Incompatible []string            `json:"incompatible"`
}

// FixtureCapability is one (category, material) a fixture tool supports.
type FixtureCapability struct {
	Category string `json:"category"`
	Material string `json:"material"`
}

// FixtureSnapshot is one material map, rows of material ids. Rows are ints in
// JSON to keep fixtures hand-editable.
type FixtureSnapshot struct {
	Rows [][]int `json:"rows"`
}

// FixtureExpected captures the expected terminal outcome of the replay.
type FixtureExpected struct {
	Status     string                `json:"status"`
	HaltReason string                `json:"halt_reason,omitempty"`
	Steps      []FixtureExpectedStep `json:"steps"`
}

// FixtureExpectedStep is the expected (category, tool) of one plan step.
type FixtureExpectedStep struct {
	StepNumber int    `json:"step_number"`
	Category   string `json:"category"`
	ToolID     string `json:"tool_id"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToMaterialMap converts a fixture snapshot to a domain map.
func (s *FixtureSnapshot) ToMaterialMap() (*schematic.MaterialMap, error) {
	rows := make([][]uint8, len(s.Rows))
	for y, row := range s.Rows {
		rows[y] = make([]uint8, len(row))
		for x, v := range row {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("cell (%d,%d) value %d out of range", x, y, v)
			}
			rows[y][x] = uint8(v)
		}
	}
	return schematic.FromRows(rows)
}

// #endregion fixture-loader
