package kgraph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fabflow/internal/planner"
	"fabflow/internal/schematic"
)

// #region catalog-types

// Catalog is the YAML seed format consumed by cmd/bootstrap-graph. Materials
// are referenced by registry name and resolved against the schematic
// registry at seed time.
type Catalog struct {
	Tools []CatalogTool `yaml:"tools"`
}

// CatalogTool declares one tool with its capabilities and incompatibilities.
type CatalogTool struct {
	ToolID       string              `yaml:"tool_id"`
	Name         string              `yaml:"name"`
	ModelRef     string              `yaml:"model_ref"`
	Status       string              `yaml:"status"`
	WaferSize    int                 `yaml:"wafer_size"`
	Capabilities []CatalogCapability `yaml:"capabilities"`
	Incompatible []string            `yaml:"incompatible"`
}

// CatalogCapability declares one (category, material) a tool supports.
type CatalogCapability struct {
	Category string `yaml:"category"`
	Material string `yaml:"material"`
}

// #endregion catalog-types

// #region load

// LoadCatalog reads and parses a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return &c, nil
}

// #endregion load

// #region seed

// SeedCounts summarizes what a seed run wrote.
type SeedCounts struct {
	Tools             int
	Capabilities      int
	Incompatibilities int
}

// SeedCatalog writes a catalog into the store. Unknown material names are an
// error: a silently skipped capability would look like a missing tool at plan
// time.
func (s *Store) SeedCatalog(c *Catalog) (SeedCounts, error) {
	var counts SeedCounts
	for _, tool := range c.Tools {
		status := tool.Status
		if status == "" {
			status = "online"
		}
		if err := s.AddTool(tool.ToolID, tool.Name, tool.ModelRef, status, tool.WaferSize); err != nil {
			return counts, fmt.Errorf("seed tool %s: %w", tool.ToolID, err)
		}
		counts.Tools++

		for _, cap := range tool.Capabilities {
			material, ok := schematic.MaterialID(cap.Material)
			if !ok {
				return counts, fmt.Errorf("tool %s capability: unknown material %q", tool.ToolID, cap.Material)
			}
			if err := s.AddCapability(tool.ToolID, planner.ProcessCategory(cap.Category), material); err != nil {
				return counts, fmt.Errorf("seed capability %s/%s: %w", tool.ToolID, cap.Category, err)
			}
			counts.Capabilities++
		}

		for _, name := range tool.Incompatible {
			material, ok := schematic.MaterialID(name)
			if !ok {
				return counts, fmt.Errorf("tool %s incompatibility: unknown material %q", tool.ToolID, name)
			}
			if err := s.AddIncompatibility(tool.ToolID, material); err != nil {
				return counts, fmt.Errorf("seed incompatibility %s/%s: %w", tool.ToolID, name, err)
			}
			counts.Incompatibilities++
		}
	}
	return counts, nil
}

// #endregion seed
