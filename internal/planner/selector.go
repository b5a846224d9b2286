package planner

import (
	"context"
	"fmt"
	"log"
)

// #region selector

// Selector resolves (category, material, wafer) to the set of tools that are
// both capable and compatible with everything already on the wafer.
type Selector struct {
	catalog ToolCatalog
}

// NewSelector creates a selector over the given catalog handle.
func NewSelector(catalog ToolCatalog) *Selector {
	return &Selector{catalog: catalog}
}

// Select queries the catalog for capable tools and filters out any tool with
// a declared incompatibility against a material currently present. Catalog
// order is preserved so higher-layer tie-break stays deterministic. Store
// errors propagate unchanged; they are distinct from an empty result.
func (s *Selector) Select(ctx context.Context, category ProcessCategory, material uint8, wafer *WaferState) ([]Tool, error) {
	candidates, err := s.catalog.FindCapableTools(ctx, category, material, wafer.Size)
	if err != nil {
		return nil, fmt.Errorf("find capable tools: %w", err)
	}
	log.Printf("[PLAN] %d initial candidates for %s on material %d", len(candidates), category, material)

	present := wafer.MaterialList()
	var valid []Tool
	for _, tool := range candidates {
		incompatible, err := s.catalog.CheckIncompatibility(ctx, tool.ToolID, present)
		if err != nil {
			return nil, fmt.Errorf("check incompatibility %s: %w", tool.ToolID, err)
		}
		if incompatible {
			log.Printf("[PLAN] filtering out tool %q: material incompatibility", tool.ToolID)
			continue
		}
		valid = append(valid, tool)
	}
	return valid, nil
}

// #endregion selector
