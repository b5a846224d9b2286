package planner

// #region imports
import (
	"context"
)

// #endregion

// #region process-category

// ProcessCategory names a manufacturing operation.
type ProcessCategory string

const (
	Deposition  ProcessCategory = "Deposition"
	Etch        ProcessCategory = "Etch"
	Lithography ProcessCategory = "Lithography"
)

// #endregion

// #region inferred-process

// InferredProcess is the outcome of reasoning about a single change record.
type InferredProcess struct {
	Category ProcessCategory
	Material uint8
}

// #endregion

// #region tool

// Tool is a piece of equipment as returned by the knowledge store. Opaque
// beyond these fields from the planner's perspective.
type Tool struct {
	ToolID   string
	Name     string
	ModelRef string // surrogate model reference for recipe optimization
}

// #endregion

// #region plan-status

// Status tags the outcome of one planning decision. Non-success values are
// first-class results, not errors.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusNoChange        Status = "no_change"
	StatusFailedInference Status = "failed_inference"
	StatusNoValidTools    Status = "no_valid_tools"
)

// #endregion

// #region plan

// Geometry is the target extent for a planned step, in grid cells.
type Geometry struct {
	Thickness int
	Width     int
}

// Plan is a fully resolved planning decision for one transition.
type Plan struct {
	Category       ProcessCategory
	TargetMaterial uint8
	TargetGeometry Geometry
	CandidateTools []Tool
}

// Result pairs a status with its plan. Plan is non-nil only for
// StatusSuccess; callers must switch on Status.
type Result struct {
	Status Status
	Plan   *Plan
}

// #endregion

// #region change-policy

// ChangePolicy controls how the planner treats transitions with multiple
// simultaneous change regions.
type ChangePolicy string

// PolicyFirstChange plans only the first detected change per transition.
// Multi-change transitions are a known limitation of the inference rules.
const PolicyFirstChange ChangePolicy = "first_change"

// Config tunes planner behavior.
type Config struct {
	Policy ChangePolicy
}

// DefaultConfig returns the standard planner tunables.
func DefaultConfig() Config {
	return Config{Policy: PolicyFirstChange}
}

// #endregion

// #region tool-catalog

// ToolCatalog is the knowledge-store query surface the planner depends on.
// Implementations must return tools in a stable order for identical inputs.
type ToolCatalog interface {
	// FindCapableTools returns online tools declared capable of performing
	// category on material at the given wafer size. Empty is a valid result.
	FindCapableTools(ctx context.Context, category ProcessCategory, material uint8, waferSize int) ([]Tool, error)

	// CheckIncompatibility reports whether the tool has a declared adverse
	// relationship with any of the listed materials.
	CheckIncompatibility(ctx context.Context, toolID string, materials []uint8) (bool, error)
}

// #endregion
