package flow

// #region imports
import (
	"context"

	"fabflow/internal/diff"
	"fabflow/internal/planner"
	"fabflow/internal/schematic"
)

// #endregion

// #region recipe

// Recipe holds the finalized recipe parameters for one step. Values are
// strings (sub-recipe identifiers, artifact paths) or float64 (optimized
// process parameters); the whole map serializes to JSON for persistence.
type Recipe map[string]interface{}

// Fixed sub-recipe identifiers attached to every lithography step regardless
// of inferred geometry.
const (
	RecipeCoat    = "STANDARD_COAT_1UM"
	RecipeExpose  = "STANDARD_EXPOSE_200mJ"
	RecipeDevelop = "STANDARD_DEV_60S"
)

// Mask layer selector used for extraction from layout files.
const (
	MaskLayer    = 10
	MaskDatatype = 0
)

// #endregion recipe

// #region plan-step

// PlanStep is one finalized entry of the process flow. Immutable once
// appended.
type PlanStep struct {
	StepNumber int                     `json:"step_number"`
	Category   planner.ProcessCategory `json:"process_category"`
	ToolID     string                  `json:"tool_id"`
	Recipe     Recipe                  `json:"recipe_parameters"`
}

// #endregion plan-step

// #region result

// Status is the terminal state of a flow-generation run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusHalted    Status = "halted"
)

// Result is the output of one run: the ordered process flow, possibly
// partial, plus the terminal status and halt reason if applicable.
type Result struct {
	RunID       string     `json:"run_id"`
	Status      Status     `json:"status"`
	HaltReason  string     `json:"halt_reason,omitempty"`
	Steps       []PlanStep `json:"steps"`
	Transitions int        `json:"transitions"`
}

// #endregion result

// #region collaborators

// Perception produces aligned images and material maps. External capability;
// the controller only consumes this contract.
type Perception interface {
	Align(ctx context.Context, referencePath, targetPath string) (string, error)
	Segment(ctx context.Context, imagePath string) (*schematic.MaterialMap, error)
}

// Optimizer fits recipe parameters against a tool's surrogate model.
type Optimizer interface {
	Optimize(ctx context.Context, modelRef string, geometry planner.Geometry) (map[string]float64, error)
}

// MaskWriter extracts a mask layer from a layout file to an artifact path.
type MaskWriter interface {
	ExtractMask(ctx context.Context, layoutFile, outputPath string, layer, datatype int) error
}

// StepPlanner is the planning decision surface the controller drives.
// Satisfied by planner.Planner.
type StepPlanner interface {
	PlanStep(ctx context.Context, changes []diff.Change, wafer *planner.WaferState) (planner.Result, error)
}

// #endregion collaborators

// #region tie-break

// TieBreak finalizes one tool from a non-empty candidate list.
type TieBreak interface {
	Finalize(candidates []planner.Tool) planner.Tool
}

// FirstCandidate picks the first tool the selector returned. Selection order
// comes from the knowledge store, so this is deterministic.
type FirstCandidate struct{}

// Finalize implements TieBreak.
func (FirstCandidate) Finalize(candidates []planner.Tool) planner.Tool {
	return candidates[0]
}

// #endregion tie-break

// #region config

// Config tunes controller behavior.
type Config struct {
	DiffConfig diff.Config
	TieBreak   TieBreak
	// MaskOutputDir is where extracted mask artifacts are written.
	MaskOutputDir string
}

// DefaultConfig returns the standard controller tunables.
func DefaultConfig() Config {
	return Config{
		DiffConfig:    diff.DefaultConfig(),
		TieBreak:      FirstCandidate{},
		MaskOutputDir: "output",
	}
}

// #endregion config
