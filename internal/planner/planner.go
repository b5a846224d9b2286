package planner

// #region imports
import (
	"context"
	"log"

	"fabflow/internal/diff"
)

// #endregion

// #region planner-struct

// Planner composes process inference and tool selection into a single
// planning decision per transition. Stateless across calls; every branch is a
// pure classification aside from read-only catalog queries.
type Planner struct {
	selector *Selector
	config   Config
}

// NewPlanner creates a planner over the given catalog handle.
func NewPlanner(catalog ToolCatalog, config Config) *Planner {
	return &Planner{
		selector: NewSelector(catalog),
		config:   config,
	}
}

// #endregion

// #region plan-step

// PlanStep decides the manufacturing step that explains the observed changes.
// The returned error is non-nil only for catalog failures; every planning
// outcome, including the non-success ones, arrives as a Result.
func (p *Planner) PlanStep(ctx context.Context, changes []diff.Change, wafer *WaferState) (Result, error) {
	if len(changes) == 0 {
		return Result{Status: StatusNoChange}, nil
	}

	// PolicyFirstChange: one step per transition, driven by the first region
	// in scan order.
	change := changes[0]
	log.Printf("[PLAN] reasoning about change: type=%s material=%d area=%d profile=%s",
		change.Type, change.Material, change.Area, change.Profile)

	inferred, ok := InferProcess(change)
	if !ok {
		return Result{Status: StatusFailedInference}, nil
	}
	log.Printf("[PLAN] inferred process: %s on material %d", inferred.Category, inferred.Material)

	tools, err := p.selector.Select(ctx, inferred.Category, inferred.Material, wafer)
	if err != nil {
		return Result{}, err
	}
	if len(tools) == 0 {
		return Result{Status: StatusNoValidTools}, nil
	}

	return Result{
		Status: StatusSuccess,
		Plan: &Plan{
			Category:       inferred.Category,
			TargetMaterial: inferred.Material,
			TargetGeometry: Geometry{
				Thickness: change.Thickness,
				Width:     change.Width,
			},
			CandidateTools: tools,
		},
	}, nil
}

// #endregion
