package flow

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"fabflow/internal/diff"
	"fabflow/internal/logging"
	"fabflow/internal/planner"
	"fabflow/internal/store"
)

// #endregion

// #region controller-struct

// Controller is the top-level state machine: it walks the ordered snapshot
// sequence, drives perception and planning per transition, finalizes tools,
// dispatches recipe actions, and carries the wafer state forward. It halts on
// the first non-success planning result; the partial flow built so far
// remains valid output.
type Controller struct {
	perception Perception
	optimizer  Optimizer
	masks      MaskWriter
	planner    StepPlanner
	store      *store.Store // nil disables persistence
	config     Config
}

// NewController wires a controller. store may be nil for in-memory runs
// (replay, tests).
func NewController(perception Perception, optimizer Optimizer, masks MaskWriter, stepPlanner StepPlanner, st *store.Store, config Config) *Controller {
	if config.TieBreak == nil {
		config.TieBreak = FirstCandidate{}
	}
	return &Controller{
		perception: perception,
		optimizer:  optimizer,
		masks:      masks,
		planner:    stepPlanner,
		store:      st,
		config:     config,
	}
}

// #endregion

// #region generate-flow

// GenerateFlow runs the sense-plan-act loop across an ordered snapshot
// sequence. layouts maps step numbers to layout files for lithography steps.
// A non-nil error means the run aborted on an input or collaborator failure;
// the returned Result still carries every step completed before the failure.
func (c *Controller) GenerateFlow(ctx context.Context, wafer *planner.WaferState, snapshots []string, layouts map[int]string) (*Result, error) {
	res := &Result{
		RunID:  uuid.New().String(),
		Status: StatusCompleted,
		Steps:  []PlanStep{},
	}
	if err := c.createRun(res.RunID); err != nil {
		return res, err
	}

	for i := 0; i+1 < len(snapshots); i++ {
		res.Transitions++
		log.Printf("[FLOW] processing transition: step %d -> step %d", i, i+1)

		changes, err := c.sense(ctx, snapshots[i], snapshots[i+1])
		if err != nil {
			c.finishRun(res.RunID, "error", err.Error())
			return res, fmt.Errorf("transition %d: %w", i, err)
		}

		result, err := c.planner.PlanStep(ctx, changes, wafer)
		if err != nil {
			res.Status = StatusHalted
			res.HaltReason = "knowledge store failure"
			c.logDecision(res.RunID, i, "error", "", err.Error())
			c.finishRun(res.RunID, string(StatusHalted), res.HaltReason)
			return res, fmt.Errorf("transition %d: %w", i, err)
		}
		if result.Status != planner.StatusSuccess {
			res.Status = StatusHalted
			res.HaltReason = string(result.Status)
			log.Printf("[FLOW] planning halted with status %s, flow has %d steps", result.Status, len(res.Steps))
			c.logDecision(res.RunID, i, "halt", "", res.HaltReason)
			c.finishRun(res.RunID, string(StatusHalted), res.HaltReason)
			return res, nil
		}

		plan := result.Plan
		tool := c.config.TieBreak.Finalize(plan.CandidateTools)
		log.Printf("[FLOW] selected tool %q for process %s", tool.ToolID, plan.Category)

		recipe, err := c.dispatchAction(ctx, i+1, plan, tool, layouts)
		if err != nil {
			res.Status = StatusHalted
			res.HaltReason = "optimization failed"
			c.logDecision(res.RunID, i, "error", "", err.Error())
			c.finishRun(res.RunID, string(StatusHalted), res.HaltReason)
			return res, fmt.Errorf("transition %d: %w", i, err)
		}

		step := PlanStep{
			StepNumber: i + 1,
			Category:   plan.Category,
			ToolID:     tool.ToolID,
			Recipe:     recipe,
		}
		res.Steps = append(res.Steps, step)
		c.persistStep(res.RunID, i, step, plan)

		wafer.AddMaterial(plan.TargetMaterial)
	}

	c.finishRun(res.RunID, string(StatusCompleted), "")
	log.Printf("[FLOW] run %s completed with %d steps", res.RunID, len(res.Steps))
	return res, nil
}

// #endregion generate-flow

// #region sense

// sense aligns the target snapshot to the reference, segments both, and
// extracts the change regions.
func (c *Controller) sense(ctx context.Context, referencePath, targetPath string) ([]diff.Change, error) {
	alignedPath, err := c.perception.Align(ctx, referencePath, targetPath)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	before, err := c.perception.Segment(ctx, referencePath)
	if err != nil {
		return nil, fmt.Errorf("segment reference: %w", err)
	}
	after, err := c.perception.Segment(ctx, alignedPath)
	if err != nil {
		return nil, fmt.Errorf("segment aligned: %w", err)
	}
	return diff.Extract(before, after, c.config.DiffConfig)
}

// #endregion sense

// #region dispatch

// dispatchAction builds the recipe for a finalized step. Lithography gets the
// fixed coat/expose/develop sub-recipes plus mask extraction when a layout is
// registered; everything else runs recipe optimization against the tool's
// surrogate model. Mask extraction failure is a warning, not a halt.
func (c *Controller) dispatchAction(ctx context.Context, stepNumber int, plan *planner.Plan, tool planner.Tool, layouts map[int]string) (Recipe, error) {
	recipe := Recipe{}

	if plan.Category == planner.Lithography {
		recipe["resist_coat_recipe"] = RecipeCoat
		recipe["exposure_recipe"] = RecipeExpose
		recipe["develop_recipe"] = RecipeDevelop

		layout, ok := layouts[stepNumber]
		if !ok {
			return recipe, nil
		}
		outPath := filepath.Join(c.config.MaskOutputDir, fmt.Sprintf("mask_litho_step_%d.gds", stepNumber))
		if err := c.masks.ExtractMask(ctx, layout, outPath, MaskLayer, MaskDatatype); err != nil {
			log.Printf("[FLOW] warning: mask extraction for step %d failed: %v", stepNumber, err)
			return recipe, nil
		}
		recipe["mask_file"] = outPath
		return recipe, nil
	}

	params, err := c.optimizer.Optimize(ctx, tool.ModelRef, plan.TargetGeometry)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	for key, value := range params {
		recipe[key] = value
	}
	return recipe, nil
}

// #endregion dispatch

// #region persistence

func (c *Controller) createRun(runID string) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.CreateRun(runID); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (c *Controller) finishRun(runID, status, haltReason string) {
	if c.store == nil {
		return
	}
	if err := c.store.CompleteRun(runID, status, haltReason); err != nil {
		log.Printf("[FLOW] failed to record run completion: %v", err)
	}
}

func (c *Controller) persistStep(runID string, transition int, step PlanStep, plan *planner.Plan) {
	if c.store == nil {
		return
	}
	recipeJSON, err := json.Marshal(step.Recipe)
	if err != nil {
		log.Printf("[FLOW] failed to marshal recipe: %v", err)
		recipeJSON = []byte("{}")
	}
	if err := c.store.AppendStep(store.StepRecord{
		RunID:      runID,
		StepNumber: step.StepNumber,
		Category:   string(step.Category),
		ToolID:     step.ToolID,
		RecipeJSON: string(recipeJSON),
	}); err != nil {
		log.Printf("[FLOW] failed to persist step %d: %v", step.StepNumber, err)
	}
	c.logDecision(runID, transition, "step_planned", stepDetail(step, plan), "")
}

func (c *Controller) logDecision(runID string, transition int, decision, detailJSON, reason string) {
	if c.store == nil {
		return
	}
	if err := logging.LogDecision(c.store.DB(), logging.ProvenanceEntry{
		RunID:      runID,
		Transition: transition,
		Decision:   decision,
		DetailJSON: detailJSON,
		Reason:     reason,
	}); err != nil {
		log.Printf("[FLOW] failed to log decision: %v", err)
	}
}

func stepDetail(step PlanStep, plan *planner.Plan) string {
	detail, err := json.Marshal(map[string]interface{}{
		"category":        step.Category,
		"tool_id":         step.ToolID,
		"target_material": plan.TargetMaterial,
		"candidates":      len(plan.CandidateTools),
	})
	if err != nil {
		return ""
	}
	return string(detail)
}

// #endregion persistence
