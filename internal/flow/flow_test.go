package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fabflow/internal/diff"
	"fabflow/internal/logging"
	"fabflow/internal/planner"
	"fabflow/internal/schematic"
	"fabflow/internal/store"
)

// #region fakes

// fakePerception serves material maps keyed by snapshot path. Align is an
// identity transform.
type fakePerception struct {
	maps     map[string]*schematic.MaterialMap
	alignErr error
}

func (f *fakePerception) Align(_ context.Context, _, targetPath string) (string, error) {
	if f.alignErr != nil {
		return "", f.alignErr
	}
	return targetPath, nil
}

func (f *fakePerception) Segment(_ context.Context, imagePath string) (*schematic.MaterialMap, error) {
	m, ok := f.maps[imagePath]
	if !ok {
		return nil, fmt.Errorf("no map for %s", imagePath)
	}
	return m, nil
}

type fakeOptimizer struct {
	params map[string]float64
	err    error
	calls  int
}

func (f *fakeOptimizer) Optimize(_ context.Context, _ string, _ planner.Geometry) (map[string]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.params, nil
}

type fakeMaskWriter struct {
	err   error
	calls int
}

func (f *fakeMaskWriter) ExtractMask(_ context.Context, _, _ string, _, _ int) error {
	f.calls++
	return f.err
}

// memCatalog is an in-memory ToolCatalog keyed by (category, material).
type memCatalog struct {
	capable      map[string][]planner.Tool
	incompatible map[string][]uint8
}

func capKey(category planner.ProcessCategory, material uint8) string {
	return fmt.Sprintf("%s/%d", category, material)
}

func (m *memCatalog) FindCapableTools(_ context.Context, category planner.ProcessCategory, material uint8, _ int) ([]planner.Tool, error) {
	return m.capable[capKey(category, material)], nil
}

func (m *memCatalog) CheckIncompatibility(_ context.Context, toolID string, materials []uint8) (bool, error) {
	for _, bad := range m.incompatible[toolID] {
		for _, present := range materials {
			if bad == present {
				return true, nil
			}
		}
	}
	return false, nil
}

// scriptedPlanner returns pre-canned results per transition. Used to exercise
// dispatch paths the inference rules cannot reach (lithography).
type scriptedPlanner struct {
	results []planner.Result
	errs    []error
	call    int
}

func (s *scriptedPlanner) PlanStep(_ context.Context, _ []diff.Change, _ *planner.WaferState) (planner.Result, error) {
	i := s.call
	s.call++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], err
	}
	return planner.Result{Status: planner.StatusNoChange}, err
}

// #endregion fakes

// #region helpers

func filledMap(t *testing.T, layers ...[4]int) *schematic.MaterialMap {
	t.Helper()
	m, err := schematic.NewMaterialMap(64, 64)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	// layers entries: {y, height, width, material}
	for _, l := range layers {
		for y := l[0]; y < l[0]+l[1]; y++ {
			for x := 0; x < l[2]; x++ {
				m.Set(x, y, uint8(l[3]))
			}
		}
	}
	return m
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// #endregion helpers

// #region test-full-run
func TestGenerateFlow_CompletesAndPersists(t *testing.T) {
	// Three snapshots: bare silicon, then oxide grown, then nitride on top.
	base := [4]int{50, 14, 64, int(schematic.MatSilicon)}
	perception := &fakePerception{maps: map[string]*schematic.MaterialMap{
		"snap-0": filledMap(t, base),
		"snap-1": filledMap(t, base, [4]int{46, 4, 64, int(schematic.MatSiliconDioxide)}),
		"snap-2": filledMap(t, base,
			[4]int{46, 4, 64, int(schematic.MatSiliconDioxide)},
			[4]int{42, 4, 64, int(schematic.MatSiliconNitride)}),
	}}
	catalog := &memCatalog{capable: map[string][]planner.Tool{
		capKey(planner.Deposition, schematic.MatSiliconDioxide): {
			{ToolID: "DEP-01", Name: "CVD Reactor", ModelRef: "models/dep01.krg"},
		},
		capKey(planner.Deposition, schematic.MatSiliconNitride): {
			{ToolID: "DEP-02", Name: "LPCVD Furnace", ModelRef: "models/dep02.krg"},
		},
	}}
	optimizer := &fakeOptimizer{params: map[string]float64{"time_s": 12.5, "pressure_torr": 1.8}}
	st := testStore(t)

	c := NewController(perception, optimizer, &fakeMaskWriter{},
		planner.NewPlanner(catalog, planner.DefaultConfig()), st, DefaultConfig())
	wafer := planner.DefaultWaferState()

	res, err := c.GenerateFlow(context.Background(), wafer, []string{"snap-0", "snap-1", "snap-2"}, nil)
	if err != nil {
		t.Fatalf("generate flow: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", res.Status, res.HaltReason)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %+v", res.Steps)
	}
	if res.Steps[0].ToolID != "DEP-01" || res.Steps[1].ToolID != "DEP-02" {
		t.Errorf("tools = %s, %s", res.Steps[0].ToolID, res.Steps[1].ToolID)
	}
	if res.Steps[0].StepNumber != 1 || res.Steps[1].StepNumber != 2 {
		t.Errorf("step numbers = %d, %d", res.Steps[0].StepNumber, res.Steps[1].StepNumber)
	}
	if res.Steps[0].Recipe["time_s"] != 12.5 {
		t.Errorf("recipe = %+v", res.Steps[0].Recipe)
	}

	// Wafer accumulated both new materials and kept the substrate.
	for _, id := range []uint8{schematic.MatSilicon, schematic.MatSiliconDioxide, schematic.MatSiliconNitride} {
		if !wafer.Has(id) {
			t.Errorf("wafer missing material %d", id)
		}
	}

	// Persisted steps and provenance match the in-memory result.
	steps, err := st.GetSteps(res.RunID)
	if err != nil {
		t.Fatalf("get steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("persisted %d steps, want 2", len(steps))
	}
	decisions, err := logging.ListDecisions(st.DB(), res.RunID)
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(decisions) != 2 || decisions[0].Decision != "step_planned" {
		t.Errorf("decisions = %+v", decisions)
	}
	runs, _ := st.ListRuns(5)
	if len(runs) != 1 || runs[0].Status != "completed" {
		t.Errorf("run record = %+v", runs)
	}
}

// #endregion test-full-run

// #region test-no-change
func TestGenerateFlow_NoChangeHaltsWithEmptyFlow(t *testing.T) {
	same := filledMap(t, [4]int{50, 14, 64, int(schematic.MatSilicon)})
	perception := &fakePerception{maps: map[string]*schematic.MaterialMap{
		"snap-0": same,
		"snap-1": same,
	}}
	c := NewController(perception, &fakeOptimizer{}, &fakeMaskWriter{},
		planner.NewPlanner(&memCatalog{}, planner.DefaultConfig()), nil, DefaultConfig())

	res, err := c.GenerateFlow(context.Background(), planner.DefaultWaferState(), []string{"snap-0", "snap-1"}, nil)
	if err != nil {
		t.Fatalf("generate flow: %v", err)
	}
	if res.Status != StatusHalted || res.HaltReason != string(planner.StatusNoChange) {
		t.Fatalf("status = %s (%s)", res.Status, res.HaltReason)
	}
	if len(res.Steps) != 0 {
		t.Fatalf("expected empty flow, got %d steps", len(res.Steps))
	}
}

// #endregion test-no-change

// #region test-halt-preserves-partial
func TestGenerateFlow_HaltPreservesPartialFlow(t *testing.T) {
	base := [4]int{50, 14, 64, int(schematic.MatSilicon)}
	perception := &fakePerception{maps: map[string]*schematic.MaterialMap{
		"snap-0": filledMap(t, base),
		"snap-1": filledMap(t, base, [4]int{46, 4, 64, int(schematic.MatSiliconDioxide)}),
		"snap-2": filledMap(t, base,
			[4]int{46, 4, 64, int(schematic.MatSiliconDioxide)},
			[4]int{42, 4, 64, int(schematic.MatCopper)}),
	}}
	// Capable of the oxide step only: the copper transition finds no tools.
	catalog := &memCatalog{capable: map[string][]planner.Tool{
		capKey(planner.Deposition, schematic.MatSiliconDioxide): {
			{ToolID: "DEP-01", ModelRef: "models/dep01.krg"},
		},
	}}
	c := NewController(perception, &fakeOptimizer{params: map[string]float64{"time_s": 9.0}}, &fakeMaskWriter{},
		planner.NewPlanner(catalog, planner.DefaultConfig()), nil, DefaultConfig())

	res, err := c.GenerateFlow(context.Background(), planner.DefaultWaferState(), []string{"snap-0", "snap-1", "snap-2"}, nil)
	if err != nil {
		t.Fatalf("generate flow: %v", err)
	}
	if res.Status != StatusHalted || res.HaltReason != string(planner.StatusNoValidTools) {
		t.Fatalf("status = %s (%s)", res.Status, res.HaltReason)
	}
	// Partial flow length equals the number of fully successful steps.
	if len(res.Steps) != 1 || res.Steps[0].ToolID != "DEP-01" {
		t.Fatalf("partial flow = %+v", res.Steps)
	}
	if res.Transitions != 2 {
		t.Errorf("transitions = %d, want 2", res.Transitions)
	}
}

// #endregion test-halt-preserves-partial

// #region test-lithography
func litPlan() planner.Result {
	return planner.Result{
		Status: planner.StatusSuccess,
		Plan: &planner.Plan{
			Category:       planner.Lithography,
			TargetMaterial: schematic.MatPhotoresist,
			TargetGeometry: planner.Geometry{Thickness: 10, Width: 64},
			CandidateTools: []planner.Tool{{ToolID: "LITHO-01", Name: "Stepper"}},
		},
	}
}

func TestGenerateFlow_LithographyAttachesSubRecipesAndMask(t *testing.T) {
	perception := &fakePerception{maps: map[string]*schematic.MaterialMap{
		"snap-0": filledMap(t, [4]int{50, 14, 64, int(schematic.MatSilicon)}),
		"snap-1": filledMap(t, [4]int{50, 14, 64, int(schematic.MatSilicon)},
			[4]int{40, 10, 64, int(schematic.MatPhotoresist)}),
	}}
	masks := &fakeMaskWriter{}
	optimizer := &fakeOptimizer{}
	c := NewController(perception, optimizer, masks,
		&scriptedPlanner{results: []planner.Result{litPlan()}}, nil, DefaultConfig())

	res, err := c.GenerateFlow(context.Background(), planner.DefaultWaferState(),
		[]string{"snap-0", "snap-1"}, map[int]string{1: "layouts/poly.gds"})
	if err != nil {
		t.Fatalf("generate flow: %v", err)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("steps = %+v", res.Steps)
	}
	recipe := res.Steps[0].Recipe
	if recipe["resist_coat_recipe"] != RecipeCoat ||
		recipe["exposure_recipe"] != RecipeExpose ||
		recipe["develop_recipe"] != RecipeDevelop {
		t.Errorf("missing standard sub-recipes: %+v", recipe)
	}
	if recipe["mask_file"] != "output/mask_litho_step_1.gds" {
		t.Errorf("mask_file = %v", recipe["mask_file"])
	}
	if masks.calls != 1 {
		t.Errorf("mask writer calls = %d", masks.calls)
	}
	if optimizer.calls != 0 {
		t.Error("optimizer must not run for lithography steps")
	}
}

func TestGenerateFlow_MaskFailureIsWarningOnly(t *testing.T) {
	perception := &fakePerception{maps: map[string]*schematic.MaterialMap{
		"snap-0": filledMap(t, [4]int{50, 14, 64, int(schematic.MatSilicon)}),
		"snap-1": filledMap(t, [4]int{50, 14, 64, int(schematic.MatSilicon)},
			[4]int{40, 10, 64, int(schematic.MatPhotoresist)}),
	}}
	masks := &fakeMaskWriter{err: errors.New("no polygons on layer")}
	c := NewController(perception, &fakeOptimizer{}, masks,
		&scriptedPlanner{results: []planner.Result{litPlan()}}, nil, DefaultConfig())

	res, err := c.GenerateFlow(context.Background(), planner.DefaultWaferState(),
		[]string{"snap-0", "snap-1"}, map[int]string{1: "layouts/poly.gds"})
	if err != nil {
		t.Fatalf("generate flow: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("mask failure must not halt the flow: %s", res.Status)
	}
	if _, ok := res.Steps[0].Recipe["mask_file"]; ok {
		t.Error("recipe must not carry mask_file after extraction failure")
	}
	if res.Steps[0].Recipe["resist_coat_recipe"] != RecipeCoat {
		t.Error("sub-recipes must survive mask failure")
	}
}

// #endregion test-lithography

// #region test-collaborator-failures
func TestGenerateFlow_OptimizationFailureHalts(t *testing.T) {
	base := [4]int{50, 14, 64, int(schematic.MatSilicon)}
	perception := &fakePerception{maps: map[string]*schematic.MaterialMap{
		"snap-0": filledMap(t, base),
		"snap-1": filledMap(t, base, [4]int{46, 4, 64, int(schematic.MatSiliconDioxide)}),
	}}
	catalog := &memCatalog{capable: map[string][]planner.Tool{
		capKey(planner.Deposition, schematic.MatSiliconDioxide): {{ToolID: "DEP-01"}},
	}}
	optErr := errors.New("optimizer did not converge")
	c := NewController(perception, &fakeOptimizer{err: optErr}, &fakeMaskWriter{},
		planner.NewPlanner(catalog, planner.DefaultConfig()), nil, DefaultConfig())

	res, err := c.GenerateFlow(context.Background(), planner.DefaultWaferState(), []string{"snap-0", "snap-1"}, nil)
	if !errors.Is(err, optErr) {
		t.Fatalf("expected optimization error, got %v", err)
	}
	if res.Status != StatusHalted {
		t.Errorf("status = %s", res.Status)
	}
	if len(res.Steps) != 0 {
		t.Errorf("failed step must not be appended: %+v", res.Steps)
	}
}

func TestGenerateFlow_AlignErrorAborts(t *testing.T) {
	alignErr := errors.New("unreadable image")
	perception := &fakePerception{alignErr: alignErr}
	c := NewController(perception, &fakeOptimizer{}, &fakeMaskWriter{},
		&scriptedPlanner{}, nil, DefaultConfig())

	_, err := c.GenerateFlow(context.Background(), planner.DefaultWaferState(), []string{"snap-0", "snap-1"}, nil)
	if !errors.Is(err, alignErr) {
		t.Fatalf("expected alignment error, got %v", err)
	}
}

// #endregion test-collaborator-failures

// #region test-tie-break
type lastCandidate struct{}

func (lastCandidate) Finalize(candidates []planner.Tool) planner.Tool {
	return candidates[len(candidates)-1]
}

func TestGenerateFlow_TieBreakIsPluggable(t *testing.T) {
	base := [4]int{50, 14, 64, int(schematic.MatSilicon)}
	perception := &fakePerception{maps: map[string]*schematic.MaterialMap{
		"snap-0": filledMap(t, base),
		"snap-1": filledMap(t, base, [4]int{46, 4, 64, int(schematic.MatSiliconDioxide)}),
	}}
	catalog := &memCatalog{capable: map[string][]planner.Tool{
		capKey(planner.Deposition, schematic.MatSiliconDioxide): {
			{ToolID: "DEP-01"}, {ToolID: "DEP-02"},
		},
	}}
	cfg := DefaultConfig()
	cfg.TieBreak = lastCandidate{}
	c := NewController(perception, &fakeOptimizer{params: map[string]float64{"time_s": 1}}, &fakeMaskWriter{},
		planner.NewPlanner(catalog, planner.DefaultConfig()), nil, cfg)

	res, err := c.GenerateFlow(context.Background(), planner.DefaultWaferState(), []string{"snap-0", "snap-1"}, nil)
	if err != nil {
		t.Fatalf("generate flow: %v", err)
	}
	if res.Steps[0].ToolID != "DEP-02" {
		t.Errorf("tie-break ignored, tool = %s", res.Steps[0].ToolID)
	}
}

// #endregion test-tie-break
