package replay

// #region imports
import (
	"context"
	"fmt"

	"fabflow/internal/flow"
	"fabflow/internal/planner"
	"fabflow/internal/schematic"
)

// #endregion

// #region outcome

// Outcome is the result of replaying a fixture: the real controller's output
// plus any deviations from the fixture's expectations.
type Outcome struct {
	Result     *flow.Result
	Mismatches []string
}

// OK reports whether the replay matched every expectation.
func (o *Outcome) OK() bool {
	return len(o.Mismatches) == 0
}

// #endregion outcome

// #region fixture-collaborators

// fixtureCatalog serves the fixture's tools in file order, honoring status
// and wafer-size constraints the way the real store does.
type fixtureCatalog struct {
	tools []FixtureTool
}

func (c *fixtureCatalog) FindCapableTools(_ context.Context, category planner.ProcessCategory, material uint8, waferSize int) ([]planner.Tool, error) {
	var out []planner.Tool
	for _, t := range c.tools {
		status := t.Status
		if status == "" {
			status = "online"
		}
		if status != "online" || t.WaferSize != waferSize {
			continue
		}
		for _, cap := range t.Capabilities {
			id, ok := schematic.MaterialID(cap.Material)
			if !ok {
				return nil, fmt.Errorf("fixture tool %s: unknown material %q", t.ToolID, cap.Material)
			}
			if planner.ProcessCategory(cap.Category) == category && id == material {
				out = append(out, planner.Tool{ToolID: t.ToolID, Name: t.Name, ModelRef: t.ModelRef})
				break
			}
		}
	}
	return out, nil
}

func (c *fixtureCatalog) CheckIncompatibility(_ context.Context, toolID string, materials []uint8) (bool, error) {
	for _, t := range c.tools {
		if t.ToolID != toolID {
			continue
		}
		for _, name := range t.Incompatible {
			id, ok := schematic.MaterialID(name)
			if !ok {
				return false, fmt.Errorf("fixture tool %s: unknown material %q", t.ToolID, name)
			}
			for _, present := range materials {
				if id == present {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// fixturePerception serves pre-segmented maps keyed by synthetic snapshot
// ids; alignment is an identity transform in replay.
type fixturePerception struct {
	maps map[string]*schematic.MaterialMap
}

func (p *fixturePerception) Align(_ context.Context, _, targetPath string) (string, error) {
	return targetPath, nil
}

func (p *fixturePerception) Segment(_ context.Context, imagePath string) (*schematic.MaterialMap, error) {
	m, ok := p.maps[imagePath]
	if !ok {
		return nil, fmt.Errorf("no fixture map for %s", imagePath)
	}
	return m, nil
}

// fixtureOptimizer returns a fixed parameter set so replays stay
// deterministic without the sidecar.
type fixtureOptimizer struct{}

func (fixtureOptimizer) Optimize(_ context.Context, _ string, geometry planner.Geometry) (map[string]float64, error) {
	return map[string]float64{
		"time_s":                10.0,
		"pressure_torr":         1.5,
		"achieved_thickness_nm": float64(geometry.Thickness),
	}, nil
}

// fixtureMaskWriter records nothing; replay produces no artifacts.
type fixtureMaskWriter struct{}

func (fixtureMaskWriter) ExtractMask(_ context.Context, _, _ string, _, _ int) error {
	return nil
}

// #endregion fixture-collaborators

// #region run

// Run replays a fixture through the real diff/planner/flow pipeline with
// fixture-backed collaborators, entirely in memory, and checks the outcome
// against the fixture's expectations.
func Run(f *Fixture) (*Outcome, error) {
	if len(f.Snapshots) < 2 {
		return nil, fmt.Errorf("fixture needs at least 2 snapshots, has %d", len(f.Snapshots))
	}

	maps := make(map[string]*schematic.MaterialMap, len(f.Snapshots))
	paths := make([]string, len(f.Snapshots))
	for i, snap := range f.Snapshots {
		m, err := snap.ToMaterialMap()
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", i, err)
		}
		paths[i] = fmt.Sprintf("snap://%d", i)
		maps[paths[i]] = m
	}

	wafer, err := fixtureWafer(f.Wafer)
	if err != nil {
		return nil, err
	}

	stepPlanner := planner.NewPlanner(&fixtureCatalog{tools: f.Catalog}, planner.DefaultConfig())
	controller := flow.NewController(
		&fixturePerception{maps: maps},
		fixtureOptimizer{},
		fixtureMaskWriter{},
		stepPlanner,
		nil,
		flow.DefaultConfig(),
	)

	result, err := controller.GenerateFlow(context.Background(), wafer, paths, nil)
	if err != nil {
		return nil, fmt.Errorf("replay run: %w", err)
	}

	return &Outcome{
		Result:     result,
		Mismatches: checkExpectations(f.Expected, result),
	}, nil
}

func fixtureWafer(fw FixtureWafer) (*planner.WaferState, error) {
	size := fw.Size
	if size == 0 {
		size = 300
	}
	var materials []uint8
	for _, name := range fw.Materials {
		id, ok := schematic.MaterialID(name)
		if !ok {
			return nil, fmt.Errorf("fixture wafer: unknown material %q", name)
		}
		materials = append(materials, id)
	}
	return planner.NewWaferState(size, materials...), nil
}

// #endregion run

// #region expectations

// checkExpectations diffs the controller's result against the fixture's
// expected outcome. Every deviation becomes one human-readable line.
func checkExpectations(expected FixtureExpected, result *flow.Result) []string {
	var mismatches []string

	if expected.Status != "" && expected.Status != string(result.Status) {
		mismatches = append(mismatches,
			fmt.Sprintf("status: got %s, want %s", result.Status, expected.Status))
	}
	if expected.HaltReason != result.HaltReason {
		mismatches = append(mismatches,
			fmt.Sprintf("halt reason: got %q, want %q", result.HaltReason, expected.HaltReason))
	}
	if len(expected.Steps) != len(result.Steps) {
		mismatches = append(mismatches,
			fmt.Sprintf("step count: got %d, want %d", len(result.Steps), len(expected.Steps)))
		return mismatches
	}
	for i, want := range expected.Steps {
		got := result.Steps[i]
		if want.StepNumber != got.StepNumber {
			mismatches = append(mismatches,
				fmt.Sprintf("step %d: number got %d, want %d", i, got.StepNumber, want.StepNumber))
		}
		if want.Category != string(got.Category) {
			mismatches = append(mismatches,
				fmt.Sprintf("step %d: category got %s, want %s", i, got.Category, want.Category))
		}
		if want.ToolID != got.ToolID {
			mismatches = append(mismatches,
				fmt.Sprintf("step %d: tool got %s, want %s", i, got.ToolID, want.ToolID))
		}
	}
	return mismatches
}

// #endregion expectations
