package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// #region test-load
func TestLoadFixture_RoundTrip(t *testing.T) {
	f := depositionFixture()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Description != f.Description {
		t.Errorf("description = %q", loaded.Description)
	}
	if len(loaded.Snapshots) != 2 || len(loaded.Catalog) != 1 {
		t.Errorf("fixture shape: %d snapshots, %d tools", len(loaded.Snapshots), len(loaded.Catalog))
	}

	outcome, err := Run(loaded)
	if err != nil {
		t.Fatalf("run loaded fixture: %v", err)
	}
	if !outcome.OK() {
		t.Errorf("mismatches: %v", outcome.Mismatches)
	}
}

func TestLoadFixture_MissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

func TestToMaterialMap_OutOfRange(t *testing.T) {
	s := FixtureSnapshot{Rows: [][]int{{0, 999}}}
	if _, err := s.ToMaterialMap(); err == nil {
		t.Fatal("expected error for out-of-range cell value")
	}
}

// #endregion test-load
