package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"fabflow/internal/bridge"
	"fabflow/internal/flow"
	"fabflow/internal/kgraph"
	"fabflow/internal/planner"
	"fabflow/internal/store"
)

// #region main
func main() {
	dbPath := envOr("FABFLOW_DB", "fabflow.db")
	sidecarAddr := envOr("SIDECAR_ADDR", "localhost:50051")

	snapshotsDir := flag.String("snapshots", "data/input_schematics", "directory of ordered snapshot PNGs")
	layoutsPath := flag.String("layouts", "", "optional JSON file mapping step number to layout file")
	catalogPath := flag.String("catalog", "", "optional YAML catalog to seed before planning")
	maskDir := flag.String("mask-dir", "output", "directory for extracted mask artifacts")
	flag.Parse()

	snapshots, err := collectSnapshots(*snapshotsDir)
	if err != nil {
		log.Fatalf("collect snapshots: %v", err)
	}
	if len(snapshots) < 2 {
		log.Fatalf("need at least 2 snapshots in %s, found %d", *snapshotsDir, len(snapshots))
	}

	layouts, err := loadLayouts(*layoutsPath)
	if err != nil {
		log.Fatalf("load layouts: %v", err)
	}

	st, err := store.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	catalog, err := kgraph.NewStore(st.DB())
	if err != nil {
		log.Fatalf("failed to init knowledge store: %v", err)
	}
	if *catalogPath != "" {
		seed, err := kgraph.LoadCatalog(*catalogPath)
		if err != nil {
			log.Fatalf("load catalog: %v", err)
		}
		counts, err := catalog.SeedCatalog(seed)
		if err != nil {
			log.Fatalf("seed catalog: %v", err)
		}
		log.Printf("[KG] seeded %d tools, %d capabilities, %d incompatibilities",
			counts.Tools, counts.Capabilities, counts.Incompatibilities)
	}

	sidecar, err := bridge.NewClient(sidecarAddr)
	if err != nil {
		log.Fatalf("failed to connect to sidecar at %s: %v", sidecarAddr, err)
	}
	defer sidecar.Close()

	fmt.Println("Process Flow Planner ready.")
	fmt.Printf("  DB: %s | Sidecar: %s | Snapshots: %d\n", dbPath, sidecarAddr, len(snapshots))

	cfg := flow.DefaultConfig()
	cfg.MaskOutputDir = *maskDir
	controller := flow.NewController(sidecar, sidecar, sidecar,
		planner.NewPlanner(catalog, planner.DefaultConfig()), st, cfg)

	wafer := planner.DefaultWaferState()
	result, err := controller.GenerateFlow(context.Background(), wafer, snapshots, layouts)
	if err != nil {
		log.Printf("run aborted: %v", err)
	}

	fmt.Println("\n--- GENERATED PROCESS FLOW ---")
	out, jsonErr := json.MarshalIndent(result, "", "  ")
	if jsonErr != nil {
		log.Fatalf("marshal result: %v", jsonErr)
	}
	fmt.Println(string(out))

	if err != nil || result.Status != flow.StatusCompleted {
		os.Exit(1)
	}
}

// #endregion main

// #region inputs

// collectSnapshots returns the PNG files of a directory in lexical order.
func collectSnapshots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".png" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// loadLayouts parses a JSON object mapping step numbers to layout files.
func loadLayouts(path string) (map[int]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layouts %s: %w", path, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse layouts %s: %w", path, err)
	}
	layouts := make(map[int]string, len(raw))
	for key, file := range raw {
		step, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("layouts: step key %q is not a number", key)
		}
		layouts[step] = file
	}
	return layouts, nil
}

// #endregion inputs

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
