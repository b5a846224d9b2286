package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"fabflow/internal/logging"
	"fabflow/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to fabflow.db")
	last := flag.Int("last", 20, "show N most recent runs")
	run := flag.String("run", "", "show single run detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/fabflow.db [--last N] [--run id] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *run != "" {
		err = runDetailMode(st, *run, *jsonOut)
	} else {
		err = runListMode(st, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type runRow struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	HaltReason string `json:"halt_reason,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func runListMode(st *store.Store, last int, jsonOut bool) error {
	runs, err := st.ListRuns(last)
	if err != nil {
		return err
	}

	rows := make([]runRow, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, runRow{
			RunID:      r.RunID,
			Status:     r.Status,
			HaltReason: r.HaltReason,
			CreatedAt:  r.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	fmt.Printf("%-38s %-10s %-16s %s\n", "RUN", "STATUS", "HALT REASON", "CREATED")
	for _, row := range rows {
		fmt.Printf("%-38s %-10s %-16s %s\n", row.RunID, row.Status, row.HaltReason, row.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type runDetail struct {
	Run        runRow                    `json:"run"`
	Steps      []store.StepRecord        `json:"steps"`
	Provenance []logging.ProvenanceEntry `json:"provenance"`
}

func runDetailMode(st *store.Store, runID string, jsonOut bool) error {
	steps, err := st.GetSteps(runID)
	if err != nil {
		return err
	}
	provenance, err := logging.ListDecisions(st.DB(), runID)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(runDetail{
			Run:        runRow{RunID: runID},
			Steps:      steps,
			Provenance: provenance,
		})
	}

	fmt.Printf("Run %s: %d steps\n\n", runID, len(steps))
	for _, s := range steps {
		fmt.Printf("  step %d: %s on %s\n", s.StepNumber, s.Category, s.ToolID)
		fmt.Printf("    recipe: %s\n", s.RecipeJSON)
	}
	fmt.Printf("\nProvenance (%d entries):\n", len(provenance))
	for _, e := range provenance {
		line := fmt.Sprintf("  transition %d: %s", e.Transition, e.Decision)
		if e.Reason != "" {
			line += " (" + e.Reason + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// #endregion detail-mode
