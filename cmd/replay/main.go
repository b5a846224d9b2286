package main

import (
	"flag"
	"fmt"
	"os"

	"fabflow/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	fixture, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Replaying: %s\n", fixture.Description)
	outcome, err := replay.Run(fixture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	result := outcome.Result
	fmt.Printf("  status=%s", result.Status)
	if result.HaltReason != "" {
		fmt.Printf(" halt_reason=%s", result.HaltReason)
	}
	fmt.Printf(" transitions=%d steps=%d\n", result.Transitions, len(result.Steps))
	for _, step := range result.Steps {
		fmt.Printf("  step %d: %s on %s\n", step.StepNumber, step.Category, step.ToolID)
	}

	if !outcome.OK() {
		fmt.Println("\nMISMATCHES:")
		for _, m := range outcome.Mismatches {
			fmt.Printf("  - %s\n", m)
		}
		os.Exit(1)
	}
	fmt.Println("\nAll expectations matched.")
}

// #endregion main
