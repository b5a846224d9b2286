package logging

import "time"

// #region provenance-entry

// ProvenanceEntry is one row of the plan_provenance table: the decision taken
// for a single transition of a run, with enough detail to reconstruct why.
type ProvenanceEntry struct {
	RunID      string
	Transition int
	Decision   string // "step_planned" | "halt" | "error"
	DetailJSON string
	Reason     string
	CreatedAt  time.Time
}

// #endregion provenance-entry
