package planner

import (
	"fabflow/internal/diff"
)

// #region rule-table

// ruleKey pairs the observable features the inference rules dispatch on.
type ruleKey struct {
	Type    diff.ChangeType
	Profile diff.Profile
}

// processRules is the open rule set mapping observed change features to
// process categories. New rules are added without altering existing ones;
// combinations absent from the table yield no inference.
var processRules = map[ruleKey]ProcessCategory{
	{diff.Addition, diff.ProfileConformal}:  Deposition,
	{diff.Addition, diff.ProfilePlanar}:     Deposition,
	{diff.Removal, diff.ProfileAnisotropic}: Etch,
	{diff.Removal, diff.ProfileIsotropic}:   Etch,
}

// #endregion rule-table

// #region infer

// InferProcess maps a single change record to a process category and target
// material. Total over its input domain: unmatched combinations return
// ok=false, never an error.
func InferProcess(change diff.Change) (InferredProcess, bool) {
	category, ok := processRules[ruleKey{change.Type, change.Profile}]
	if !ok {
		return InferredProcess{}, false
	}
	return InferredProcess{Category: category, Material: change.Material}, true
}

// #endregion infer
