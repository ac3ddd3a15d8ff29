package migration

import (
	"sort"
	"strings"
)

// ComputePlan returns the scripts still to apply on top of version current:
// those with a greater version and at least one non-blank statement, in
// ascending version order. Scripts sharing a version keep their manifest
// order. The input is not modified.
func ComputePlan(manifest []UpdateScript, current int64) []UpdateScript {
	plan := make([]UpdateScript, 0, len(manifest))
	for _, s := range manifest {
		if int64(s.Version) <= current || !hasStatements(s) {
			continue
		}
		plan = append(plan, s)
	}
	sort.SliceStable(plan, func(i, j int) bool {
		return plan[i].Version < plan[j].Version
	})
	return plan
}

func hasStatements(s UpdateScript) bool {
	for _, stmt := range s.Statements {
		if strings.TrimSpace(stmt) != "" {
			return true
		}
	}
	return false
}
