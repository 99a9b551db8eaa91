package domain

// PlanEntry is one page under test within a batch.
type PlanEntry struct {
	PageType PageType
	URL      string
}

// TestPlan is the resolved set of pages and devices for one batch invocation.
// It is derived fresh per batch and never persisted. Entry order is stable:
// homepage, category, product (when resolvable).
type TestPlan struct {
	Entries            []PlanEntry
	Devices            []DeviceType
	RunsPerCombination int
}

// Combinations returns the number of (page, device) groups in the plan.
func (p *TestPlan) Combinations() int {
	return len(p.Entries) * len(p.Devices)
}

// TotalRuns returns the number of provider invocations the plan implies.
func (p *TestPlan) TotalRuns() int {
	return p.Combinations() * p.RunsPerCombination
}
