package ctxassembly

import (
	"ragctx/internal/apperr"
	"ragctx/internal/config"
)

// headroomSlack is the 2% slack the invariant in §3.1 allows between the
// sum of the first five BudgetConfig fields and MaxTotal.
const headroomSlack = 0.02

// BudgetConfig mirrors config.TokenBudgetConfig at the component level so
// ctxassembly does not need to import the config package's other
// sections.
type BudgetConfig struct {
	System           int
	RunningBrief     int
	RecentTurns      int
	RetrievedContext int
	Completion       int
	MaxTotal         int
}

// FromConfig adapts a config.TokenBudgetConfig into a BudgetConfig.
func FromConfig(c config.TokenBudgetConfig) BudgetConfig {
	return BudgetConfig{
		System:           c.System,
		RunningBrief:     c.RunningBrief,
		RecentTurns:      c.RecentTurns,
		RetrievedContext: c.RetrievedContext,
		Completion:       c.Completion,
		MaxTotal:         c.MaxTotal,
	}
}

// Validate enforces the §3.1 invariant: the first five fields must sum to
// no more than MaxTotal plus 2% headroom.
func (b BudgetConfig) Validate() error {
	allocated := b.System + b.RunningBrief + b.RecentTurns + b.RetrievedContext + b.Completion
	limit := int(float64(b.MaxTotal) * (1 + headroomSlack))
	if allocated > limit {
		return apperr.ConfigurationInvalid(allocated, b.MaxTotal)
	}
	return nil
}

// RecommendedSnippetCount is clamp(floor(retrieved_context / 325), 8, 12)
// per §4.1.1.
func (b BudgetConfig) RecommendedSnippetCount() int {
	n := b.RetrievedContext / 325
	if n < 8 {
		return 8
	}
	if n > 12 {
		return 12
	}
	return n
}

// BudgetAllocation records realized per-component counts (§3.1).
type BudgetAllocation struct {
	System           int
	RunningBrief     int
	RecentTurns      int
	RetrievedContext int
	Completion       int
	Total            int
	Remaining        int
	MaxTotal         int
}

// newAllocation builds a BudgetAllocation and enforces total <= max_total.
func newAllocation(system, brief, turns, retrieved, completion, maxTotal int) (BudgetAllocation, error) {
	total := system + brief + turns + retrieved + completion
	if total > maxTotal {
		return BudgetAllocation{}, apperr.BudgetExceeded(total, maxTotal)
	}
	return BudgetAllocation{
		System:           system,
		RunningBrief:     brief,
		RecentTurns:      turns,
		RetrievedContext: retrieved,
		Completion:       completion,
		Total:            total,
		Remaining:        maxTotal - total,
		MaxTotal:         maxTotal,
	}, nil
}
