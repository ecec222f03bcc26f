package ctxassembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetConfig_ValidateWithinHeadroom(t *testing.T) {
	b := budgetFromDefaults() // 700+1200+450+3750+1000=7100 <= 8000*1.02=8160
	require.NoError(t, b.Validate())
}

func TestBudgetConfig_ValidateRejectsOverflow(t *testing.T) {
	b := BudgetConfig{System: 5000, RunningBrief: 5000, RecentTurns: 0, RetrievedContext: 0, Completion: 0, MaxTotal: 8000}
	err := b.Validate()
	require.Error(t, err)
}

func TestRecommendedSnippetCount_Clamped(t *testing.T) {
	assert.Equal(t, 8, BudgetConfig{RetrievedContext: 100}.RecommendedSnippetCount())
	assert.Equal(t, 12, BudgetConfig{RetrievedContext: 100000}.RecommendedSnippetCount())
	assert.Equal(t, 11, BudgetConfig{RetrievedContext: 3750}.RecommendedSnippetCount())
}
