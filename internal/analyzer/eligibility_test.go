package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEligibleDescription(t *testing.T) {
	const stored = "Terminal charts for Go programs."

	tests := []struct {
		name       string
		proposed   string
		confidence float64
		want       bool
	}{
		{"substantive rewrite above threshold", "Render live dashboards and charts in any terminal.", 0.85, true},
		{"substantive rewrite below threshold", "Render live dashboards and charts in any terminal.", 0.6, false},
		{"exactly at threshold", "Render live dashboards and charts in any terminal.", 0.7, false},
		{"identical text", stored, 0.95, false},
		{"whitespace and case only", "  terminal   CHARTS for Go programs. ", 0.95, false},
		{"empty proposal", "", 0.95, false},
		{"small word swap", "Terminal graphs for Go programs.", 0.95, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EligibleDescription(stored, tt.proposed, tt.confidence, DefaultThreshold))
		})
	}
}

func TestNonTrivialChange_LengthDelta(t *testing.T) {
	assert.True(t, NonTrivialChange("Charts.", "Charts for terminals."))
	assert.True(t, NonTrivialChange("", "A new description"))
}

func TestTokenSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TokenSimilarity("a b c", "c b a"))
	assert.Equal(t, 1.0, TokenSimilarity("", ""))
	assert.InDelta(t, 0.5, TokenSimilarity("a b", "a b c d"), 1e-9)
	assert.Equal(t, 0.0, TokenSimilarity("a", "b"))
}
