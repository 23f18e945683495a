package review_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/automaton-review/internal/domain/review"
)

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want review.Severity
	}{
		{"critical", review.SeverityCritical},
		{"HIGH", review.SeverityHigh},
		{"error", review.SeverityHigh},
		{"warning", review.SeverityMedium},
		{"moderate", review.SeverityMedium},
		{" Medium ", review.SeverityMedium},
		{"info", review.SeverityLow},
		{"low", review.SeverityLow},
		{"", review.SeverityMedium},
		{"unknown-level", review.SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, review.NormalizeSeverity(tt.in))
		})
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in   string
		want review.Category
	}{
		{"bug", review.CategoryBug},
		{"correctness", review.CategoryBug},
		{"logic", review.CategoryBug},
		{"security", review.CategorySecurity},
		{"Vulnerability", review.CategorySecurity},
		{"quality", review.CategoryQuality},
		{"style", review.CategoryQuality},
		{"", review.CategoryQuality},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, review.NormalizeCategory(tt.in))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, review.StatusPending.Terminal())
	assert.False(t, review.StatusRunning.Terminal())
	assert.True(t, review.StatusCompleted.Terminal())
	assert.True(t, review.StatusFailed.Terminal())
}

func TestSeverityCountsAdd(t *testing.T) {
	var c review.SeverityCounts
	c.Add(review.SeverityCritical)
	c.Add(review.SeverityHigh)
	c.Add(review.SeverityHigh)
	c.Add(review.SeverityLow)

	assert.Equal(t, 1, c.Critical)
	assert.Equal(t, 2, c.High)
	assert.Equal(t, 0, c.Medium)
	assert.Equal(t, 1, c.Low)
	assert.Equal(t, 4, c.Total)
}

func TestSortMerged(t *testing.T) {
	fs := []review.MergedFinding{
		{FilePath: "b.go", Line: 1, Severity: review.SeverityCritical},
		{FilePath: "a.go", Line: 30, Severity: review.SeverityHigh},
		{FilePath: "a.go", Line: 5, Severity: review.SeverityHigh},
		{FilePath: "a.go", Line: 2, Severity: review.SeverityLow},
	}
	review.SortMerged(fs)

	assert.Equal(t, "a.go", fs[0].FilePath)
	assert.Equal(t, 5, fs[0].Line)
	assert.Equal(t, 30, fs[1].Line)
	assert.Equal(t, review.SeverityLow, fs[2].Severity)
	assert.Equal(t, "b.go", fs[3].FilePath)
}
