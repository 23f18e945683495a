package review

import (
	"sort"
	"strings"
)

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// NormalizeSeverity maps arbitrary analyzer output to one of the four
// canonical levels. Matching is case-insensitive; unrecognized values
// default to medium.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "warning", "moderate":
		return SeverityMedium
	case "low", "info":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Category enum
type Category string

const (
	CategoryBug      Category = "bug"
	CategorySecurity Category = "security"
	CategoryQuality  Category = "quality"
)

// NormalizeCategory maps analyzer categories to the canonical set.
// Unrecognized values land in quality.
func NormalizeCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bug", "correctness", "logic":
		return CategoryBug
	case "security", "vulnerability":
		return CategorySecurity
	default:
		return CategoryQuality
	}
}

// RawFinding is one analyzer's unprocessed output for a file.
// Line 0 means the finding is file-scoped.
type RawFinding struct {
	Line        int      `json:"line,omitempty"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Confidence  int      `json:"confidence"` // 0-100, static tools always 100
	Analyzer    string   `json:"analyzer"`
}

// MergedFinding is the canonical, externally visible unit: one or more
// equivalent RawFindings collapsed into a single corroborated finding.
// Immutable once created.
type MergedFinding struct {
	FilePath    string   `json:"file_path"`
	Line        int      `json:"line,omitempty"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Confidence  int      `json:"confidence"`
	Sources     []string `json:"sources"`
}

// SortMerged orders findings by file path, then severity descending,
// then line ascending. Stable regardless of analyzer completion order.
func SortMerged(fs []MergedFinding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].FilePath != fs[j].FilePath {
			return fs[i].FilePath < fs[j].FilePath
		}
		ri, rj := SeverityRank(fs[i].Severity), SeverityRank(fs[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return fs[i].Line < fs[j].Line
	})
}
