package review

import (
	"sort"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// DefaultLineTolerance is the window, in lines, within which two findings
// of the same category are considered the same issue.
const DefaultLineTolerance = 2

// normalizeRaw canonicalizes severity, category and confidence in place.
func normalizeRaw(raw []domain.RawFinding) []domain.RawFinding {
	out := make([]domain.RawFinding, len(raw))
	for i, f := range raw {
		f.Severity = domain.NormalizeSeverity(string(f.Severity))
		f.Category = domain.NormalizeCategory(string(f.Category))
		if f.Confidence < 0 {
			f.Confidence = 0
		}
		if f.Confidence > 100 {
			f.Confidence = 100
		}
		if f.Line < 0 {
			f.Line = 0
		}
		out[i] = f
	}
	return out
}

// MergeFindings collapses all raw findings reported for one file into the
// canonical merged list. Two findings are equivalent when their category
// matches and their lines are within tolerance of each other; line 0 is
// file-scope and only matches other file-scope findings. Within a group:
// severity is the maximum, confidence is the maximum, and the title,
// description and suggestion come from the highest-confidence contributor.
// Lower-confidence duplicates stay recorded as corroborating sources.
//
// The function is pure: the same raw set always yields the same merged
// list, independent of analyzer completion order.
func MergeFindings(path string, raw []domain.RawFinding, tolerance int) []domain.MergedFinding {
	if len(raw) == 0 {
		return nil
	}
	if tolerance < 0 {
		tolerance = DefaultLineTolerance
	}

	fs := normalizeRaw(raw)

	// Deterministic grouping order regardless of arrival order.
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Category != fs[j].Category {
			return fs[i].Category < fs[j].Category
		}
		if fs[i].Line != fs[j].Line {
			return fs[i].Line < fs[j].Line
		}
		if fs[i].Analyzer != fs[j].Analyzer {
			return fs[i].Analyzer < fs[j].Analyzer
		}
		return fs[i].Title < fs[j].Title
	})

	// Greedy clustering over the sorted list: a finding joins the open
	// group while category matches and the line gap stays within tolerance.
	// File-scope findings (line 0) form their own per-category group.
	var groups [][]domain.RawFinding
	var cur []domain.RawFinding
	for _, f := range fs {
		if len(cur) == 0 {
			cur = []domain.RawFinding{f}
			continue
		}
		last := cur[len(cur)-1]
		sameScope := (f.Line == 0) == (last.Line == 0)
		within := f.Line == 0 || f.Line-last.Line <= tolerance
		if f.Category == last.Category && sameScope && within {
			cur = append(cur, f)
			continue
		}
		groups = append(groups, cur)
		cur = []domain.RawFinding{f}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	merged := make([]domain.MergedFinding, 0, len(groups))
	for _, g := range groups {
		merged = append(merged, mergeGroup(path, g))
	}

	domain.SortMerged(merged)
	return merged
}

// mergeGroup collapses one equivalence group into a single finding.
func mergeGroup(path string, g []domain.RawFinding) domain.MergedFinding {
	rep := g[0]
	maxSev := g[0].Severity
	maxConf := g[0].Confidence
	for _, f := range g[1:] {
		if domain.SeverityRank(f.Severity) > domain.SeverityRank(maxSev) {
			maxSev = f.Severity
		}
		if f.Confidence > maxConf {
			maxConf = f.Confidence
		}
		if betterRepresentative(f, rep) {
			rep = f
		}
	}

	sources := make([]string, 0, len(g))
	seen := make(map[string]bool, len(g))
	// Representative first, remaining contributors by confidence then name.
	sources = append(sources, rep.Analyzer)
	seen[rep.Analyzer] = true
	rest := make([]domain.RawFinding, 0, len(g))
	for _, f := range g {
		if !seen[f.Analyzer] {
			seen[f.Analyzer] = true
			rest = append(rest, f)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].Confidence != rest[j].Confidence {
			return rest[i].Confidence > rest[j].Confidence
		}
		return rest[i].Analyzer < rest[j].Analyzer
	})
	for _, f := range rest {
		sources = append(sources, f.Analyzer)
	}

	return domain.MergedFinding{
		FilePath:    path,
		Line:        rep.Line,
		Category:    rep.Category,
		Severity:    maxSev,
		Title:       rep.Title,
		Description: rep.Description,
		Suggestion:  rep.Suggestion,
		Confidence:  maxConf,
		Sources:     sources,
	}
}

// betterRepresentative decides whether f should supply the merged text
// instead of cur: highest confidence wins, then severity, then stable
// name/title order so the choice is deterministic.
func betterRepresentative(f, cur domain.RawFinding) bool {
	if f.Confidence != cur.Confidence {
		return f.Confidence > cur.Confidence
	}
	if r1, r2 := domain.SeverityRank(f.Severity), domain.SeverityRank(cur.Severity); r1 != r2 {
		return r1 > r2
	}
	if f.Analyzer != cur.Analyzer {
		return f.Analyzer < cur.Analyzer
	}
	return f.Title < cur.Title
}
