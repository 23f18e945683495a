package github

import (
	"strconv"
	"strings"
)

// ChangedLines extracts the added line numbers (new-file side) from a
// unified diff patch, the format the PR files API returns. Removed-only
// hunks contribute nothing. A nil result means no patch or no additions.
func ChangedLines(patch string) []int {
	if patch == "" {
		return nil
	}

	var changed []int
	line := 0
	inHunk := false
	for _, l := range strings.Split(patch, "\n") {
		if strings.HasPrefix(l, "@@") {
			start, ok := parseHunkStart(l)
			if !ok {
				inHunk = false
				continue
			}
			line = start
			inHunk = true
			continue
		}
		if !inHunk || l == "" {
			continue
		}
		switch l[0] {
		case '+':
			changed = append(changed, line)
			line++
		case '-':
			// old-side only, new-side counter stays put
		case '\\':
			// "\ No newline at end of file"
		default:
			line++
		}
	}
	return changed
}

// parseHunkStart pulls the new-file start line out of a hunk header
// like "@@ -12,4 +13,6 @@ func foo() {".
func parseHunkStart(header string) (int, bool) {
	for _, part := range strings.Fields(header) {
		if !strings.HasPrefix(part, "+") {
			continue
		}
		numeric := strings.TrimPrefix(part, "+")
		if i := strings.IndexByte(numeric, ','); i >= 0 {
			numeric = numeric[:i]
		}
		start, err := strconv.Atoi(numeric)
		if err != nil {
			return 0, false
		}
		return start, true
	}
	return 0, false
}
