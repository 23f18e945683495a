package prompt

import (
	"fmt"
	"strings"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are an expert code reviewer with deep knowledge of security vulnerabilities, bug patterns, performance and maintainability. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low.
- Use category values: bug, security, quality.
- line refers to a 1-based line number in the provided code; omit it for file-level findings.
- confidence is an integer 0-100 rating how certain you are about the overall result.
- findings may be empty when the code is clean. Keep items concise and actionable.

Schema (example with empty values):
{
  "confidence": 0,
  "findings": [
    {
      "line": 0,
      "category": "<bug|security|quality>",
      "severity": "<critical|high|medium|low>",
      "title": "<string>",
      "description": "<string>",
      "suggestion": "<string>"
    }
  ]
}`
}

// GetUserPrompt builds the per-file analysis request. repoContext is
// optional background documentation supplied by the context provider.
func GetUserPrompt(path, language, code, repoContext string, changedLines []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review this code for bugs, security vulnerabilities and quality problems.\n\n")
	fmt.Fprintf(&b, "File: %s\nLanguage: %s\n", path, language)
	if len(changedLines) > 0 {
		fmt.Fprintf(&b, "Changed lines: %s\n", joinInts(changedLines))
		b.WriteString("Focus on the changed lines; only report elsewhere when the change causes the issue.\n")
	}
	if repoContext != "" {
		fmt.Fprintf(&b, "\nRepository context:\n%s\n", repoContext)
	}
	fmt.Fprintf(&b, "\nCode:\n```%s\n%s\n```\n", language, code)
	b.WriteString("\nFocus on: logic errors, edge cases, nil/null handling, race conditions, injection, secret exposure, input validation, error handling, complexity. Return the JSON object only.")
	return b.String()
}

// GetSummaryPrompt asks for the closing review summary after all files
// have been merged.
func GetSummaryPrompt(repository, prTitle string, files, bugs, security, quality int) string {
	return fmt.Sprintf(`Generate a concise, professional code review summary.

Repository: %s
Pull Request: %s

Analysis results:
- Files analyzed: %d
- Bugs found: %d
- Security issues: %d
- Quality issues: %d

Highlight the overall assessment, any issues needing immediate attention, and recommendations. Plain text, a short paragraph plus at most five bullet points.`,
		repository, prTitle, files, bugs, security, quality)
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
