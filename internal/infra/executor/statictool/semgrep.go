package statictool

import (
	"encoding/json"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// NewSemgrep builds the adapter for Semgrep with its auto config. Semgrep
// exits 1 when findings are present.
func NewSemgrep() *Tool {
	return &Tool{
		name:    "semgrep",
		command: "semgrep",
		args:    []string{"--config=auto", "--json", "--quiet"},
		languages: languageSet([]string{
			"python", "py", "javascript", "typescript", "java", "go", "rust", "c", "cpp", "ruby", "php",
		}),
		okExits: map[int]bool{1: true},
		parse:   parseSemgrep,
	}
}

type semgrepReport struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Severity string `json:"severity"`
			Message  string `json:"message"`
			Metadata struct {
				Category string `json:"category"`
			} `json:"metadata"`
			Fix string `json:"fix"`
		} `json:"extra"`
	} `json:"results"`
}

func parseSemgrep(stdout []byte) ([]domain.RawFinding, error) {
	if len(stdout) == 0 {
		return nil, nil
	}
	var report semgrepReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		return nil, err
	}
	findings := make([]domain.RawFinding, 0, len(report.Results))
	for _, r := range report.Results {
		findings = append(findings, domain.RawFinding{
			Line:        r.Start.Line,
			Category:    domain.NormalizeCategory(r.Extra.Metadata.Category),
			Severity:    domain.NormalizeSeverity(r.Extra.Severity),
			Title:       r.CheckID,
			Description: r.Extra.Message,
			Suggestion:  r.Extra.Fix,
		})
	}
	return findings, nil
}
