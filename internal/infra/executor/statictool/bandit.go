package statictool

import (
	"encoding/json"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// NewBandit builds the adapter for the Bandit Python security scanner.
// Bandit exits 1 when it finds issues, so that code still carries output.
func NewBandit() *Tool {
	return &Tool{
		name:      "bandit",
		command:   "bandit",
		args:      []string{"-f", "json", "-q"},
		languages: languageSet([]string{"python", "py"}),
		okExits:   map[int]bool{1: true},
		parse:     parseBandit,
	}
}

type banditReport struct {
	Results []struct {
		LineNumber       int    `json:"line_number"`
		IssueSeverity    string `json:"issue_severity"`
		IssueText        string `json:"issue_text"`
		IssueDescription string `json:"issue_cwe_text"`
		TestID           string `json:"test_id"`
	} `json:"results"`
}

func parseBandit(stdout []byte) ([]domain.RawFinding, error) {
	if len(stdout) == 0 {
		return nil, nil
	}
	var report banditReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		return nil, err
	}
	findings := make([]domain.RawFinding, 0, len(report.Results))
	for _, r := range report.Results {
		desc := r.IssueDescription
		if desc == "" {
			desc = r.IssueText
		}
		findings = append(findings, domain.RawFinding{
			Line:        r.LineNumber,
			Category:    domain.CategorySecurity,
			Severity:    domain.NormalizeSeverity(r.IssueSeverity),
			Title:       r.IssueText,
			Description: desc,
		})
	}
	return findings, nil
}
