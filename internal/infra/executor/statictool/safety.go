package statictool

import (
	"encoding/json"
	"fmt"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// NewSafety builds the adapter for the Safety dependency scanner. It
// checks pinned requirements files, not source code, so it only applies
// to the "requirements" language hint. Safety signals found
// vulnerabilities through its exit code (64 since 2.x, 255 before).
func NewSafety() *Tool {
	return &Tool{
		name:      "safety",
		command:   "safety",
		args:      []string{"check", "--json", "--file"},
		languages: languageSet([]string{"requirements"}),
		okExits:   map[int]bool{64: true, 255: true},
		parse:     parseSafety,
	}
}

type safetyItem struct {
	PackageName      string `json:"package_name"`
	InstalledVersion string `json:"installed_version"`
	Advisory         string `json:"advisory"`
	VulnerabilityID  string `json:"vulnerability_id"`
}

func parseSafety(stdout []byte) ([]domain.RawFinding, error) {
	if len(stdout) == 0 {
		return nil, nil
	}
	var items []safetyItem
	if err := json.Unmarshal(stdout, &items); err != nil {
		return nil, err
	}
	findings := make([]domain.RawFinding, 0, len(items))
	for _, it := range items {
		title := fmt.Sprintf("Vulnerable dependency %s %s", it.PackageName, it.InstalledVersion)
		if it.VulnerabilityID != "" {
			title = fmt.Sprintf("%s (%s)", title, it.VulnerabilityID)
		}
		findings = append(findings, domain.RawFinding{
			// Dependency advisories are file scoped, there is no
			// meaningful source line.
			Line:        0,
			Category:    domain.CategorySecurity,
			Severity:    domain.SeverityHigh,
			Title:       title,
			Description: it.Advisory,
		})
	}
	return findings, nil
}
