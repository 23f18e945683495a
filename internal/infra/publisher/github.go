package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

const defaultBaseURL = "https://api.github.com"

// GitHub posts the merged review back to the pull request as a single
// summary comment. Implements the Publisher port.
type GitHub struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewGitHub(token string) *GitHub {
	return &GitHub{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

func NewGitHubWithBaseURL(token, baseURL string) *GitHub {
	p := NewGitHub(token)
	p.baseURL = strings.TrimSuffix(baseURL, "/")
	return p
}

func (p *GitHub) Publish(ctx context.Context, s *domain.Session, findings []domain.MergedFinding) error {
	// Manual sessions have no PR surface to post to.
	if s.PRNumber == 0 || !strings.Contains(s.Repository, "/") {
		return nil
	}
	parts := strings.SplitN(s.Repository, "/", 2)
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", p.baseURL, parts[0], parts[1], s.PRNumber)

	payload, err := json.Marshal(map[string]string{"body": buildComment(s, findings)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github comment status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

var severityMarker = map[domain.Severity]string{
	domain.SeverityCritical: "🔴",
	domain.SeverityHigh:     "🟠",
	domain.SeverityMedium:   "🟡",
	domain.SeverityLow:      "⚪",
}

// buildComment renders the session result as a markdown comment: counts,
// degraded files, then findings grouped in order.
func buildComment(s *domain.Session, findings []domain.MergedFinding) string {
	var b strings.Builder
	b.WriteString("## Automated Code Review\n\n")

	var counts domain.SeverityCounts
	var summary string
	for _, f := range findings {
		if f.FilePath == "SUMMARY" {
			summary = f.Description
			continue
		}
		counts.Add(f.Severity)
	}
	fmt.Fprintf(&b, "Analyzed **%d** file(s), found **%d** issue(s): %d critical, %d high, %d medium, %d low.\n\n",
		s.TotalFiles, counts.Total, counts.Critical, counts.High, counts.Medium, counts.Low)

	var degraded []string
	for _, fr := range s.Files {
		if fr.Degraded {
			degraded = append(degraded, fr.Path)
		}
	}
	if len(degraded) > 0 {
		fmt.Fprintf(&b, "> ⚠️ Some analyzers could not run on: %s\n\n", strings.Join(degraded, ", "))
	}

	if summary != "" {
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	for _, f := range findings {
		if f.FilePath == "SUMMARY" {
			continue
		}
		loc := f.FilePath
		if f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.FilePath, f.Line)
		}
		fmt.Fprintf(&b, "- %s **[%s/%s]** `%s`: %s (%d%% confidence, via %s)\n",
			severityMarker[f.Severity], f.Severity, f.Category, loc, f.Title,
			f.Confidence, strings.Join(f.Sources, "+"))
		if f.Suggestion != "" {
			fmt.Fprintf(&b, "  - Suggestion: %s\n", f.Suggestion)
		}
	}
	return b.String()
}
