package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/automaton-review/internal/application/review"
	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
	"github.com/bryanwahyu/automaton-review/internal/infra/ai/prompt"
)

const maxTokens = 2048

// AnalyzerName is how the AI adapter identifies itself in finding sources
// and degraded records.
const AnalyzerName = "ai"

// Analyzer is the LLM-backed analyzer. It satisfies the analyzer contract
// and also generates the closing review summary.
type Analyzer struct {
	*openai.Client
	Model string
}

func NewAnalyzer(apiKey, model string) *Analyzer {
	return &Analyzer{Client: openai.NewClient(apiKey), Model: model}
}

func (a *Analyzer) Name() string { return AnalyzerName }

// Applicable: the model reviews any language.
func (a *Analyzer) Applicable(string) bool { return true }

// aiResponse is the JSON object the model is instructed to return.
type aiResponse struct {
	Confidence int `json:"confidence"`
	Findings   []struct {
		Line        int    `json:"line"`
		Category    string `json:"category"`
		Severity    string `json:"severity"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Suggestion  string `json:"suggestion"`
	} `json:"findings"`
}

func (a *Analyzer) Analyze(ctx context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
	content, err := a.chat(ctx,
		prompt.GetSystemPrompt(),
		prompt.GetUserPrompt(u.FilePath, u.Language, u.Content, u.RepoContext, u.ChangedLines),
		true,
	)
	if err != nil {
		return nil, err
	}

	var resp aiResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		return nil, fmt.Errorf("parse ai response: %w", err)
	}

	conf := resp.Confidence
	if conf <= 0 || conf > 100 {
		conf = 50
	}
	findings := make([]domain.RawFinding, 0, len(resp.Findings))
	for _, f := range resp.Findings {
		findings = append(findings, domain.RawFinding{
			Line:        f.Line,
			Category:    domain.NormalizeCategory(f.Category),
			Severity:    domain.NormalizeSeverity(f.Severity),
			Title:       f.Title,
			Description: f.Description,
			Suggestion:  f.Suggestion,
			Confidence:  conf,
			Analyzer:    AnalyzerName,
		})
	}
	return findings, nil
}

// Summarize implements review.Summarizer.
func (a *Analyzer) Summarize(ctx context.Context, s *domain.Session, stats review.SummaryStats) (string, error) {
	return a.chat(ctx,
		"You are an expert code reviewer providing professional feedback.",
		prompt.GetSummaryPrompt(s.Repository, s.PRTitle, stats.Files, stats.Bugs, stats.Security, stats.Quality),
		false,
	)
}

func (a *Analyzer) chat(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	model := a.Model
	if model == "" {
		model = "o3-2025-04-16"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := a.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", analysis.ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyAPIError maps provider failures onto the analyzer error taxonomy.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", analysis.ErrQuotaExceeded, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", analysis.ErrUnavailable, err)
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return fmt.Errorf("%w: %v", analysis.ErrInvalidInput, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", analysis.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", analysis.ErrUnavailable, err)
}

// stripFences removes a markdown code fence if the model wrapped its JSON
// despite the instructions.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.Join(lines[1:end], "\n")
}
