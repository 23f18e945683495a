package statictool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// Static tools report with full confidence; only AI findings carry a
// confidence estimate.
const toolConfidence = 100

// parser converts one tool's stdout into raw findings.
type parser func(stdout []byte) ([]domain.RawFinding, error)

// Tool adapts a JSON-emitting command-line analyzer to the analyzer
// contract. The snippet is written to a temp file, the tool is invoked
// with the caller's context (the scheduler supplies the deadline), and
// stdout is parsed.
type Tool struct {
	name      string
	command   string
	args      []string // file path is appended last
	languages map[string]bool
	okExits   map[int]bool // exit codes that still carry parseable output
	parse     parser
}

func (t *Tool) Name() string { return t.name }

func (t *Tool) Applicable(language string) bool {
	return t.languages[strings.ToLower(language)]
}

func (t *Tool) Analyze(ctx context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
	ext, ok := extensions[strings.ToLower(u.Language)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported language %q", analysis.ErrInvalidInput, u.Language)
	}

	tmp, err := os.CreateTemp("", "review-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("%w: temp file: %v", analysis.ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(u.Content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: temp file: %v", analysis.ErrUnavailable, err)
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, t.command, append(append([]string{}, t.args...), tmp.Name())...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s", analysis.ErrTimeout, t.name)
	}
	if err != nil {
		var ee *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return nil, fmt.Errorf("%w: %s not installed", analysis.ErrUnavailable, t.command)
		case errors.As(err, &ee) && t.okExits[ee.ExitCode()]:
			// Some tools signal "issues found" through the exit code.
		default:
			return nil, fmt.Errorf("%w: %s: %v (%s)", analysis.ErrUnavailable, t.name, err, strings.TrimSpace(stderr.String()))
		}
	}

	findings, perr := t.parse(stdout.Bytes())
	if perr != nil {
		return nil, fmt.Errorf("%w: %s output: %v", analysis.ErrInvalidInput, t.name, perr)
	}
	for i := range findings {
		findings[i].Analyzer = t.name
		findings[i].Confidence = toolConfidence
	}
	return findings, nil
}

// extensions maps language hints to the file suffix the tools expect.
var extensions = map[string]string{
	"python":     ".py",
	"py":         ".py",
	"javascript": ".js",
	"typescript": ".ts",
	"java":       ".java",
	"go":         ".go",
	"rust":       ".rs",
	"c":          ".c",
	"cpp":        ".cpp",
	"ruby":       ".rb",
	"php":        ".php",

	// Pinned Python dependency files, consumed by safety.
	"requirements": ".txt",
}

func languageSet(langs []string) map[string]bool {
	m := make(map[string]bool, len(langs))
	for _, l := range langs {
		m[strings.ToLower(l)] = true
	}
	return m
}
