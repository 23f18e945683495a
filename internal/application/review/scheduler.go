package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// FileInput is one file submitted for review.
type FileInput struct {
	Path         string `json:"path"`
	Language     string `json:"language"`
	Content      string `json:"content"`
	ChangedLines []int  `json:"changed_lines,omitempty"`
}

// FileResult is the fan-in product for one file: every raw finding from
// every analyzer that resolved, plus the degraded sources.
type FileResult struct {
	Path     string
	Raw      []domain.RawFinding
	Degraded []string
}

// fileState tracks how many units of a file are still in flight.
type fileState struct {
	mu       sync.Mutex
	path     string
	pending  int
	raw      []domain.RawFinding
	degraded []string
}

// resolve records one unit outcome and reports whether the file is done.
func (f *fileState) resolve(findings []domain.RawFinding, degraded string) (FileResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, findings...)
	if degraded != "" {
		f.degraded = append(f.degraded, degraded)
	}
	f.pending--
	if f.pending > 0 {
		return FileResult{}, false
	}
	return FileResult{Path: f.path, Raw: f.raw, Degraded: f.degraded}, true
}

// Scheduler fans (file x analyzer) units out over a bounded pool and
// reports per-file completion. A slow or failing unit only delays the file
// it belongs to; every other file completes independently.
type Scheduler struct {
	Limit       int           // max units in flight, default 4
	UnitTimeout time.Duration // per-unit deadline, default 60s
}

// Run dispatches one unit per applicable (file, analyzer) pair and calls
// onFileDone exactly once per file, from the goroutine that resolved the
// file's last unit. It returns ctx.Err() when the session was canceled or
// hit its outer deadline before every unit could be dispatched; per-unit
// failures are absorbed into the file's degraded record instead.
func (s *Scheduler) Run(ctx context.Context, files []FileInput, reg *analysis.Registry, repoContext string, onFileDone func(FileResult)) error {
	limit := s.Limit
	if limit <= 0 {
		limit = 4
	}
	timeout := s.UnitTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	type unitWork struct {
		analyzer analysis.Analyzer
		unit     analysis.Unit
		state    *fileState
	}

	var work []unitWork
	for _, f := range files {
		applicable := reg.For(f.Language)
		if len(applicable) == 0 {
			// No analyzer could run at all: done immediately, flagged so
			// the report distinguishes this from a clean pass.
			onFileDone(FileResult{
				Path:     f.Path,
				Degraded: []string{"none: no applicable analyzer for language " + f.Language},
			})
			continue
		}
		st := &fileState{path: f.Path, pending: len(applicable)}
		for _, a := range applicable {
			work = append(work, unitWork{
				analyzer: a,
				state:    st,
				unit: analysis.Unit{
					FilePath:     f.Path,
					Language:     f.Language,
					Content:      f.Content,
					ChangedLines: f.ChangedLines,
					RepoContext:  repoContext,
				},
			})
		}
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, w := range work {
		w := w
		g.Go(func() error {
			// Once canceled, no new units are dispatched. In-flight units
			// keep their own deadline below.
			if ctx.Err() != nil {
				return nil
			}

			// Detach from session cancellation so an in-flight unit is
			// bounded by its timeout, not cut mid-call.
			unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			findings, err := w.analyzer.Analyze(unitCtx, w.unit)
			cancel()

			degraded := ""
			if err != nil {
				degraded = fmt.Sprintf("%s: %s", w.analyzer.Name(), classifyUnitError(unitCtx, err))
				findings = nil
				log.Warn().
					Str("file", w.unit.FilePath).
					Str("analyzer", w.analyzer.Name()).
					Err(err).
					Msg("analyzer unit degraded")
			}
			for i := range findings {
				findings[i].Analyzer = w.analyzer.Name()
			}

			if res, done := w.state.resolve(findings, degraded); done {
				onFileDone(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// classifyUnitError maps a unit failure onto the analyzer error taxonomy
// for the degraded record.
func classifyUnitError(unitCtx context.Context, err error) string {
	switch {
	case errors.Is(err, analysis.ErrTimeout), errors.Is(unitCtx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, analysis.ErrQuotaExceeded):
		return "quota exceeded"
	case errors.Is(err, analysis.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, analysis.ErrInvalidInput):
		return "invalid input"
	default:
		return err.Error()
	}
}
