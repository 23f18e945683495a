package review

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// stubAnalyzer runs a caller-supplied function per unit.
type stubAnalyzer struct {
	name      string
	languages map[string]bool // nil = all
	fn        func(ctx context.Context, u analysis.Unit) ([]domain.RawFinding, error)
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Applicable(language string) bool {
	if s.languages == nil {
		return true
	}
	return s.languages[language]
}

func (s *stubAnalyzer) Analyze(ctx context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
	return s.fn(ctx, u)
}

func oneFinding(line int) []domain.RawFinding {
	return []domain.RawFinding{{
		Line:       line,
		Category:   domain.CategoryBug,
		Severity:   domain.SeverityMedium,
		Title:      "stub finding",
		Confidence: 80,
	}}
}

type resultSink struct {
	mu      sync.Mutex
	results []FileResult
}

func (r *resultSink) add(res FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultSink) byPath() map[string]FileResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]FileResult, len(r.results))
	for _, res := range r.results {
		out[res.Path] = res
	}
	return out
}

func TestSchedulerOneCallbackPerFile(t *testing.T) {
	reg := analysis.NewRegistry(
		&stubAnalyzer{name: "ai", fn: func(_ context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
			return oneFinding(1), nil
		}},
		&stubAnalyzer{name: "bandit", languages: map[string]bool{"python": true}, fn: func(_ context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
			return oneFinding(2), nil
		}},
	)

	files := []FileInput{
		{Path: "a.py", Language: "python", Content: "x"},
		{Path: "b.go", Language: "go", Content: "y"},
	}

	var sink resultSink
	sched := &Scheduler{Limit: 2, UnitTimeout: time.Second}
	err := sched.Run(context.Background(), files, reg, "", sink.add)
	require.NoError(t, err)

	got := sink.byPath()
	require.Len(t, got, 2)
	assert.Len(t, got["a.py"].Raw, 2, "both analyzers apply to python")
	assert.Len(t, got["b.go"].Raw, 1, "only the ai analyzer applies to go")
	assert.Empty(t, got["a.py"].Degraded)

	// Analyzer attribution is stamped by the scheduler.
	names := map[string]bool{}
	for _, f := range got["a.py"].Raw {
		names[f.Analyzer] = true
	}
	assert.True(t, names["ai"] && names["bandit"])
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	const limit = 2

	var inFlight, peak int64
	reg := analysis.NewRegistry(&stubAnalyzer{name: "ai", fn: func(_ context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return nil, nil
	}})

	files := make([]FileInput, 8)
	for i := range files {
		files[i] = FileInput{Path: "f.go", Language: "go", Content: "x"}
	}

	var sink resultSink
	sched := &Scheduler{Limit: limit, UnitTimeout: time.Second}
	require.NoError(t, sched.Run(context.Background(), files, reg, "", sink.add))

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(limit))
}

func TestSchedulerNoApplicableAnalyzer(t *testing.T) {
	reg := analysis.NewRegistry(&stubAnalyzer{
		name:      "bandit",
		languages: map[string]bool{"python": true},
		fn: func(_ context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
			return oneFinding(1), nil
		},
	})

	var sink resultSink
	sched := &Scheduler{Limit: 2, UnitTimeout: time.Second}
	err := sched.Run(context.Background(), []FileInput{{Path: "m.rs", Language: "rust"}}, reg, "", sink.add)
	require.NoError(t, err)

	got := sink.byPath()
	require.Contains(t, got, "m.rs")
	assert.Empty(t, got["m.rs"].Raw)
	require.Len(t, got["m.rs"].Degraded, 1)
	assert.Contains(t, got["m.rs"].Degraded[0], "no applicable analyzer")
}

func TestSchedulerUnitFailureDegradesFileOnly(t *testing.T) {
	reg := analysis.NewRegistry(
		&stubAnalyzer{name: "ai", fn: func(_ context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
			if u.FilePath == "bad.go" {
				return nil, analysis.ErrUnavailable
			}
			return oneFinding(1), nil
		}},
	)

	files := []FileInput{
		{Path: "good.go", Language: "go", Content: "x"},
		{Path: "bad.go", Language: "go", Content: "y"},
	}

	var sink resultSink
	sched := &Scheduler{Limit: 2, UnitTimeout: time.Second}
	require.NoError(t, sched.Run(context.Background(), files, reg, "", sink.add))

	got := sink.byPath()
	require.Len(t, got, 2)
	assert.Empty(t, got["good.go"].Degraded)
	assert.Len(t, got["good.go"].Raw, 1)
	assert.Empty(t, got["bad.go"].Raw)
	require.Len(t, got["bad.go"].Degraded, 1)
	assert.Equal(t, "ai: unavailable", got["bad.go"].Degraded[0])
}

func TestSchedulerUnitTimeout(t *testing.T) {
	reg := analysis.NewRegistry(&stubAnalyzer{name: "ai", fn: func(ctx context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	var sink resultSink
	sched := &Scheduler{Limit: 1, UnitTimeout: 30 * time.Millisecond}

	start := time.Now()
	err := sched.Run(context.Background(), []FileInput{{Path: "slow.go", Language: "go", Content: "x"}}, reg, "", sink.add)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	got := sink.byPath()
	require.Len(t, got["slow.go"].Degraded, 1)
	assert.Equal(t, "ai: timeout", got["slow.go"].Degraded[0])
}

// A hanging unit must not stall unrelated files: with limit 2 and one unit
// pinned until its deadline, the other files finish on the free slot.
func TestSchedulerSlowUnitDoesNotBlockOtherFiles(t *testing.T) {
	reg := analysis.NewRegistry(&stubAnalyzer{name: "ai", fn: func(ctx context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
		if u.FilePath == "hang.go" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return oneFinding(1), nil
	}})

	files := []FileInput{
		{Path: "hang.go", Language: "go", Content: "x"},
		{Path: "a.go", Language: "go", Content: "x"},
		{Path: "b.go", Language: "go", Content: "x"},
		{Path: "c.go", Language: "go", Content: "x"},
		{Path: "d.go", Language: "go", Content: "x"},
	}

	var sink resultSink
	sched := &Scheduler{Limit: 2, UnitTimeout: 200 * time.Millisecond}

	start := time.Now()
	require.NoError(t, sched.Run(context.Background(), files, reg, "", sink.add))
	elapsed := time.Since(start)

	got := sink.byPath()
	require.Len(t, got, 5)
	assert.Len(t, got["hang.go"].Degraded, 1)
	for _, p := range []string{"a.go", "b.go", "c.go", "d.go"} {
		assert.Len(t, got[p].Raw, 1, p)
	}
	// Wall clock is bounded by the hanging unit's own deadline, not by a
	// serial pass over every file.
	assert.Less(t, elapsed, 800*time.Millisecond)
}

func TestSchedulerCancelStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started int64
	reg := analysis.NewRegistry(&stubAnalyzer{name: "ai", fn: func(_ context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
		if atomic.AddInt64(&started, 1) == 1 {
			cancel()
		}
		time.Sleep(10 * time.Millisecond)
		return oneFinding(1), nil
	}})

	files := make([]FileInput, 20)
	for i := range files {
		files[i] = FileInput{Path: "f.go", Language: "go", Content: "x"}
	}

	var sink resultSink
	sched := &Scheduler{Limit: 1, UnitTimeout: time.Second}
	err := sched.Run(ctx, files, reg, "", sink.add)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, atomic.LoadInt64(&started), int64(20), "undispatched units must be skipped after cancel")
}
