package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/application"
	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// memRepo is an in-memory Repository with the same monotonic-progress and
// terminal-state guards as the SQL implementations.
type memRepo struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*domain.Session
	findings map[domain.SessionID][]domain.MergedFinding

	failAppend bool // force AppendFindings to error
}

func newMemRepo() *memRepo {
	return &memRepo{
		sessions: make(map[domain.SessionID]*domain.Session),
		findings: make(map[domain.SessionID][]domain.MergedFinding),
	}
}

func (r *memRepo) CreateSession(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memRepo) UpdateProgress(_ context.Context, _ string, id domain.SessionID, p domain.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Status.Terminal() {
		return nil
	}
	if p.Status != "" {
		s.Status = p.Status
	}
	if p.ProcessedFiles > s.ProcessedFiles {
		s.ProcessedFiles = p.ProcessedFiles
	}
	if p.TotalIssues > s.TotalIssues {
		s.TotalIssues = p.TotalIssues
	}
	if p.File != nil {
		s.Files = append(s.Files, *p.File)
	}
	return nil
}

func (r *memRepo) AppendFindings(_ context.Context, _ string, id domain.SessionID, fs []domain.MergedFinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend {
		return errors.New("disk full")
	}
	if _, ok := r.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	r.findings[id] = append(r.findings[id], fs...)
	return nil
}

func (r *memRepo) CompleteSession(_ context.Context, _ string, id domain.SessionID, completedAt time.Time, reportURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Status.Terminal() {
		return nil
	}
	s.Status = domain.StatusCompleted
	s.CompletedAt = &completedAt
	s.ReportURL = reportURL
	return nil
}

func (r *memRepo) FailSession(_ context.Context, _ string, id domain.SessionID, reason string, failedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.Status.Terminal() {
		return nil
	}
	s.Status = domain.StatusFailed
	s.ErrorMessage = reason
	s.CompletedAt = &failedAt
	return nil
}

func (r *memRepo) GetSession(_ context.Context, _ string, id domain.SessionID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) GetFindings(_ context.Context, _ string, id domain.SessionID) ([]domain.MergedFinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]domain.MergedFinding(nil), r.findings[id]...)
	domain.SortMerged(out)
	return out, nil
}

func (r *memRepo) Summary(_ context.Context, _ string, _ int) (domain.SeverityCounts, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts domain.SeverityCounts
	for _, fs := range r.findings {
		for _, f := range fs {
			counts.Add(f.Severity)
		}
	}
	return counts, len(r.sessions), nil
}

func newTestService(repo *memRepo, analyzers ...analysis.Analyzer) *Service {
	return &Service{
		Repo:         repo,
		Analyzers:    analysis.NewRegistry(analyzers...),
		Clock:        application.SystemClock{},
		Concurrency:  2,
		UnitTimeout:  time.Second,
		StoreRetries: 1,
		StoreBackoff: time.Millisecond,
	}
}

func waitTerminal(t *testing.T, svc *Service, tenant string, id domain.SessionID) *domain.Session {
	t.Helper()
	var sess *domain.Session
	require.Eventually(t, func() bool {
		s, err := svc.GetSession(context.Background(), tenant, id)
		if err != nil {
			return false
		}
		sess = s
		return s.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return sess
}

func TestStartReviewZeroFilesFailsImmediately(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubAnalyzer{name: "ai", fn: func(_ context.Context, _ analysis.Unit) ([]domain.RawFinding, error) {
		return nil, nil
	}})

	result, err := svc.StartReview(context.Background(), StartReviewCommand{TenantID: "acme"})
	require.ErrorIs(t, err, domain.ErrSessionPrecondition)
	assert.Equal(t, domain.StatusFailed, result.Status)

	// The session is observable and failed, never having run.
	sess, gerr := svc.GetSession(context.Background(), "acme", domain.SessionID(result.SessionID))
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusFailed, sess.Status)
	assert.Equal(t, "no files to analyze", sess.ErrorMessage)
	assert.Equal(t, 0, sess.ProcessedFiles)
}

func TestStartReviewCompletes(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubAnalyzer{name: "ai", fn: func(_ context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
		return []domain.RawFinding{{
			Line:       3,
			Category:   domain.CategoryBug,
			Severity:   domain.SeverityHigh,
			Title:      "bug in " + u.FilePath,
			Confidence: 90,
		}}, nil
	}})

	result, err := svc.StartReview(context.Background(), StartReviewCommand{
		TenantID:   "acme",
		Repository: "acme/app",
		PRNumber:   7,
		Files: []FileInput{
			{Path: "a.go", Language: "go", Content: "package a"},
			{Path: "b.go", Language: "go", Content: "package b"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, result.Status)

	sess := waitTerminal(t, svc, "acme", domain.SessionID(result.SessionID))
	assert.Equal(t, domain.StatusCompleted, sess.Status)
	assert.Equal(t, 2, sess.ProcessedFiles)
	assert.Equal(t, 2, sess.TotalIssues)
	require.NotNil(t, sess.CompletedAt)

	findings, err := svc.GetFindings(context.Background(), "acme", domain.SessionID(result.SessionID))
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, []string{"ai"}, findings[0].Sources)
}

func TestStartReviewDegradedFileStillCompletes(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo,
		&stubAnalyzer{name: "ai", fn: func(_ context.Context, u analysis.Unit) ([]domain.RawFinding, error) {
			if u.FilePath == "broken.py" {
				return nil, analysis.ErrUnavailable
			}
			return nil, nil
		}},
	)

	result, err := svc.StartReview(context.Background(), StartReviewCommand{
		TenantID: "acme",
		Files: []FileInput{
			{Path: "ok.py", Language: "python", Content: "pass"},
			{Path: "broken.py", Language: "python", Content: "pass"},
		},
	})
	require.NoError(t, err)

	sess := waitTerminal(t, svc, "acme", domain.SessionID(result.SessionID))
	assert.Equal(t, domain.StatusCompleted, sess.Status, "per-unit failure degrades the file, not the session")

	var degraded *domain.FileReport
	for i := range sess.Files {
		if sess.Files[i].Path == "broken.py" {
			degraded = &sess.Files[i]
		}
	}
	require.NotNil(t, degraded)
	assert.True(t, degraded.Degraded)
	assert.Equal(t, []string{"ai: unavailable"}, degraded.DegradedSources)
}

func TestStartReviewStoreFailureFailsSession(t *testing.T) {
	repo := newMemRepo()
	repo.failAppend = true
	svc := newTestService(repo, &stubAnalyzer{name: "ai", fn: func(_ context.Context, _ analysis.Unit) ([]domain.RawFinding, error) {
		return oneFinding(1), nil
	}})

	result, err := svc.StartReview(context.Background(), StartReviewCommand{
		TenantID: "acme",
		Files:    []FileInput{{Path: "a.go", Language: "go", Content: "x"}},
	})
	require.NoError(t, err)

	sess := waitTerminal(t, svc, "acme", domain.SessionID(result.SessionID))
	assert.Equal(t, domain.StatusFailed, sess.Status)
	assert.Contains(t, sess.ErrorMessage, "store unavailable")
}

func TestCancelRunningSession(t *testing.T) {
	release := make(chan struct{})
	repo := newMemRepo()
	svc := newTestService(repo, &stubAnalyzer{name: "ai", fn: func(ctx context.Context, _ analysis.Unit) ([]domain.RawFinding, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	}})
	svc.Concurrency = 1

	files := make([]FileInput, 4)
	for i := range files {
		files[i] = FileInput{Path: "f.go", Language: "go", Content: "x"}
	}
	result, err := svc.StartReview(context.Background(), StartReviewCommand{TenantID: "acme", Files: files})
	require.NoError(t, err)

	id := domain.SessionID(result.SessionID)
	require.Eventually(t, func() bool {
		s, err := svc.GetSession(context.Background(), "acme", id)
		return err == nil && s.Status == domain.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Cancel(context.Background(), "acme", id))
	close(release)

	sess := waitTerminal(t, svc, "acme", id)
	assert.Equal(t, domain.StatusFailed, sess.Status)
	assert.Equal(t, "canceled by caller", sess.ErrorMessage)
}

func TestCancelUnknownSession(t *testing.T) {
	svc := newTestService(newMemRepo())
	err := svc.Cancel(context.Background(), "acme", "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCancelSessionOwnedElsewhere(t *testing.T) {
	// The store knows the session but no run in this process holds its
	// cancel handle, as happens behind a load balancer.
	repo := newMemRepo()
	require.NoError(t, repo.CreateSession(context.Background(), &domain.Session{
		ID:       "remote-1",
		TenantID: "acme",
		Status:   domain.StatusRunning,
	}))

	svc := newTestService(repo)
	err := svc.Cancel(context.Background(), "acme", "remote-1")
	assert.ErrorIs(t, err, domain.ErrSessionNotCancelable)
	assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCancelTerminalSession(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubAnalyzer{name: "ai", fn: func(_ context.Context, _ analysis.Unit) ([]domain.RawFinding, error) {
		return nil, nil
	}})

	result, err := svc.StartReview(context.Background(), StartReviewCommand{
		TenantID: "acme",
		Files:    []FileInput{{Path: "a.go", Language: "go", Content: "x"}},
	})
	require.NoError(t, err)
	waitTerminal(t, svc, "acme", domain.SessionID(result.SessionID))

	// The background goroutine may not have dropped its cancel entry yet.
	var cerr error
	require.Eventually(t, func() bool {
		cerr = svc.Cancel(context.Background(), "acme", domain.SessionID(result.SessionID))
		return cerr != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, cerr, domain.ErrSessionTerminal)
}

func TestManualReview(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubAnalyzer{name: "ai", fn: func(_ context.Context, _ analysis.Unit) ([]domain.RawFinding, error) {
		return []domain.RawFinding{{
			Line:       2,
			Category:   domain.CategorySecurity,
			Severity:   domain.SeverityCritical,
			Title:      "eval on user input",
			Confidence: 95,
		}}, nil
	}})

	sess, findings, err := svc.ManualReview(context.Background(), ManualReviewCommand{
		TenantID: "acme",
		File:     FileInput{Path: "snippet.py", Language: "python", Content: "eval(x)"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, sess.Status)
	require.Len(t, findings, 1)
	assert.Equal(t, domain.SeverityCritical, findings[0].Severity)
}

func TestManualReviewRejectsEmptySnippet(t *testing.T) {
	svc := newTestService(newMemRepo())
	_, _, err := svc.ManualReview(context.Background(), ManualReviewCommand{
		TenantID: "acme",
		File:     FileInput{Path: "a.py", Language: "python"},
	})
	assert.ErrorIs(t, err, domain.ErrSessionPrecondition)
}

// sessionSummarizer returns a canned summary to verify the closing
// SUMMARY finding is appended.
type cannedSummarizer struct{ text string }

func (c cannedSummarizer) Summarize(context.Context, *domain.Session, SummaryStats) (string, error) {
	return c.text, nil
}

func TestCompletedSessionGetsSummaryFinding(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubAnalyzer{name: "ai", fn: func(_ context.Context, _ analysis.Unit) ([]domain.RawFinding, error) {
		return oneFinding(4), nil
	}})
	svc.Summarizer = cannedSummarizer{text: "One medium bug found."}

	result, err := svc.StartReview(context.Background(), StartReviewCommand{
		TenantID: "acme",
		Files:    []FileInput{{Path: "a.go", Language: "go", Content: "x"}},
	})
	require.NoError(t, err)
	waitTerminal(t, svc, "acme", domain.SessionID(result.SessionID))

	findings, err := svc.GetFindings(context.Background(), "acme", domain.SessionID(result.SessionID))
	require.NoError(t, err)

	var summary *domain.MergedFinding
	for i := range findings {
		if findings[i].FilePath == "SUMMARY" {
			summary = &findings[i]
		}
	}
	require.NotNil(t, summary)
	assert.Equal(t, "One medium bug found.", summary.Description)
	assert.Equal(t, 0, summary.Line, "summary is file-scoped")
	assert.Equal(t, []string{"ai"}, summary.Sources)
}

func TestSummaryAggregates(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubAnalyzer{name: "ai", fn: func(_ context.Context, _ analysis.Unit) ([]domain.RawFinding, error) {
		return []domain.RawFinding{
			{Line: 1, Category: domain.CategorySecurity, Severity: domain.SeverityCritical, Title: "a", Confidence: 90},
			{Line: 20, Category: domain.CategoryBug, Severity: domain.SeverityLow, Title: "b", Confidence: 60},
		}, nil
	}})

	result, err := svc.StartReview(context.Background(), StartReviewCommand{
		TenantID: "acme",
		Files:    []FileInput{{Path: "a.go", Language: "go", Content: "x"}},
	})
	require.NoError(t, err)
	waitTerminal(t, svc, "acme", domain.SessionID(result.SessionID))

	summary, err := svc.Summary(context.Background(), "acme", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, summary["total_sessions"])
	assert.Equal(t, 1, summary["critical"])
	assert.Equal(t, 1, summary["low"])
	assert.Equal(t, 2, summary["total_issues"])
}
