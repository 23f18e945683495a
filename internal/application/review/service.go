package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/automaton-review/internal/application"
	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// SummaryStats feeds the review-summary generation after a session
// finishes merging.
type SummaryStats struct {
	Files    int
	Bugs     int
	Security int
	Quality  int
}

// Summarizer produces the closing review summary. Optional; failures are
// logged and never affect the session outcome.
type Summarizer interface {
	Summarize(ctx context.Context, s *domain.Session, stats SummaryStats) (string, error)
}

// Service implements use-cases untuk Review sessions.
// Service is designed to be used concurrently and is thread-safe.
type Service struct {
	Repo       domain.Repository
	Analyzers  *analysis.Registry
	Publisher  domain.Publisher
	Archive    domain.ReportArchive
	Contexts   domain.ContextProvider
	Summarizer Summarizer
	Clock      application.Clock

	// Engine tuning. Zero values fall back to defaults.
	Concurrency    int
	UnitTimeout    time.Duration
	SessionTimeout time.Duration
	LineTolerance  int
	StoreRetries   int
	StoreBackoff   time.Duration

	cancels sync.Map // domain.SessionID -> context.CancelFunc
}

//
// ==== USE CASES ====
//

// Command untuk trigger review
type StartReviewCommand struct {
	TenantID   string
	Repository string
	PRNumber   int
	PRTitle    string
	CommitSHA  string
	Files      []FileInput
}

type StartReviewResult struct {
	SessionID string        `json:"session_id"`
	Status    domain.Status `json:"status"`
}

// StartReview creates the session and launches the fan-out in the
// background. The returned id is pollable immediately.
func (s *Service) StartReview(ctx context.Context, cmd StartReviewCommand) (StartReviewResult, error) {
	now := s.Clock.Now()
	id := domain.SessionID(uuid.New().String())

	sess := domain.Session{
		ID:         id,
		TenantID:   cmd.TenantID,
		Repository: cmd.Repository,
		PRNumber:   cmd.PRNumber,
		PRTitle:    cmd.PRTitle,
		CommitSHA:  cmd.CommitSHA,
		Status:     domain.StatusPending,
		TotalFiles: len(cmd.Files),
		StartedAt:  now,
	}
	if err := s.withStoreRetry(ctx, func(c context.Context) error {
		return s.Repo.CreateSession(c, &sess)
	}); err != nil {
		return StartReviewResult{}, err
	}

	// Fatal precondition: nothing to analyze. The session exists so the
	// caller can observe the failure, but it never reaches running.
	if len(cmd.Files) == 0 {
		reason := "no files to analyze"
		_ = s.withStoreRetry(ctx, func(c context.Context) error {
			return s.Repo.FailSession(c, cmd.TenantID, id, reason, now)
		})
		return StartReviewResult{SessionID: string(id), Status: domain.StatusFailed},
			fmt.Errorf("%w: %s", domain.ErrSessionPrecondition, reason)
	}

	// Run sampai selesai di background, detached from the request context.
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancels.Store(id, cancel)
	go func() {
		defer s.cancels.Delete(id)
		defer cancel()
		s.runSession(runCtx, newTracker(sess), cmd.Files)
	}()

	return StartReviewResult{SessionID: string(id), Status: domain.StatusPending}, nil
}

// ManualReviewCommand reviews a single submitted snippet synchronously
// through the same engine.
type ManualReviewCommand struct {
	TenantID string
	File     FileInput
}

func (s *Service) ManualReview(ctx context.Context, cmd ManualReviewCommand) (*domain.Session, []domain.MergedFinding, error) {
	if cmd.File.Path == "" || cmd.File.Content == "" {
		return nil, nil, fmt.Errorf("%w: path and code are required", domain.ErrSessionPrecondition)
	}

	now := s.Clock.Now()
	sess := domain.Session{
		ID:         domain.SessionID(uuid.New().String()),
		TenantID:   cmd.TenantID,
		Repository: "manual",
		Status:     domain.StatusPending,
		TotalFiles: 1,
		StartedAt:  now,
	}
	if err := s.withStoreRetry(ctx, func(c context.Context) error {
		return s.Repo.CreateSession(c, &sess)
	}); err != nil {
		return nil, nil, err
	}

	t := newTracker(sess)
	s.runSession(ctx, t, []FileInput{cmd.File})

	snap := t.snapshot()
	findings, err := s.Repo.GetFindings(ctx, cmd.TenantID, sess.ID)
	if err != nil {
		return &snap, nil, err
	}
	return &snap, findings, nil
}

// Cancel stops a running session: no new units are dispatched and the
// session fails with a cancellation reason.
func (s *Service) Cancel(ctx context.Context, tenant string, id domain.SessionID) error {
	if v, ok := s.cancels.Load(id); ok {
		v.(context.CancelFunc)()
		return nil
	}
	// Not running in this process; report what the store knows.
	sess, err := s.Repo.GetSession(ctx, tenant, id)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return fmt.Errorf("%w: session %s is %s", domain.ErrSessionTerminal, id, sess.Status)
	}
	return fmt.Errorf("%w: session %s is %s", domain.ErrSessionNotCancelable, id, sess.Status)
}

// GetSession ambil 1 session by id
func (s *Service) GetSession(ctx context.Context, tenant string, id domain.SessionID) (*domain.Session, error) {
	return s.Repo.GetSession(ctx, tenant, id)
}

// GetFindings returns the ordered merged findings of a session.
func (s *Service) GetFindings(ctx context.Context, tenant string, id domain.SessionID) ([]domain.MergedFinding, error) {
	if _, err := s.Repo.GetSession(ctx, tenant, id); err != nil {
		return nil, err
	}
	return s.Repo.GetFindings(ctx, tenant, id)
}

// Summary rekap hasil review N hari terakhir
func (s *Service) Summary(ctx context.Context, tenant string, sinceDays int) (map[string]any, error) {
	counts, sessions, err := s.Repo.Summary(ctx, tenant, sinceDays)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total_sessions": sessions,
		"critical":       counts.Critical,
		"high":           counts.High,
		"medium":         counts.Medium,
		"low":            counts.Low,
		"total_issues":   counts.Total,
	}, nil
}

//
// ==== ORCHESTRATION ====
//

// runSession drives one session end to end: running -> fan-out -> per-file
// merge+persist -> terminal state -> publish. Blocks until terminal.
func (s *Service) runSession(ctx context.Context, t *tracker, files []FileInput) {
	sess := t.snapshot()

	if s.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SessionTimeout)
		defer cancel()
	}

	if !t.start() {
		return
	}
	if err := s.withStoreRetry(ctx, func(c context.Context) error {
		return s.Repo.UpdateProgress(c, sess.TenantID, sess.ID, domain.Progress{Status: domain.StatusRunning})
	}); err != nil {
		s.failSession(t, fmt.Sprintf("recording start: %v", err))
		return
	}

	repoContext := ""
	if s.Contexts != nil && sess.Repository != "" {
		if txt, err := s.Contexts.Context(ctx, sess.Repository); err != nil {
			log.Warn().Str("session", string(sess.ID)).Err(err).Msg("context provider failed, continuing without repo context")
		} else {
			repoContext = txt
		}
	}

	sched := &Scheduler{Limit: s.Concurrency, UnitTimeout: s.UnitTimeout}
	tolerance := s.LineTolerance
	if tolerance <= 0 {
		tolerance = DefaultLineTolerance
	}

	// File completions arrive concurrently from worker goroutines; the
	// store writes for each completion are serialized so a poller never
	// observes the processed count going backwards.
	var (
		persistMu sync.Mutex
		stats     SummaryStats
		storeErr  error
	)
	schedCtx, cancelRest := context.WithCancel(ctx)
	defer cancelRest()

	onFileDone := func(res FileResult) {
		merged := MergeFindings(res.Path, res.Raw, tolerance)

		persistMu.Lock()
		defer persistMu.Unlock()
		if storeErr != nil {
			return
		}

		report := domain.FileReport{
			Path:            res.Path,
			Degraded:        len(res.Degraded) > 0,
			DegradedSources: res.Degraded,
			Findings:        len(merged),
		}
		progress := t.fileDone(report, len(merged))
		for _, m := range merged {
			switch m.Category {
			case domain.CategoryBug:
				stats.Bugs++
			case domain.CategorySecurity:
				stats.Security++
			default:
				stats.Quality++
			}
		}
		stats.Files++

		// In-flight files that finish after a cancellation still get their
		// results recorded, so persistence is detached from the session ctx.
		err := s.withStoreRetry(context.WithoutCancel(ctx), func(c context.Context) error {
			if len(merged) > 0 {
				if err := s.Repo.AppendFindings(c, sess.TenantID, sess.ID, merged); err != nil {
					return err
				}
			}
			return s.Repo.UpdateProgress(c, sess.TenantID, sess.ID, progress)
		})
		if err != nil {
			// Progress can no longer be durably recorded; stop dispatching.
			storeErr = err
			cancelRest()
		}
	}

	runErr := sched.Run(schedCtx, files, s.Analyzers, repoContext, onFileDone)

	persistMu.Lock()
	finalStoreErr := storeErr
	finalStats := stats
	persistMu.Unlock()

	switch {
	case finalStoreErr != nil:
		s.failSession(t, fmt.Sprintf("%v: %v", domain.ErrStoreUnavailable, finalStoreErr))
	case ctx.Err() == context.DeadlineExceeded:
		s.failSession(t, "session deadline exceeded; partial results available")
	case runErr != nil:
		s.failSession(t, "canceled by caller")
	default:
		s.completeSession(ctx, t, finalStats)
	}
}

// completeSession runs the closing steps: optional summary finding,
// terminal transition, report archive upload, publish. Archive and publish
// failures are logged only; the session stays completed.
func (s *Service) completeSession(ctx context.Context, t *tracker, stats SummaryStats) {
	sess := t.snapshot()

	if s.Summarizer != nil {
		if text, err := s.Summarizer.Summarize(ctx, &sess, stats); err != nil {
			log.Warn().Str("session", string(sess.ID)).Err(err).Msg("summary generation failed")
		} else if text != "" {
			summary := []domain.MergedFinding{{
				FilePath:    "SUMMARY",
				Category:    domain.CategoryQuality,
				Severity:    domain.SeverityLow,
				Title:       "Review summary",
				Description: text,
				Confidence:  100,
				Sources:     []string{"ai"},
			}}
			if err := s.Repo.AppendFindings(ctx, sess.TenantID, sess.ID, summary); err != nil {
				log.Warn().Str("session", string(sess.ID)).Err(err).Msg("storing summary failed")
			}
		}
	}

	now := s.Clock.Now()
	if !t.complete(now) {
		s.failSession(t, "not all files processed")
		return
	}

	reportURL := ""
	findings, err := s.Repo.GetFindings(ctx, sess.TenantID, sess.ID)
	if err != nil {
		log.Warn().Str("session", string(sess.ID)).Err(err).Msg("loading findings for publish failed")
	}

	if s.Archive != nil {
		snap := t.snapshot()
		payload, merr := json.Marshal(struct {
			Session  domain.Session         `json:"session"`
			Findings []domain.MergedFinding `json:"findings"`
		}{snap, findings})
		if merr == nil {
			if url, uerr := s.Archive.UploadReport(ctx, sess.TenantID, sess.ID, payload); uerr != nil {
				log.Warn().Str("session", string(sess.ID)).Err(uerr).Msg("report upload failed")
			} else {
				reportURL = url
			}
		}
	}

	if err := s.withStoreRetry(ctx, func(c context.Context) error {
		return s.Repo.CompleteSession(c, sess.TenantID, sess.ID, now, reportURL)
	}); err != nil {
		log.Error().Str("session", string(sess.ID)).Err(err).Msg("recording completion failed")
		return
	}

	if s.Publisher != nil {
		snap := t.snapshot()
		if err := s.Publisher.Publish(ctx, &snap, findings); err != nil {
			// Publisher failure never reverts a terminal session.
			log.Warn().Str("session", string(sess.ID)).Err(err).Msg("publish failed")
		}
	}

	log.Info().
		Str("session", string(sess.ID)).
		Int("files", sess.TotalFiles).
		Int("issues", t.snapshot().TotalIssues).
		Msg("review session completed")
}

func (s *Service) failSession(t *tracker, reason string) {
	now := s.Clock.Now()
	if !t.fail(reason, now) {
		return
	}
	sess := t.snapshot()
	// Best effort: the store may be the thing that is down.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Repo.FailSession(ctx, sess.TenantID, sess.ID, reason, now); err != nil {
		log.Error().Str("session", string(sess.ID)).Err(err).Msg("recording failure failed")
	}
	log.Warn().Str("session", string(sess.ID)).Str("reason", reason).Msg("review session failed")
}

// withStoreRetry retries transient store failures with linear backoff a
// bounded number of times before giving up.
func (s *Service) withStoreRetry(ctx context.Context, fn func(context.Context) error) error {
	retries := s.StoreRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := s.StoreBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		// Not-found and precondition errors are not transient.
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionPrecondition) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
