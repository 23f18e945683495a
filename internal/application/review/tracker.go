package review

import (
	"sync"
	"time"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// tracker owns the mutable session state while the fan-out runs. It is the
// only piece of shared state touched by concurrent file-completion
// callbacks, so every update goes through its mutex. Transitions follow
// pending -> running -> completed | failed; the terminal states are final.
type tracker struct {
	mu sync.Mutex
	s  domain.Session
}

func newTracker(s domain.Session) *tracker {
	return &tracker{s: s}
}

// start moves pending -> running.
func (t *tracker) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.Status != domain.StatusPending {
		return false
	}
	t.s.Status = domain.StatusRunning
	return true
}

// fileDone records one completed file and returns the resulting progress
// snapshot. Processed count never decreases and never exceeds TotalFiles.
func (t *tracker) fileDone(report domain.FileReport, issues int) domain.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.ProcessedFiles < t.s.TotalFiles {
		t.s.ProcessedFiles++
	}
	t.s.TotalIssues += issues
	t.s.Files = append(t.s.Files, report)
	return domain.Progress{
		Status:         t.s.Status,
		ProcessedFiles: t.s.ProcessedFiles,
		TotalIssues:    t.s.TotalIssues,
		File:           &report,
	}
}

// complete moves running -> completed. Refused when not all files are
// processed or the session is already terminal.
func (t *tracker) complete(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.Status.Terminal() || t.s.ProcessedFiles != t.s.TotalFiles {
		return false
	}
	t.s.Status = domain.StatusCompleted
	t.s.CompletedAt = &now
	return true
}

// fail moves a non-terminal session to failed with a reason.
func (t *tracker) fail(reason string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.Status.Terminal() {
		return false
	}
	t.s.Status = domain.StatusFailed
	t.s.ErrorMessage = reason
	t.s.CompletedAt = &now
	return true
}

// snapshot returns a copy of the current session state.
func (t *tracker) snapshot() domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.s
	s.Files = append([]domain.FileReport(nil), t.s.Files...)
	return s
}
