package review

import (
	"context"
	"time"
)

// Progress carries a single state-machine update to the store. File is
// set when the update was triggered by a file completing.
type Progress struct {
	Status         Status
	ProcessedFiles int
	TotalIssues    int
	File           *FileReport
}

// Repository port (interface untuk persistence). All methods must be safe
// to call concurrently for the same session id.
type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	UpdateProgress(ctx context.Context, tenant string, id SessionID, p Progress) error
	AppendFindings(ctx context.Context, tenant string, id SessionID, findings []MergedFinding) error
	CompleteSession(ctx context.Context, tenant string, id SessionID, completedAt time.Time, reportURL string) error
	FailSession(ctx context.Context, tenant string, id SessionID, reason string, failedAt time.Time) error
	GetSession(ctx context.Context, tenant string, id SessionID) (*Session, error)
	GetFindings(ctx context.Context, tenant string, id SessionID) ([]MergedFinding, error)
	Summary(ctx context.Context, tenant string, sinceDays int) (SeverityCounts, int, error)
}

// Publisher port: posts the merged result back to the originating surface
// once a session completes. Delivery failure never reverts the session.
type Publisher interface {
	Publish(ctx context.Context, s *Session, findings []MergedFinding) error
}

// ReportArchive port (penyimpanan report artefak)
type ReportArchive interface {
	UploadReport(ctx context.Context, tenant string, id SessionID, report []byte) (string, error)
}

// ContextProvider supplies repository-specific background text for the AI
// analyzer. The engine passes it through opaquely.
type ContextProvider interface {
	Context(ctx context.Context, repository string) (string, error)
}
