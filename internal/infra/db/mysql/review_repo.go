package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// ReviewRepository persists sessions, per-file reports and merged findings.
// All methods are safe for concurrent use on the same session id; the
// engine serializes progress writes, the database serializes the rest.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreateSession insert initial session row
func (r *ReviewRepository) CreateSession(ctx context.Context, s *domain.Session) error {
	const q = `
INSERT INTO review_sessions
(id, tenant_id, repository, pr_number, pr_title, commit_sha, status,
 total_files, processed_files, total_issues, started_at, error_message, report_url)
VALUES (?,?,?,?,?,?,?,?,?,?,?,'','');
`
	tenant := stringOrDash(s.TenantID)
	started := s.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ID, tenant, s.Repository, s.PRNumber, s.PRTitle, s.CommitSHA, s.Status,
		s.TotalFiles, s.ProcessedFiles, s.TotalIssues, started,
	)
	return err
}

// UpdateProgress applies one state-machine update. Processed count only
// ever moves forward (GREATEST guard keeps pollers monotonic even if a
// retry lands late).
func (r *ReviewRepository) UpdateProgress(ctx context.Context, tenant string, id domain.SessionID, p domain.Progress) error {
	const q = `
UPDATE review_sessions
SET status=?,
    processed_files=GREATEST(processed_files, ?),
    total_issues=GREATEST(total_issues, ?)
WHERE tenant_id=? AND id=? AND status NOT IN ('completed','failed');
`
	if _, err := r.db.ExecContext(ctx, q, p.Status, p.ProcessedFiles, p.TotalIssues, tenant, id); err != nil {
		return err
	}
	if p.File == nil {
		return nil
	}

	const fq = `
INSERT INTO review_file_reports (session_id, file_path, degraded, degraded_sources, findings)
VALUES (?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 degraded=VALUES(degraded), degraded_sources=VALUES(degraded_sources), findings=VALUES(findings);
`
	sources, err := json.Marshal(p.File.DegradedSources)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, fq, id, p.File.Path, p.File.Degraded, string(sources), p.File.Findings)
	return err
}

// AppendFindings stores one file's merged findings.
func (r *ReviewRepository) AppendFindings(ctx context.Context, tenant string, id domain.SessionID, findings []domain.MergedFinding) error {
	if len(findings) == 0 {
		return nil
	}
	const q = `
INSERT INTO review_findings
(session_id, tenant_id, file_path, line, category, severity, title, description, suggestion, confidence, sources)
VALUES ` // placeholders appended below

	var sb strings.Builder
	sb.WriteString(q)
	args := make([]any, 0, len(findings)*11)
	for i, f := range findings {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args, id, tenant, f.FilePath, f.Line, f.Category, f.Severity,
			f.Title, f.Description, f.Suggestion, f.Confidence, joinSources(f.Sources))
	}
	sb.WriteString(";")
	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

// CompleteSession marks the terminal success state.
func (r *ReviewRepository) CompleteSession(ctx context.Context, tenant string, id domain.SessionID, completedAt time.Time, reportURL string) error {
	const q = `
UPDATE review_sessions
SET status='completed', completed_at=?, report_url=?
WHERE tenant_id=? AND id=? AND status NOT IN ('completed','failed');
`
	_, err := r.db.ExecContext(ctx, q, completedAt, reportURL, tenant, id)
	return err
}

// FailSession marks the terminal failure state with a reason.
func (r *ReviewRepository) FailSession(ctx context.Context, tenant string, id domain.SessionID, reason string, failedAt time.Time) error {
	const q = `
UPDATE review_sessions
SET status='failed', error_message=?, completed_at=?
WHERE tenant_id=? AND id=? AND status NOT IN ('completed','failed');
`
	_, err := r.db.ExecContext(ctx, q, reason, failedAt, tenant, id)
	return err
}

// GetSession by ID + Tenant, including per-file reports.
func (r *ReviewRepository) GetSession(ctx context.Context, tenant string, id domain.SessionID) (*domain.Session, error) {
	const q = `
SELECT id, tenant_id, repository, pr_number, pr_title, commit_sha, status,
       total_files, processed_files, total_issues, started_at, completed_at, error_message, report_url
FROM review_sessions
WHERE tenant_id=? AND id=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, tenant, id)

	var s domain.Session
	var completed sql.NullTime
	if err := row.Scan(
		&s.ID, &s.TenantID, &s.Repository, &s.PRNumber, &s.PRTitle, &s.CommitSHA, &s.Status,
		&s.TotalFiles, &s.ProcessedFiles, &s.TotalIssues, &s.StartedAt, &completed, &s.ErrorMessage, &s.ReportURL,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}

	const fq = `
SELECT file_path, degraded, degraded_sources, findings
FROM review_file_reports WHERE session_id=? ORDER BY file_path;
`
	rows, err := r.db.QueryContext(ctx, fq, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var fr domain.FileReport
		var sources string
		if err := rows.Scan(&fr.Path, &fr.Degraded, &sources, &fr.Findings); err != nil {
			return nil, err
		}
		if sources != "" {
			_ = json.Unmarshal([]byte(sources), &fr.DegradedSources)
		}
		s.Files = append(s.Files, fr)
	}
	return &s, rows.Err()
}

// GetFindings returns a session's findings ordered by file, severity, line.
func (r *ReviewRepository) GetFindings(ctx context.Context, tenant string, id domain.SessionID) ([]domain.MergedFinding, error) {
	const q = `
SELECT file_path, line, category, severity, title, description, suggestion, confidence, sources
FROM review_findings
WHERE tenant_id=? AND session_id=?
ORDER BY file_path ASC,
         FIELD(severity,'critical','high','medium','low') ASC,
         line ASC;
`
	rows, err := r.db.QueryContext(ctx, q, tenant, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MergedFinding
	for rows.Next() {
		var f domain.MergedFinding
		var sources string
		if err := rows.Scan(&f.FilePath, &f.Line, &f.Category, &f.Severity,
			&f.Title, &f.Description, &f.Suggestion, &f.Confidence, &sources); err != nil {
			return nil, err
		}
		f.Sources = splitSources(sources)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Summary counts sessions and issues by severity since N days.
func (r *ReviewRepository) Summary(ctx context.Context, tenant string, sinceDays int) (domain.SeverityCounts, int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	const sq = `
SELECT COUNT(*) FROM review_sessions
WHERE tenant_id=? AND started_at >= DATE_SUB(NOW(), INTERVAL ? DAY);
`
	var sessions int
	if err := r.db.QueryRowContext(ctx, sq, tenant, sinceDays).Scan(&sessions); err != nil {
		return domain.SeverityCounts{}, 0, err
	}

	const fq = `
SELECT
  COALESCE(SUM(f.severity='critical'),0),
  COALESCE(SUM(f.severity='high'),0),
  COALESCE(SUM(f.severity='medium'),0),
  COALESCE(SUM(f.severity='low'),0)
FROM review_findings f
JOIN review_sessions s ON s.id = f.session_id
WHERE f.tenant_id=? AND s.started_at >= DATE_SUB(NOW(), INTERVAL ? DAY);
`
	var c domain.SeverityCounts
	if err := r.db.QueryRowContext(ctx, fq, tenant, sinceDays).Scan(&c.Critical, &c.High, &c.Medium, &c.Low); err != nil {
		return domain.SeverityCounts{}, 0, err
	}
	c.Total = c.Critical + c.High + c.Medium + c.Low
	return c, sessions, nil
}
