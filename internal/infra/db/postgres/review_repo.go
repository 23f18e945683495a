package postgres

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

// ReviewRepository is the Postgres variant of the session store.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) CreateSession(ctx context.Context, s *domain.Session) error {
	const q = `
INSERT INTO review_sessions
(id, tenant_id, repository, pr_number, pr_title, commit_sha, status,
 total_files, processed_files, total_issues, started_at, error_message, report_url)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'','');
`
	started := s.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.TenantID, s.Repository, s.PRNumber, s.PRTitle, s.CommitSHA, s.Status,
		s.TotalFiles, s.ProcessedFiles, s.TotalIssues, started,
	)
	return err
}

func (r *ReviewRepository) UpdateProgress(ctx context.Context, tenant string, id domain.SessionID, p domain.Progress) error {
	const q = `
UPDATE review_sessions
SET status=$1,
    processed_files=GREATEST(processed_files, $2),
    total_issues=GREATEST(total_issues, $3)
WHERE tenant_id=$4 AND id=$5 AND status NOT IN ('completed','failed');
`
	if _, err := r.db.ExecContext(ctx, q, p.Status, p.ProcessedFiles, p.TotalIssues, tenant, id); err != nil {
		return err
	}
	if p.File == nil {
		return nil
	}

	const fq = `
INSERT INTO review_file_reports (session_id, file_path, degraded, degraded_sources, findings)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (session_id, file_path) DO UPDATE
SET degraded=EXCLUDED.degraded, degraded_sources=EXCLUDED.degraded_sources, findings=EXCLUDED.findings;
`
	sources, err := json.Marshal(p.File.DegradedSources)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, fq, id, p.File.Path, p.File.Degraded, string(sources), p.File.Findings)
	return err
}

func (r *ReviewRepository) AppendFindings(ctx context.Context, tenant string, id domain.SessionID, findings []domain.MergedFinding) error {
	if len(findings) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`
INSERT INTO review_findings
(session_id, tenant_id, file_path, line, category, severity, title, description, suggestion, confidence, sources)
VALUES `)
	args := make([]any, 0, len(findings)*11)
	for i, f := range findings {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 11
		sb.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11))
		args = append(args, id, tenant, f.FilePath, f.Line, f.Category, f.Severity,
			f.Title, f.Description, f.Suggestion, f.Confidence, strings.Join(f.Sources, ","))
	}
	sb.WriteString(";")
	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *ReviewRepository) CompleteSession(ctx context.Context, tenant string, id domain.SessionID, completedAt time.Time, reportURL string) error {
	const q = `
UPDATE review_sessions
SET status='completed', completed_at=$1, report_url=$2
WHERE tenant_id=$3 AND id=$4 AND status NOT IN ('completed','failed');
`
	_, err := r.db.ExecContext(ctx, q, completedAt, reportURL, tenant, id)
	return err
}

func (r *ReviewRepository) FailSession(ctx context.Context, tenant string, id domain.SessionID, reason string, failedAt time.Time) error {
	const q = `
UPDATE review_sessions
SET status='failed', error_message=$1, completed_at=$2
WHERE tenant_id=$3 AND id=$4 AND status NOT IN ('completed','failed');
`
	_, err := r.db.ExecContext(ctx, q, reason, failedAt, tenant, id)
	return err
}

func (r *ReviewRepository) GetSession(ctx context.Context, tenant string, id domain.SessionID) (*domain.Session, error) {
	const q = `
SELECT id, tenant_id, repository, pr_number, pr_title, commit_sha, status,
       total_files, processed_files, total_issues, started_at, completed_at, error_message, report_url
FROM review_sessions
WHERE tenant_id=$1 AND id=$2 LIMIT 1;
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
FROM review_file_reports WHERE session_id=$1 ORDER BY file_path;
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

func (r *ReviewRepository) GetFindings(ctx context.Context, tenant string, id domain.SessionID) ([]domain.MergedFinding, error) {
	const q = `
SELECT file_path, line, category, severity, title, description, suggestion, confidence, sources
FROM review_findings
WHERE tenant_id=$1 AND session_id=$2
ORDER BY file_path ASC,
         CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END ASC,
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
		if sources != "" {
			f.Sources = strings.Split(sources, ",")
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *ReviewRepository) Summary(ctx context.Context, tenant string, sinceDays int) (domain.SeverityCounts, int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	const sq = `
SELECT COUNT(*) FROM review_sessions
WHERE tenant_id=$1 AND started_at >= NOW() - ($2 || ' days')::interval;
`
	var sessions int
	if err := r.db.QueryRowContext(ctx, sq, tenant, sinceDays).Scan(&sessions); err != nil {
		return domain.SeverityCounts{}, 0, err
	}

	const fq = `
SELECT
  COALESCE(SUM(CASE WHEN f.severity='critical' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN f.severity='high' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN f.severity='medium' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN f.severity='low' THEN 1 ELSE 0 END),0)
FROM review_findings f
JOIN review_sessions s ON s.id = f.session_id
WHERE f.tenant_id=$1 AND s.started_at >= NOW() - ($2 || ' days')::interval;
`
	var c domain.SeverityCounts
	if err := r.db.QueryRowContext(ctx, fq, tenant, sinceDays).Scan(&c.Critical, &c.High, &c.Medium, &c.Low); err != nil {
		return domain.SeverityCounts{}, 0, err
	}
	c.Total = c.Critical + c.High + c.Medium + c.Low
	return c, sessions, nil
}
