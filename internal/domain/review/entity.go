package review

import (
	"time"
)

// ID tipe untuk Session
type SessionID string

// Status enum
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add increments the bucket for sev.
func (c *SeverityCounts) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	}
	c.Total++
}

// FileReport records the per-file outcome of a session. Degraded means at
// least one analyzer assigned to the file failed or timed out, so an empty
// finding list is distinguishable from "no analyzer could run".
type FileReport struct {
	Path            string   `json:"path"`
	Degraded        bool     `json:"degraded"`
	DegradedSources []string `json:"degraded_sources,omitempty"`
	Findings        int      `json:"findings"`
}

// Aggregate Root: Session
type Session struct {
	ID             SessionID    `json:"id"`
	TenantID       string       `json:"tenant_id"`
	Repository     string       `json:"repository,omitempty"` // owner/name
	PRNumber       int          `json:"pr_number,omitempty"`
	PRTitle        string       `json:"pr_title,omitempty"`
	CommitSHA      string       `json:"commit_sha,omitempty"`
	Status         Status       `json:"status"`
	TotalFiles     int          `json:"total_files"`
	ProcessedFiles int          `json:"processed_files"`
	TotalIssues    int          `json:"total_issues"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	ReportURL      string       `json:"report_url,omitempty"`
	Files          []FileReport `json:"files,omitempty"`
}
