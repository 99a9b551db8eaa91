package domain

import "time"

// JobStatus is the lifecycle state of a measurement batch job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks the lifecycle of one measurement batch.
// Status moves queued -> running -> completed|failed and never backwards.
type Job struct {
	ID           string     `db:"id" json:"id"`
	SiteID       string     `db:"site_id" json:"site_id"`
	BatchID      string     `db:"batch_id" json:"batch_id"`
	Status       JobStatus  `db:"status" json:"status"`
	Progress     int        `db:"progress" json:"progress"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// SiteActivity is the UI-facing status of a site derived from its live jobs.
type SiteActivity string

const (
	SiteActivityIdle    SiteActivity = "idle"
	SiteActivityPending SiteActivity = "pending"
	SiteActivityTesting SiteActivity = "testing"
)

// JobSummary is the sanitized view of one live job: lifecycle state and
// timing only, no identifier and no error detail.
type JobSummary struct {
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// SiteStatus is one row of the polling read model. It deliberately carries
// no job IDs and no error detail; failures surface only as missing metrics.
type SiteStatus struct {
	SiteID     string       `json:"site_id"`
	SiteName   string       `json:"site_name"`
	SiteURL    string       `json:"site_url"`
	Status     SiteActivity `json:"status"`
	Progress   int          `json:"progress"`
	ActiveJobs []JobSummary `json:"active_jobs"`
	JobCount   int          `json:"job_count"`
}
