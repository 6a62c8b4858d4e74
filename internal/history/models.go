package history

import "time"

// Record represents a single deployment attempt in the database
type Record struct {
	ID              int64
	App             string
	Version         string
	Repository      string
	RunID           string
	Status          string // success, failed, rejected
	Stage           string // furthest stage reached
	BackupName      *string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds *float64
	ErrorMessage    *string
}

// Deployment statuses recorded per attempt.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

// AppStatus represents the latest deployment state of an application
type AppStatus struct {
	App              string   `json:"app"`
	LatestDeployment *Record  `json:"latest_deployment,omitempty"`
	RecentHistory    []Record `json:"recent_history"`
}
