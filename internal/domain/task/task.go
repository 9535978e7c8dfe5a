// Package task defines the Task domain entity for long-running operations.
package task

import "time"

// Kind identifies the type of work a task performs.
type Kind string

const (
	KindMigration        Kind = "migration"
	KindContextMigration Kind = "context_migration"
	KindBatchCleanup     Kind = "batch_cleanup"
	KindStatistics       Kind = "statistics"
)

// Status represents the current state of a task.
// Transitions are monotonic: pending -> running -> {completed, failed, cancelled}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal tasks are never resumed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task represents one long-running operation tracked by the task registry.
// Task history is volatile: it lives for the process lifetime only.
type Task struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"`
	Metadata    Metadata   `json:"metadata"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Metadata is a tagged union of operation parameters, keyed by the task Kind.
// Exactly one of the typed fields is set; Extra carries optional diagnostics only.
type Metadata struct {
	Migration  *MigrationMetadata  `json:"migration,omitempty"`
	Batch      *BatchMetadata      `json:"batch,omitempty"`
	Statistics *StatisticsMetadata `json:"statistics,omitempty"`
	Extra      map[string]string   `json:"extra,omitempty"`
}

// MigrationMetadata holds the parameters of a schema or context migration.
type MigrationMetadata struct {
	Subject        string `json:"subject,omitempty"`
	SourceRegistry string `json:"source_registry"`
	TargetRegistry string `json:"target_registry"`
	SourceContext  string `json:"source_context,omitempty"`
	TargetContext  string `json:"target_context,omitempty"`
	Versions       []int  `json:"versions,omitempty"` // empty means all
	PreserveIDs    bool   `json:"preserve_ids"`
	DryRun         bool   `json:"dry_run"`
}

// BatchMetadata holds the parameters of a batch cleanup.
type BatchMetadata struct {
	Registry    string   `json:"registry"`
	Context     string   `json:"context,omitempty"`
	Items       []string `json:"items"`
	DryRun      bool     `json:"dry_run"`
	Concurrency int      `json:"concurrency,omitempty"`
}

// StatisticsMetadata holds the parameters of a statistics run.
type StatisticsMetadata struct {
	Registry string `json:"registry"`
}
