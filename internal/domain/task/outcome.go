package task

// VersionStatus is the per-version result of a migration.
type VersionStatus string

const (
	VersionMigrated VersionStatus = "migrated"
	VersionSkipped  VersionStatus = "skipped"
	VersionFailed   VersionStatus = "failed"
)

// VersionOutcome records what happened to one source version during migration.
// IDPreserved is true only when a real write observed the target honoring the
// source schema id; fallback registrations and dry runs report false.
type VersionOutcome struct {
	Version     int           `json:"version"`
	SourceID    int           `json:"source_id"`
	IDPreserved bool          `json:"id_preserved"`
	Status      VersionStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
}

// MigrationOutcome is the itemized result of migrating one subject.
// A partially failed migration still carries every per-version entry:
// partial progress is success-shaped data, not merely an error.
type MigrationOutcome struct {
	Subject   string           `json:"subject"`
	DryRun    bool             `json:"dry_run"`
	Requested int              `json:"requested"`
	Migrated  int              `json:"migrated"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Versions  []VersionOutcome `json:"versions"`
}

// ContextMigrationOutcome aggregates per-subject migrations of one context.
type ContextMigrationOutcome struct {
	SourceContext string             `json:"source_context"`
	TargetContext string             `json:"target_context"`
	DryRun        bool               `json:"dry_run"`
	Subjects      int                `json:"subjects"`
	Migrated      int                `json:"migrated"`
	Skipped       int                `json:"skipped"`
	Failed        int                `json:"failed"`
	Outcomes      []MigrationOutcome `json:"outcomes"`
}

// BatchItemOutcome is the per-item result category of a batch operation.
type BatchItemOutcome string

const (
	ItemDeleted BatchItemOutcome = "deleted"
	ItemFailed  BatchItemOutcome = "failed"
	ItemSkipped BatchItemOutcome = "skipped"
)

// BatchItemResult attributes one batch item's outcome, with the failure
// reason when the item failed.
type BatchItemResult struct {
	Item    string           `json:"item"`
	Outcome BatchItemOutcome `json:"outcome"`
	Error   string           `json:"error,omitempty"`
}

// BatchOutcome is the aggregated report of one batch run. FailedItems lets a
// caller retry exactly the failed subset.
type BatchOutcome struct {
	Requested      int               `json:"requested"`
	Succeeded      int               `json:"succeeded"`
	Failed         int               `json:"failed"`
	DryRun         bool              `json:"dry_run"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Throughput     float64           `json:"throughput_per_second"`
	Items          []BatchItemResult `json:"items"`
	FailedItems    []string          `json:"failed_items,omitempty"`
}
