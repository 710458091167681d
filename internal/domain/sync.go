package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle of one sync run. There is no fully-failed
// terminal state: failures are scoped per source.
type RunState string

const (
	RunNotStarted      RunState = "not_started"
	RunRunning         RunState = "running"
	RunCompleted       RunState = "completed"
	RunPartiallyFailed RunState = "partially_failed"
)

func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunPartiallyFailed
}

type SourceStatus string

const (
	StatusSucceeded SourceStatus = "succeeded"
	StatusFailed    SourceStatus = "failed"
)

// SourceResult holds the outcome of one source within a run.
type SourceResult struct {
	Source     DataSource   `json:"source"`
	Status     SourceStatus `json:"status"`
	Count      int          `json:"count"`
	Fetched    int          `json:"fetched"`
	Inserted   int          `json:"inserted"`
	Updated    int          `json:"updated"`
	SoftErrors int          `json:"softErrors"`
	Published  int          `json:"published,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMs int64        `json:"durationMs"`
}

// SyncReport is the aggregate of all source results for a run.
type SyncReport struct {
	RunID        uuid.UUID      `json:"runId"`
	Total        int            `json:"total"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	ProgramCount int            `json:"programCount"`
	SoftErrors   int            `json:"softErrors"`
	State        RunState       `json:"state"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	Results      []SourceResult `json:"results"`
}

// SourceState is the persisted bookkeeping for a single source.
type SourceState struct {
	ID           int64        `db:"id"`
	DataSource   DataSource   `db:"data_source"`
	LastSyncedAt time.Time    `db:"last_synced_at"`
	LastStatus   SourceStatus `db:"last_status"`
	LastError    string       `db:"last_error"`
	TotalSynced  int64        `db:"total_synced"`
}
