package persist

import (
	"context"
	"time"

	"github.com/quayside/berthd/core/model"
)

// CommitRecord captures one committed schedule batch.
type CommitRecord struct {
	Version   uint64           `json:"version"`
	At        time.Time        `json:"at"`
	Trigger   string           `json:"trigger,omitempty"`
	Schedules []model.Schedule `json:"schedules"`
}

// ConflictRecord captures a conflict transition tied to a version.
type ConflictRecord struct {
	Version  uint64         `json:"version"`
	At       time.Time      `json:"at"`
	Conflict model.Conflict `json:"conflict"`
}

// CommitQuery filters the commit journal.
type CommitQuery struct {
	Start    time.Time
	End      time.Time
	VesselID string
	Limit    int
}

// RunQuery filters optimization run records.
type RunQuery struct {
	Start   time.Time
	End     time.Time
	Trigger string
	Limit   int
}

// Journal persists the engine's audit trail: committed schedule batches,
// optimization runs, and conflict transitions. Appends within one version
// are transactional.
type Journal interface {
	AppendCommit(ctx context.Context, rec CommitRecord) error
	AppendRun(ctx context.Context, run model.OptimizationRun) error
	AppendConflicts(ctx context.Context, version uint64, at time.Time, conflicts []model.Conflict) error

	Commits(ctx context.Context, q CommitQuery) ([]CommitRecord, error)
	Runs(ctx context.Context, q RunQuery) ([]model.OptimizationRun, error)
	Conflicts(ctx context.Context, scheduleID string) ([]ConflictRecord, error)

	Close() error
}

// NopJournal discards everything. Used when persistence is disabled.
type NopJournal struct{}

func (NopJournal) AppendCommit(context.Context, CommitRecord) error { return nil }
func (NopJournal) AppendRun(context.Context, model.OptimizationRun) error {
	return nil
}
func (NopJournal) AppendConflicts(context.Context, uint64, time.Time, []model.Conflict) error {
	return nil
}
func (NopJournal) Commits(context.Context, CommitQuery) ([]CommitRecord, error) { return nil, nil }
func (NopJournal) Runs(context.Context, RunQuery) ([]model.OptimizationRun, error) {
	return nil, nil
}
func (NopJournal) Conflicts(context.Context, string) ([]ConflictRecord, error) { return nil, nil }
func (NopJournal) Close() error                                                { return nil }
