package model

import (
	"sort"
	"time"
)

// ConflictKind classifies a detected schedule violation.
type ConflictKind int

const (
	BerthOverlap ConflictKind = iota
	ResourceUnavailable
	TidalConstraint
	PriorityViolation
)

// String returns a human-readable representation of the conflict kind.
func (k ConflictKind) String() string {
	switch k {
	case BerthOverlap:
		return "berth_overlap"
	case ResourceUnavailable:
		return "resource_unavailable"
	case TidalConstraint:
		return "tidal_constraint"
	case PriorityViolation:
		return "priority_violation"
	default:
		return "unknown"
	}
}

// ConflictSeverity ranks conflicts. Lower is more severe.
type ConflictSeverity int

const (
	SeverityCritical ConflictSeverity = 1
	SeverityHigh     ConflictSeverity = 2
	SeverityMedium   ConflictSeverity = 3
	SeverityLow      ConflictSeverity = 4
)

// ConflictStatus is the lifecycle state of a conflict record.
type ConflictStatus int

const (
	ConflictDetected ConflictStatus = iota
	ConflictResolved
	ConflictIgnored
)

// String returns a human-readable representation of the conflict status.
func (s ConflictStatus) String() string {
	switch s {
	case ConflictDetected:
		return "detected"
	case ConflictResolved:
		return "resolved"
	case ConflictIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Conflict is one detected invariant violation linking one or two schedules.
// Created by the detector, closed by reoptimization or operator action.
type Conflict struct {
	ID       string           `json:"id"`
	Kind     ConflictKind     `json:"kind"`
	Severity ConflictSeverity `json:"severity"`
	Status   ConflictStatus   `json:"status"`

	ScheduleID      string `json:"schedule_id"`
	OtherScheduleID string `json:"other_schedule_id,omitempty"`

	Detail         string    `json:"detail"`
	AutoResolvable bool      `json:"auto_resolvable"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Key identifies the conflict by content rather than surrogate ID. Repeated
// detector runs over unchanged state produce identical keys.
func (c Conflict) Key() string {
	return c.Kind.String() + "|" + c.ScheduleID + "|" + c.OtherScheduleID
}

// SortConflicts orders conflicts by severity, most severe first, then by
// content key for determinism.
func SortConflicts(cs []Conflict) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Severity != cs[j].Severity {
			return cs[i].Severity < cs[j].Severity
		}
		return cs[i].Key() < cs[j].Key()
	})
}
