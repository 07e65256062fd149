package auditlog

import (
	"context"
	"time"
)

// Outcome classifies how a registration attempt ended.
type Outcome string

const (
	OutcomeRegistered Outcome = "registered"
	OutcomeClash      Outcome = "clash"
	OutcomeRejected   Outcome = "rejected"
	OutcomeEmpty      Outcome = "empty"
	OutcomeError      Outcome = "error"
)

// Entry is one journaled registration attempt.
type Entry struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Kind         string    `json:"kind"`
	LabwareCount int       `json:"labware_count"`
	Outcome      Outcome   `json:"outcome"`
	Problems     []string  `json:"problems,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Recorder appends attempts to the journal. Journaling is best-effort;
// callers log and continue on failure.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// Store is a full journal backend.
type Store interface {
	Recorder
	Recent(ctx context.Context, limit int) ([]*Entry, error)
	Close() error
}
