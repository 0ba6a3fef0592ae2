package journal

import (
	"context"
	"time"
)

// Recorder appends cycle outcomes to the journal. It is write-only: nothing
// in the monitor reads entries back.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Repository defines the interface for journal storage
type Repository interface {
	Record(entry *Entry) error
	Close() error
}

// Entry describes the outcome of one monitor cycle.
type Entry struct {
	Timestamp        time.Time
	CycleID          string
	Outcome          string
	ShutdownRequired bool
	Strategy         string
	Error            string
}
