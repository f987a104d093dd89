package database

import (
	"context"
	"time"
)

// Op classifies a repository call by the deadline it gets.
type Op int

const (
	// OpRead covers single lookups and queue peeks.
	OpRead Op = iota
	// OpWrite covers inserts and state transitions of a few rows.
	OpWrite
	// OpBulk covers bundling passes that touch many rows in one transaction.
	OpBulk
)

var opTimeouts = [...]time.Duration{
	OpRead:  5 * time.Second,
	OpWrite: 10 * time.Second,
	OpBulk:  30 * time.Second,
}

// Timeout returns the deadline budget of op. Unknown values get the read
// budget.
func (o Op) Timeout() time.Duration {
	if o < 0 || int(o) >= len(opTimeouts) {
		return opTimeouts[OpRead]
	}
	return opTimeouts[o]
}

// WithTimeout derives a context bounded by the budget of op. A parent with
// an earlier deadline keeps it.
func WithTimeout(parent context.Context, op Op) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, op.Timeout())
}
