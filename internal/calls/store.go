package calls

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no call matches the given provider call id.
var ErrNotFound = errors.New("calls: call not found")

// Store is the persistence contract for Call records.
//
// Implementations must be safe for concurrent use: every inbound call and
// every provider callback runs on its own request goroutine, and updates are
// always keyed by provider call id.
type Store interface {
	Create(ctx context.Context, c Call) error
	FindByProviderID(ctx context.Context, providerCallID string) (Call, error)

	// Update applies a partial update. Nil fields are left untouched.
	// Fields covered by the write-once invariant are only written when the
	// stored value is still empty.
	Update(ctx context.Context, providerCallID string, upd Update) error
}

// Update is a partial Call mutation. Pointer fields distinguish "not provided"
// from zero values.
type Update struct {
	Status *CallStatus
	Type   *CallType

	// Write-once fields: applied only if currently unset.
	EndedAt         *time.Time
	DurationSeconds *int
	Cost            *float64
	RecordingURL    *string
	RecordingSID    *string
}
