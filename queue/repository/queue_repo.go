package repository

import (
	"context"
	"time"

	"github.com/propertydesk/groupqueue/queue/domain"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// ListFilter narrows List results. A zero Status matches every item.
type ListFilter struct {
	Status domain.Status
	Limit  int
}

// RescheduleParams carries the outcome of a fully delivered recurring cycle.
type RescheduleParams struct {
	NextPostAt     time.Time
	RemainingPosts *int
	PostedAt       time.Time
}

// IQueueRepository is the durable ledger of group post items and the single
// source of truth for state transitions. Both backends must satisfy the same
// contract; the conformance suite in this package runs against each.
//
// Unknown ids surface as domain.ErrItemNotFound rather than a panic so
// callers can render 404-style responses.
type IQueueRepository interface {
	Init(ctx context.Context) error

	// Enqueue creates a queued item from the draft. When the draft carries an
	// idempotency key that is already known, the existing record is returned
	// unchanged (first-write-wins, no new row).
	Enqueue(ctx context.Context, draft domain.ItemDraft) (domain.GroupPostItem, error)

	Get(ctx context.Context, id string) (domain.GroupPostItem, error)

	// List returns items ordered by creation time descending.
	List(ctx context.Context, filter ListFilter) ([]domain.GroupPostItem, error)

	// RecoverStaleProcessing hands items abandoned in processing back to the
	// queue and returns how many were reclaimed. This is the sole
	// crash-recovery path; there is no direct cancel of in-flight work.
	RecoverStaleProcessing(ctx context.Context, staleBefore time.Time) (int, error)

	// ReserveDue flips up to limit due queued items to processing, ordered by
	// priority descending, then due time, then creation time. No two
	// overlapping callers may ever receive the same item.
	ReserveDue(ctx context.Context, now time.Time, limit int) ([]domain.GroupPostItem, error)

	MarkSent(ctx context.Context, id string, postedAt time.Time) error

	RescheduleAfterSend(ctx context.Context, id string, params RescheduleParams) error

	// MarkFailed records a dispatch failure. A non-empty pendingTargets slice
	// replaces the stored set (only the destinations still owed a delivery);
	// nil or empty keeps the stored set unchanged.
	MarkFailed(ctx context.Context, id string, errorMessage string, pendingTargets []string) error

	// Requeue puts a failed (or reserved) item back in line. An empty pending
	// set is reset to the full target list so a manual requeue always resends
	// to everyone not yet confirmed.
	Requeue(ctx context.Context, id string, nextPostAt time.Time) error

	GetSummary(ctx context.Context) (domain.QueueSummary, error)
}

// ClampListLimit applies the List default and bounds.
func ClampListLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
