package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/propertydesk/groupqueue/queue/domain"
)

// MemoryQueueRepository implements IQueueRepository with a map in memory.
// It is the default backend for single-process deployments and tests; data
// is lost on restart. A single mutex makes reserve a plain scan-and-flip,
// which is enough since there is only one mutator per process.
type MemoryQueueRepository struct {
	mu    sync.Mutex
	items map[string]*memoryItem
	seq   int64
}

type memoryItem struct {
	item domain.GroupPostItem
	seq  int64 // creation tiebreak when timestamps collide
}

func NewMemoryQueueRepository() *MemoryQueueRepository {
	return &MemoryQueueRepository{
		items: make(map[string]*memoryItem),
	}
}

func (ms *MemoryQueueRepository) Init(ctx context.Context) error {
	return nil
}

func (ms *MemoryQueueRepository) Enqueue(ctx context.Context, draft domain.ItemDraft) (domain.GroupPostItem, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if draft.IdempotencyKey != "" {
		for _, e := range ms.items {
			if e.item.IdempotencyKey == draft.IdempotencyKey {
				return e.item.Clone(), nil
			}
		}
	}

	now := time.Now().UTC()
	item := domain.GroupPostItem{
		ID:             uuid.NewString(),
		Kind:           draft.Kind,
		Priority:       draft.Priority,
		Content:        draft.Content,
		Targets:        append([]string(nil), draft.Targets...),
		PendingTargets: append([]string(nil), draft.Targets...),
		Status:         domain.StatusQueued,
		ScheduleMode:   draft.ScheduleMode,
		NextPostAt:     draft.NextPostAt,
		RemainingPosts: draft.RemainingPosts,
		Source:         draft.Source,
		SourceRef:      draft.SourceRef,
		IdempotencyKey: draft.IdempotencyKey,
		BrokerName:     draft.BrokerName,
		BrokerContact:  draft.BrokerContact,
		Tags:           append([]string(nil), draft.Tags...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ms.seq++
	ms.items[item.ID] = &memoryItem{item: item.Clone(), seq: ms.seq}
	return item, nil
}

func (ms *MemoryQueueRepository) Get(ctx context.Context, id string) (domain.GroupPostItem, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.items[id]
	if !ok {
		return domain.GroupPostItem{}, domain.ErrItemNotFound
	}
	return e.item.Clone(), nil
}

func (ms *MemoryQueueRepository) List(ctx context.Context, filter ListFilter) ([]domain.GroupPostItem, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entries := make([]*memoryItem, 0, len(ms.items))
	for _, e := range ms.items {
		if filter.Status != "" && e.item.Status != filter.Status {
			continue
		}
		entries = append(entries, e)
	}

	// Newest first; seq breaks ties between same-instant creations.
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].item.CreatedAt.Equal(entries[j].item.CreatedAt) {
			return entries[i].item.CreatedAt.After(entries[j].item.CreatedAt)
		}
		return entries[i].seq > entries[j].seq
	})

	limit := ClampListLimit(filter.Limit)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]domain.GroupPostItem, len(entries))
	for i, e := range entries {
		out[i] = e.item.Clone()
	}
	return out, nil
}

func (ms *MemoryQueueRepository) RecoverStaleProcessing(ctx context.Context, staleBefore time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	recovered := 0
	now := time.Now().UTC()
	for _, e := range ms.items {
		if e.item.Status != domain.StatusProcessing {
			continue
		}
		if e.item.UpdatedAt.After(staleBefore) {
			continue
		}
		e.item.Status = domain.StatusQueued
		e.item.LastError = domain.StaleLeaseError
		e.item.UpdatedAt = now
		recovered++
	}
	return recovered, nil
}

func (ms *MemoryQueueRepository) ReserveDue(ctx context.Context, now time.Time, limit int) ([]domain.GroupPostItem, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	due := make([]*memoryItem, 0)
	for _, e := range ms.items {
		if e.item.Status == domain.StatusQueued && !e.item.NextPostAt.After(now) {
			due = append(due, e)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].item, due[j].item
		if a.Priority != b.Priority {
			return a.Priority == domain.PriorityHigh
		}
		if !a.NextPostAt.Equal(b.NextPostAt) {
			return a.NextPostAt.Before(b.NextPostAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return due[i].seq < due[j].seq
	})

	if len(due) > limit {
		due = due[:limit]
	}

	stamp := time.Now().UTC()
	out := make([]domain.GroupPostItem, len(due))
	for i, e := range due {
		e.item.Status = domain.StatusProcessing
		e.item.UpdatedAt = stamp
		out[i] = e.item.Clone()
	}
	return out, nil
}

func (ms *MemoryQueueRepository) MarkSent(ctx context.Context, id string, postedAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	e.item.Status = domain.StatusSent
	e.item.PendingTargets = []string{}
	e.item.Attempts++
	e.item.LastError = ""
	posted := postedAt
	e.item.LastPostedAt = &posted
	e.item.UpdatedAt = time.Now().UTC()
	return nil
}

func (ms *MemoryQueueRepository) RescheduleAfterSend(ctx context.Context, id string, params RescheduleParams) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	e.item.Status = domain.StatusQueued
	e.item.PendingTargets = append([]string(nil), e.item.Targets...)
	e.item.Attempts++
	e.item.NextPostAt = params.NextPostAt
	e.item.RemainingPosts = params.RemainingPosts
	e.item.LastError = ""
	posted := params.PostedAt
	e.item.LastPostedAt = &posted
	e.item.UpdatedAt = time.Now().UTC()
	return nil
}

func (ms *MemoryQueueRepository) MarkFailed(ctx context.Context, id string, errorMessage string, pendingTargets []string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	e.item.Status = domain.StatusFailed
	e.item.Attempts++
	e.item.LastError = domain.TruncateError(errorMessage)
	if len(pendingTargets) > 0 {
		e.item.PendingTargets = append([]string(nil), pendingTargets...)
	}
	e.item.UpdatedAt = time.Now().UTC()
	return nil
}

func (ms *MemoryQueueRepository) Requeue(ctx context.Context, id string, nextPostAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	e.item.Status = domain.StatusQueued
	e.item.NextPostAt = nextPostAt
	e.item.LastError = ""
	if len(e.item.PendingTargets) == 0 {
		e.item.PendingTargets = append([]string(nil), e.item.Targets...)
	}
	e.item.UpdatedAt = time.Now().UTC()
	return nil
}

func (ms *MemoryQueueRepository) GetSummary(ctx context.Context) (domain.QueueSummary, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	summary := domain.QueueSummary{
		ByStatus: map[domain.Status]int{
			domain.StatusQueued:     0,
			domain.StatusProcessing: 0,
			domain.StatusSent:       0,
			domain.StatusFailed:     0,
		},
	}
	for _, e := range ms.items {
		summary.Total++
		summary.ByStatus[e.item.Status]++
		if e.item.Status == domain.StatusQueued {
			if summary.NextDue == nil || e.item.NextPostAt.Before(*summary.NextDue) {
				t := e.item.NextPostAt
				summary.NextDue = &t
			}
		}
	}
	return summary, nil
}
