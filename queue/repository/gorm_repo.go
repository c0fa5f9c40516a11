package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propertydesk/groupqueue/queue/domain"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type groupPostModel struct {
	ID             string         `gorm:"primaryKey;column:id"`
	Kind           string         `gorm:"column:kind;not null"`
	Priority       string         `gorm:"column:priority;not null;default:'normal'"`
	Content        string         `gorm:"column:content;not null"`
	Targets        string         `gorm:"column:targets;type:text;not null"`         // JSON
	PendingTargets string         `gorm:"column:pending_targets;type:text;not null"` // JSON
	Status         string         `gorm:"column:status;not null;index:idx_status_next_post_at,priority:1"`
	ScheduleMode   string         `gorm:"column:schedule_mode;not null;default:'once'"`
	NextPostAt     time.Time      `gorm:"column:next_post_at;not null;index:idx_status_next_post_at,priority:2"`
	RemainingPosts *int           `gorm:"column:remaining_posts"`
	Source         string         `gorm:"column:source;not null;default:'api'"`
	SourceRef      sql.NullString `gorm:"column:source_ref"`
	IdempotencyKey *string        `gorm:"column:idempotency_key;uniqueIndex"`
	BrokerName     sql.NullString `gorm:"column:broker_name"`
	BrokerContact  sql.NullString `gorm:"column:broker_contact"`
	Tags           sql.NullString `gorm:"column:tags"` // JSON
	Attempts       int            `gorm:"column:attempts;not null;default:0"`
	LastError      sql.NullString `gorm:"column:last_error"`
	LastPostedAt   *time.Time     `gorm:"column:last_posted_at"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null;index"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null"`
}

func (groupPostModel) TableName() string { return "group_post_queue" }

func marshalList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func unmarshalList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

func toGroupPostModel(item domain.GroupPostItem) groupPostModel {
	m := groupPostModel{
		ID:             item.ID,
		Kind:           string(item.Kind),
		Priority:       string(item.Priority),
		Content:        item.Content,
		Targets:        marshalList(item.Targets),
		PendingTargets: marshalList(item.PendingTargets),
		Status:         string(item.Status),
		ScheduleMode:   string(item.ScheduleMode),
		NextPostAt:     item.NextPostAt,
		RemainingPosts: item.RemainingPosts,
		Source:         string(item.Source),
		Attempts:       item.Attempts,
		LastPostedAt:   item.LastPostedAt,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
	if item.SourceRef != "" {
		m.SourceRef = sql.NullString{String: item.SourceRef, Valid: true}
	}
	if item.IdempotencyKey != "" {
		key := item.IdempotencyKey
		m.IdempotencyKey = &key
	}
	if item.BrokerName != "" {
		m.BrokerName = sql.NullString{String: item.BrokerName, Valid: true}
	}
	if item.BrokerContact != "" {
		m.BrokerContact = sql.NullString{String: item.BrokerContact, Valid: true}
	}
	if len(item.Tags) > 0 {
		m.Tags = sql.NullString{String: marshalList(item.Tags), Valid: true}
	}
	if item.LastError != "" {
		m.LastError = sql.NullString{String: item.LastError, Valid: true}
	}
	return m
}

func fromGroupPostModel(m groupPostModel) domain.GroupPostItem {
	item := domain.GroupPostItem{
		ID:             m.ID,
		Kind:           domain.Kind(m.Kind),
		Priority:       domain.Priority(m.Priority),
		Content:        m.Content,
		Targets:        unmarshalList(m.Targets),
		PendingTargets: unmarshalList(m.PendingTargets),
		Status:         domain.Status(m.Status),
		ScheduleMode:   domain.ScheduleMode(m.ScheduleMode),
		NextPostAt:     m.NextPostAt,
		RemainingPosts: m.RemainingPosts,
		Source:         domain.Source(m.Source),
		SourceRef:      m.SourceRef.String,
		BrokerName:     m.BrokerName.String,
		BrokerContact:  m.BrokerContact.String,
		Attempts:       m.Attempts,
		LastError:      m.LastError.String,
		LastPostedAt:   m.LastPostedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.IdempotencyKey != nil {
		item.IdempotencyKey = *m.IdempotencyKey
	}
	if m.Tags.Valid {
		item.Tags = unmarshalList(m.Tags.String)
	}
	return item
}

// --- Repository Implementation ---

// QueueGormRepository implements IQueueRepository over SQLite or Postgres.
// Reservation uses a per-row guarded UPDATE (compare-and-swap on status), so
// the no-double-reservation guarantee holds on any engine without relying on
// dialect-specific row locks.
type QueueGormRepository struct {
	db *gorm.DB
}

func NewQueueGormRepository(db *gorm.DB) *QueueGormRepository {
	return &QueueGormRepository{db: db}
}

func (r *QueueGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&groupPostModel{})
}

func (r *QueueGormRepository) Enqueue(ctx context.Context, draft domain.ItemDraft) (domain.GroupPostItem, error) {
	if draft.IdempotencyKey != "" {
		existing, err := r.getByIdempotencyKey(ctx, draft.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrItemNotFound) {
			return domain.GroupPostItem{}, err
		}
	}

	now := time.Now().UTC()
	item := domain.GroupPostItem{
		ID:             uuid.NewString(),
		Kind:           draft.Kind,
		Priority:       draft.Priority,
		Content:        draft.Content,
		Targets:        draft.Targets,
		PendingTargets: draft.Targets,
		Status:         domain.StatusQueued,
		ScheduleMode:   draft.ScheduleMode,
		NextPostAt:     draft.NextPostAt,
		RemainingPosts: draft.RemainingPosts,
		Source:         draft.Source,
		SourceRef:      draft.SourceRef,
		IdempotencyKey: draft.IdempotencyKey,
		BrokerName:     draft.BrokerName,
		BrokerContact:  draft.BrokerContact,
		Tags:           draft.Tags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	model := toGroupPostModel(item)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		// Unique-index backstop: a concurrent submit with the same key won
		// the insert race. First write wins, return its row.
		if draft.IdempotencyKey != "" {
			if existing, lookupErr := r.getByIdempotencyKey(ctx, draft.IdempotencyKey); lookupErr == nil {
				return existing, nil
			}
		}
		return domain.GroupPostItem{}, err
	}
	return item.Clone(), nil
}

func (r *QueueGormRepository) getByIdempotencyKey(ctx context.Context, key string) (domain.GroupPostItem, error) {
	var m groupPostModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.GroupPostItem{}, domain.ErrItemNotFound
		}
		return domain.GroupPostItem{}, err
	}
	return fromGroupPostModel(m), nil
}

func (r *QueueGormRepository) Get(ctx context.Context, id string) (domain.GroupPostItem, error) {
	var m groupPostModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.GroupPostItem{}, domain.ErrItemNotFound
		}
		return domain.GroupPostItem{}, err
	}
	return fromGroupPostModel(m), nil
}

func (r *QueueGormRepository) List(ctx context.Context, filter ListFilter) ([]domain.GroupPostItem, error) {
	query := r.db.WithContext(ctx).Model(&groupPostModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}

	var models []groupPostModel
	err := query.Order("created_at DESC").Limit(ClampListLimit(filter.Limit)).Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.GroupPostItem, len(models))
	for i, m := range models {
		out[i] = fromGroupPostModel(m)
	}
	return out, nil
}

func (r *QueueGormRepository) RecoverStaleProcessing(ctx context.Context, staleBefore time.Time) (int, error) {
	res := r.db.WithContext(ctx).Model(&groupPostModel{}).
		Where("status = ? AND updated_at <= ?", string(domain.StatusProcessing), staleBefore).
		Updates(map[string]any{
			"status":     string(domain.StatusQueued),
			"last_error": domain.StaleLeaseError,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// reserveOrder ranks due candidates: priority desc, due time asc, creation asc.
const reserveOrder = "CASE priority WHEN 'high' THEN 0 ELSE 1 END ASC, next_post_at ASC, created_at ASC"

func (r *QueueGormRepository) ReserveDue(ctx context.Context, now time.Time, limit int) ([]domain.GroupPostItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	var candidates []groupPostModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_post_at <= ?", string(domain.StatusQueued), now).
		Order(reserveOrder).
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	stamp := time.Now().UTC()
	reserved := make([]domain.GroupPostItem, 0, len(candidates))
	for _, m := range candidates {
		// Guarded flip: only the caller whose UPDATE lands while the row is
		// still queued owns the item. Losers see zero rows affected.
		res := r.db.WithContext(ctx).Model(&groupPostModel{}).
			Where("id = ? AND status = ?", m.ID, string(domain.StatusQueued)).
			Updates(map[string]any{
				"status":     string(domain.StatusProcessing),
				"updated_at": stamp,
			})
		if res.Error != nil {
			return reserved, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		m.Status = string(domain.StatusProcessing)
		m.UpdatedAt = stamp
		reserved = append(reserved, fromGroupPostModel(m))
	}
	return reserved, nil
}

func (r *QueueGormRepository) MarkSent(ctx context.Context, id string, postedAt time.Time) error {
	return r.mutate(ctx, id, func(item *domain.GroupPostItem) {
		item.Status = domain.StatusSent
		item.PendingTargets = []string{}
		item.Attempts++
		item.LastError = ""
		posted := postedAt
		item.LastPostedAt = &posted
	})
}

func (r *QueueGormRepository) RescheduleAfterSend(ctx context.Context, id string, params RescheduleParams) error {
	return r.mutate(ctx, id, func(item *domain.GroupPostItem) {
		item.Status = domain.StatusQueued
		item.PendingTargets = append([]string(nil), item.Targets...)
		item.Attempts++
		item.NextPostAt = params.NextPostAt
		item.RemainingPosts = params.RemainingPosts
		item.LastError = ""
		posted := params.PostedAt
		item.LastPostedAt = &posted
	})
}

func (r *QueueGormRepository) MarkFailed(ctx context.Context, id string, errorMessage string, pendingTargets []string) error {
	return r.mutate(ctx, id, func(item *domain.GroupPostItem) {
		item.Status = domain.StatusFailed
		item.Attempts++
		item.LastError = domain.TruncateError(errorMessage)
		if len(pendingTargets) > 0 {
			item.PendingTargets = append([]string(nil), pendingTargets...)
		}
	})
}

func (r *QueueGormRepository) Requeue(ctx context.Context, id string, nextPostAt time.Time) error {
	return r.mutate(ctx, id, func(item *domain.GroupPostItem) {
		item.Status = domain.StatusQueued
		item.NextPostAt = nextPostAt
		item.LastError = ""
		if len(item.PendingTargets) == 0 {
			item.PendingTargets = append([]string(nil), item.Targets...)
		}
	})
}

// mutate loads one item, applies the transition and writes the whole row
// back with a bumped updated_at. Transitions are single-item by contract, so
// a read-modify-write without cross-item transactions is sufficient.
func (r *QueueGormRepository) mutate(ctx context.Context, id string, apply func(*domain.GroupPostItem)) error {
	var m groupPostModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrItemNotFound
		}
		return err
	}

	item := fromGroupPostModel(m)
	apply(&item)
	item.UpdatedAt = time.Now().UTC()

	updated := toGroupPostModel(item)
	return r.db.WithContext(ctx).Save(&updated).Error
}

func (r *QueueGormRepository) GetSummary(ctx context.Context) (domain.QueueSummary, error) {
	summary := domain.QueueSummary{
		ByStatus: map[domain.Status]int{
			domain.StatusQueued:     0,
			domain.StatusProcessing: 0,
			domain.StatusSent:       0,
			domain.StatusFailed:     0,
		},
	}

	type statusCount struct {
		Status string
		Count  int
	}
	var counts []statusCount
	err := r.db.WithContext(ctx).Model(&groupPostModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return domain.QueueSummary{}, err
	}
	for _, c := range counts {
		summary.ByStatus[domain.Status(c.Status)] = c.Count
		summary.Total += c.Count
	}

	var next groupPostModel
	err = r.db.WithContext(ctx).
		Where("status = ?", string(domain.StatusQueued)).
		Order("next_post_at ASC").
		First(&next).Error
	if err == nil {
		t := next.NextPostAt
		summary.NextDue = &t
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.QueueSummary{}, err
	}

	return summary, nil
}
