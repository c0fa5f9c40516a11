package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a queued group post.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

type Kind string

const (
	KindListing     Kind = "listing"
	KindRequirement Kind = "requirement"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type ScheduleMode string

const (
	ScheduleOnce   ScheduleMode = "once"
	ScheduleDaily  ScheduleMode = "daily"
	ScheduleWeekly ScheduleMode = "weekly"
)

type Source string

const (
	SourceAPI      Source = "api"
	SourceChat     Source = "chat"
	SourceWhatsapp Source = "whatsapp"
)

const (
	// MaxLastErrorLen caps the stored error text per item.
	MaxLastErrorLen = 500

	// StaleLeaseError marks items reclaimed from a crashed or hung worker.
	StaleLeaseError = "recovered from stale lease"

	// DefaultDispatchError is stored when a dispatch fails without a message.
	DefaultDispatchError = "Unknown dispatch error"
)

var ErrItemNotFound = errors.New("queue item not found")

// GroupPostItem is one outbound broadcast job. Items are never deleted;
// the queue doubles as an audit trail of job history.
type GroupPostItem struct {
	ID             string       `json:"id"`
	Kind           Kind         `json:"kind"`
	Priority       Priority     `json:"priority"`
	Content        string       `json:"content"`
	Targets        []string     `json:"targets"`
	PendingTargets []string     `json:"pending_targets"`
	Status         Status       `json:"status"`
	ScheduleMode   ScheduleMode `json:"schedule_mode"`
	NextPostAt     time.Time    `json:"next_post_at"`
	RemainingPosts *int         `json:"remaining_posts,omitempty"`
	Source         Source       `json:"source"`
	SourceRef      string       `json:"source_ref,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	BrokerName     string       `json:"broker_name,omitempty"`
	BrokerContact  string       `json:"broker_contact,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	Attempts       int          `json:"attempts"`
	LastError      string       `json:"last_error,omitempty"`
	LastPostedAt   *time.Time   `json:"last_posted_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ItemDraft is a normalized intake request, ready to be persisted.
// The store assigns the id and seeds pending targets from Targets.
type ItemDraft struct {
	Kind           Kind
	Priority       Priority
	Content        string
	Targets        []string
	Tags           []string
	ScheduleMode   ScheduleMode
	NextPostAt     time.Time
	RemainingPosts *int
	Source         Source
	SourceRef      string
	IdempotencyKey string
	BrokerName     string
	BrokerContact  string
}

// QueueSummary aggregates item counts per status plus the earliest due
// instant among currently queued items.
type QueueSummary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
	NextDue  *time.Time     `json:"next_due,omitempty"`
}

// Sender delivers one text payload to one destination. The real WhatsApp
// client sits behind this seam and is out of scope here.
type Sender interface {
	SendText(ctx context.Context, target string, content string) error
}

// Clone returns a deep copy so store internals never alias caller slices.
func (i GroupPostItem) Clone() GroupPostItem {
	out := i
	out.Targets = append([]string(nil), i.Targets...)
	out.PendingTargets = append([]string(nil), i.PendingTargets...)
	out.Tags = append([]string(nil), i.Tags...)
	if i.RemainingPosts != nil {
		v := *i.RemainingPosts
		out.RemainingPosts = &v
	}
	if i.LastPostedAt != nil {
		t := *i.LastPostedAt
		out.LastPostedAt = &t
	}
	return out
}

func NormalizeKind(raw string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindRequirement:
		return KindRequirement
	default:
		return KindListing
	}
}

func NormalizePriority(raw string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

func NormalizeScheduleMode(raw string) ScheduleMode {
	switch ScheduleMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ScheduleDaily:
		return ScheduleDaily
	case ScheduleWeekly:
		return ScheduleWeekly
	default:
		return ScheduleOnce
	}
}

func NormalizeSource(raw string) Source {
	switch Source(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceChat:
		return SourceChat
	case SourceWhatsapp:
		return SourceWhatsapp
	default:
		return SourceAPI
	}
}

// ValidStatus reports whether raw names one of the four lifecycle states.
func ValidStatus(raw string) bool {
	switch Status(raw) {
	case StatusQueued, StatusProcessing, StatusSent, StatusFailed:
		return true
	}
	return false
}

// TruncateError normalizes dispatch error text for storage.
func TruncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return DefaultDispatchError
	}
	if len(msg) > MaxLastErrorLen {
		return msg[:MaxLastErrorLen]
	}
	return msg
}
