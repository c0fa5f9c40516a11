package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"

	pkgError "github.com/propertydesk/groupqueue/pkg/error"
	"github.com/propertydesk/groupqueue/queue/domain"
	"github.com/propertydesk/groupqueue/queue/repository"
	"github.com/propertydesk/groupqueue/validations"
)

// SummaryResponse wraps the store summary with an operator-friendly
// relative form of the next due instant.
type SummaryResponse struct {
	domain.QueueSummary
	NextDueIn string `json:"next_due_in,omitempty"`
}

func (s *PostQueueService) Summary(ctx context.Context) (SummaryResponse, error) {
	summary, err := s.repo.GetSummary(ctx)
	if err != nil {
		return SummaryResponse{}, err
	}

	resp := SummaryResponse{QueueSummary: summary}
	if summary.NextDue != nil {
		resp.NextDueIn = humanize.Time(*summary.NextDue)
	}
	return resp, nil
}

func (s *PostQueueService) ListItems(ctx context.Context, statusRaw string, limit int) ([]domain.GroupPostItem, error) {
	filter := repository.ListFilter{Limit: limit}
	if statusRaw != "" {
		if !domain.ValidStatus(statusRaw) {
			return nil, pkgError.ValidationError("status: must be one of queued, processing, sent, failed")
		}
		filter.Status = domain.Status(statusRaw)
	}
	return s.repo.List(ctx, filter)
}

func (s *PostQueueService) GetItem(ctx context.Context, id string) (domain.GroupPostItem, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return domain.GroupPostItem{}, pkgError.NotFoundError("queue item " + id + " not found")
		}
		return domain.GroupPostItem{}, err
	}
	return item, nil
}

// RequeueItem is the manual operator path back from failed to queued.
func (s *PostQueueService) RequeueItem(ctx context.Context, id string, request domain.RequeueRequest) (domain.GroupPostItem, error) {
	if err := validations.ValidateRequeue(ctx, request); err != nil {
		return domain.GroupPostItem{}, err
	}

	nextPostAt := time.Now().UTC()
	if request.NextPostAtIso != "" {
		if t, err := time.Parse(time.RFC3339, request.NextPostAtIso); err == nil {
			nextPostAt = t.UTC()
		}
	}

	if err := s.repo.Requeue(ctx, id, nextPostAt); err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return domain.GroupPostItem{}, pkgError.NotFoundError("queue item " + id + " not found")
		}
		return domain.GroupPostItem{}, err
	}
	return s.repo.Get(ctx, id)
}
