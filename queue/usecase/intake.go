package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	pkgError "github.com/propertydesk/groupqueue/pkg/error"
	"github.com/propertydesk/groupqueue/queue/domain"
	"github.com/propertydesk/groupqueue/validations"
)

// Submit normalizes an inbound broadcast request and enqueues it. Rejections
// are synchronous and create no item; a retried submission carrying a known
// idempotency key returns the original record.
func (s *PostQueueService) Submit(ctx context.Context, request domain.IntakeRequest) (domain.GroupPostItem, error) {
	if err := validations.ValidateIntake(ctx, request); err != nil {
		return domain.GroupPostItem{}, err
	}

	targets := normalizeList(request.Targets)
	if len(targets) == 0 {
		targets = append([]string(nil), s.defaultTargets...)
	}
	if len(targets) == 0 {
		return domain.GroupPostItem{}, pkgError.ValidationError("targets: at least one destination is required and no default destinations are configured")
	}

	mode := domain.NormalizeScheduleMode(request.ScheduleMode)

	nextPostAt := time.Now().UTC()
	if request.FirstPostAtIso != "" {
		// Parseability was already validated.
		if t, err := time.Parse(time.RFC3339, request.FirstPostAtIso); err == nil {
			nextPostAt = t.UTC()
		}
	}

	var remaining *int
	if mode != domain.ScheduleOnce && request.RepeatCount > 0 {
		count := request.RepeatCount
		remaining = &count
	}

	draft := domain.ItemDraft{
		Kind:           domain.NormalizeKind(request.Kind),
		Priority:       domain.NormalizePriority(request.Priority),
		Content:        strings.TrimSpace(request.Content),
		Targets:        targets,
		Tags:           normalizeList(request.Tags),
		ScheduleMode:   mode,
		NextPostAt:     nextPostAt,
		RemainingPosts: remaining,
		Source:         domain.NormalizeSource(request.Source),
		SourceRef:      strings.TrimSpace(request.SourceRef),
		IdempotencyKey: strings.TrimSpace(request.IdempotencyKey),
		BrokerName:     strings.TrimSpace(request.BrokerName),
		BrokerContact:  strings.TrimSpace(request.BrokerContact),
	}

	item, err := s.repo.Enqueue(ctx, draft)
	if err != nil {
		return domain.GroupPostItem{}, err
	}

	logrus.Infof("[QUEUE] enqueued %s item %s for %d target(s), due %s",
		item.Kind, item.ID, len(item.Targets), item.NextPostAt.Format(time.RFC3339))
	return item, nil
}
