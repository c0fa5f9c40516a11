package usecase

import (
	"strings"

	"github.com/propertydesk/groupqueue/queue/repository"
)

// PostQueueService is the intake and query surface over the queue store.
type PostQueueService struct {
	repo           repository.IQueueRepository
	defaultTargets []string
}

func NewPostQueueService(repo repository.IQueueRepository, defaultTargets []string) *PostQueueService {
	return &PostQueueService{
		repo:           repo,
		defaultTargets: normalizeList(defaultTargets),
	}
}

// normalizeList trims entries, drops blanks and deduplicates while keeping
// the first-seen order.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
