package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgError "github.com/propertydesk/groupqueue/pkg/error"
	"github.com/propertydesk/groupqueue/queue/domain"
	"github.com/propertydesk/groupqueue/queue/repository"
)

func newService(defaults ...string) (*PostQueueService, repository.IQueueRepository) {
	repo := repository.NewMemoryQueueRepository()
	return NewPostQueueService(repo, defaults), repo
}

func TestSubmitRejectsBlankContent(t *testing.T) {
	service, repo := newService()

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := service.Submit(context.Background(), domain.IntakeRequest{
			Content: content,
			Targets: []string{"g1"},
		})
		require.Error(t, err)
		var vErr pkgError.ValidationError
		assert.ErrorAs(t, err, &vErr)
	}

	items, err := repo.List(context.Background(), repository.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, items, "rejected intake must not create an item")
}

func TestSubmitNormalizesEnumsAndLists(t *testing.T) {
	service, _ := newService()

	item, err := service.Submit(context.Background(), domain.IntakeRequest{
		Content:      "  3BHK Wakad listing  ",
		Kind:         "JUNK",
		Priority:     "HIGH",
		ScheduleMode: "hourly",
		Source:       "teletype",
		Targets:      []string{" g1 ", "g2", "g1", "", "g2"},
		Tags:         []string{" wakad ", "wakad", "3bhk"},
	})
	require.NoError(t, err)

	assert.Equal(t, "3BHK Wakad listing", item.Content)
	assert.Equal(t, domain.KindListing, item.Kind, "unknown kind falls back to listing")
	assert.Equal(t, domain.PriorityHigh, item.Priority)
	assert.Equal(t, domain.ScheduleOnce, item.ScheduleMode, "unknown mode falls back to once")
	assert.Equal(t, domain.SourceAPI, item.Source)
	assert.Equal(t, []string{"g1", "g2"}, item.Targets)
	assert.Equal(t, []string{"wakad", "3bhk"}, item.Tags)
	assert.Nil(t, item.RemainingPosts, "once never reschedules")
}

func TestSubmitDefaultTargets(t *testing.T) {
	service, _ := newService("broadcast-all", "vip-brokers")

	item, err := service.Submit(context.Background(), domain.IntakeRequest{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"broadcast-all", "vip-brokers"}, item.Targets)

	// No targets anywhere is a rejection.
	bare, _ := newService()
	_, err = bare.Submit(context.Background(), domain.IntakeRequest{Content: "hello"})
	require.Error(t, err)
	var vErr pkgError.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestSubmitScheduleFields(t *testing.T) {
	service, _ := newService()

	first := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	item, err := service.Submit(context.Background(), domain.IntakeRequest{
		Content:        "daily digest",
		Targets:        []string{"g1"},
		ScheduleMode:   "daily",
		FirstPostAtIso: first.Format(time.RFC3339),
		RepeatCount:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleDaily, item.ScheduleMode)
	assert.WithinDuration(t, first, item.NextPostAt, time.Second)
	require.NotNil(t, item.RemainingPosts)
	assert.Equal(t, 3, *item.RemainingPosts)

	// Missing first post time means due now.
	now := time.Now().UTC()
	item, err = service.Submit(context.Background(), domain.IntakeRequest{
		Content: "asap",
		Targets: []string{"g1"},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, now, item.NextPostAt, 2*time.Second)

	// Garbage timestamps are rejected outright.
	_, err = service.Submit(context.Background(), domain.IntakeRequest{
		Content:        "bad time",
		Targets:        []string{"g1"},
		FirstPostAtIso: "tomorrow-ish",
	})
	require.Error(t, err)
}

func TestSubmitIdempotencyPassthrough(t *testing.T) {
	service, repo := newService()

	first, err := service.Submit(context.Background(), domain.IntakeRequest{
		Content:        "original",
		Targets:        []string{"g1"},
		IdempotencyKey: "chat-123",
	})
	require.NoError(t, err)

	second, err := service.Submit(context.Background(), domain.IntakeRequest{
		Content:        "resubmitted",
		Targets:        []string{"g1", "g2"},
		IdempotencyKey: "chat-123",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	items, err := repo.List(context.Background(), repository.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestListItemsValidatesStatus(t *testing.T) {
	service, _ := newService()

	_, err := service.ListItems(context.Background(), "bogus", 10)
	require.Error(t, err)
	var vErr pkgError.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestGetItemNotFound(t *testing.T) {
	service, _ := newService()

	_, err := service.GetItem(context.Background(), "missing")
	require.Error(t, err)
	var nfErr pkgError.NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}
