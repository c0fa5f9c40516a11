package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propertydesk/groupqueue/queue/domain"
	"github.com/propertydesk/groupqueue/queue/repository"
)

// fakeSender fails exactly the targets listed in fail, and records every
// delivery attempt.
type fakeSender struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func newFakeSender(failTargets ...string) *fakeSender {
	fail := make(map[string]bool, len(failTargets))
	for _, t := range failTargets {
		fail[t] = true
	}
	return &fakeSender{fail: fail}
}

func (f *fakeSender) SendText(ctx context.Context, target string, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, target)
	if f.fail[target] {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeSender) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSender) heal(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fail, target)
}

func newDispatcher(repo repository.IQueueRepository, sender domain.Sender) *Dispatcher {
	return NewDispatcher(repo, sender, nil, DispatcherConfig{
		PollInterval: time.Minute,
		BatchSize:    10,
		StaleLease:   10 * time.Minute,
	})
}

func TestEndToEndPartialFailureThenRequeue(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQueueRepository()
	service := NewPostQueueService(repo, nil)
	sender := newFakeSender("g2")
	dispatcher := newDispatcher(repo, sender)

	item, err := service.Submit(ctx, domain.IntakeRequest{
		Content:      "3BHK Wakad listing",
		Targets:      []string{"g1", "g2"},
		Priority:     "high",
		ScheduleMode: "once",
	})
	require.NoError(t, err)

	// Cycle 1: g1 lands, g2 fails.
	result, err := dispatcher.RunCycle(ctx, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reserved)
	assert.Equal(t, 1, result.Failed)

	got, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, []string{"g2"}, got.PendingTargets)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError, "g2")

	// Operator requeues; the transport recovers.
	sender.heal("g2")
	_, err = service.RequeueItem(ctx, item.ID, domain.RequeueRequest{})
	require.NoError(t, err)

	// Cycle 2: only g2 is still owed a delivery.
	result, err = dispatcher.RunCycle(ctx, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	got, err = repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.Empty(t, got.PendingTargets)
	assert.Equal(t, 2, got.Attempts)
	assert.Empty(t, got.LastError)

	assert.Equal(t, []string{"g1", "g2", "g2"}, sender.sentTo(), "g1 must not be re-delivered")
}

func TestRecurringRescheduleDecrements(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQueueRepository()
	service := NewPostQueueService(repo, nil)
	sender := newFakeSender()
	dispatcher := newDispatcher(repo, sender)

	item, err := service.Submit(ctx, domain.IntakeRequest{
		Content:      "daily digest",
		Targets:      []string{"g1"},
		ScheduleMode: "daily",
		RepeatCount:  3,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	result, err := dispatcher.RunCycle(ctx, CycleOptions{Now: now})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rescheduled)

	got, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	require.NotNil(t, got.RemainingPosts)
	assert.Equal(t, 2, *got.RemainingPosts)
	assert.WithinDuration(t, now.Add(24*time.Hour), got.NextPostAt, time.Second)
	assert.Equal(t, got.Targets, got.PendingTargets, "next cycle starts fresh")
	assert.Equal(t, 1, got.Attempts)
}

func TestRecurringFinalSendTerminatesAsSent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQueueRepository()
	service := NewPostQueueService(repo, nil)
	sender := newFakeSender()
	dispatcher := newDispatcher(repo, sender)

	item, err := service.Submit(ctx, domain.IntakeRequest{
		Content:      "weekly roundup",
		Targets:      []string{"g1"},
		ScheduleMode: "weekly",
		RepeatCount:  2,
	})
	require.NoError(t, err)

	now := time.Now().UTC()

	// Occurrence 1 of 2: reschedules with one left.
	_, err = dispatcher.RunCycle(ctx, CycleOptions{Now: now})
	require.NoError(t, err)
	got, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RemainingPosts)
	assert.Equal(t, 1, *got.RemainingPosts)

	// Occurrence 2 of 2: final send, then stop.
	result, err := dispatcher.RunCycle(ctx, CycleOptions{Now: now.Add(7 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	got, err = repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Len(t, sender.sentTo(), 2)
}

func TestUnboundedRecurringKeepsRescheduling(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQueueRepository()
	service := NewPostQueueService(repo, nil)
	dispatcher := newDispatcher(repo, newFakeSender())

	item, err := service.Submit(ctx, domain.IntakeRequest{
		Content:      "evergreen",
		Targets:      []string{"g1"},
		ScheduleMode: "daily",
	})
	require.NoError(t, err)
	require.Nil(t, item.RemainingPosts)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		result, err := dispatcher.RunCycle(ctx, CycleOptions{Now: now.Add(time.Duration(i) * 24 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Rescheduled)
	}

	got, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Nil(t, got.RemainingPosts)
	assert.Equal(t, 3, got.Attempts)
}

func TestDryRunHandsItemsBackUntouched(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQueueRepository()
	service := NewPostQueueService(repo, nil)
	sender := newFakeSender()
	dispatcher := newDispatcher(repo, sender)

	item, err := service.Submit(ctx, domain.IntakeRequest{
		Content: "rehearsal",
		Targets: []string{"g1", "g2"},
	})
	require.NoError(t, err)

	dry := true
	result, err := dispatcher.RunCycle(ctx, CycleOptions{DryRun: &dry})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Reserved)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Items[0].Simulated)
	assert.Equal(t, []string{"g1", "g2"}, result.Items[0].Delivered)

	assert.Empty(t, sender.sentTo(), "dry-run must not touch the transport")

	got, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.WithinDuration(t, item.NextPostAt, got.NextPostAt, time.Second)
}

func TestOneItemFailureNeverAbortsTheCycle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQueueRepository()
	service := NewPostQueueService(repo, nil)
	sender := newFakeSender("dead-group")
	dispatcher := newDispatcher(repo, sender)

	bad, err := service.Submit(ctx, domain.IntakeRequest{Content: "doomed", Targets: []string{"dead-group"}})
	require.NoError(t, err)
	good, err := service.Submit(ctx, domain.IntakeRequest{Content: "fine", Targets: []string{"g1"}})
	require.NoError(t, err)

	result, err := dispatcher.RunCycle(ctx, CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Reserved)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)

	gotBad, _ := repo.Get(ctx, bad.ID)
	gotGood, _ := repo.Get(ctx, good.ID)
	assert.Equal(t, domain.StatusFailed, gotBad.Status)
	assert.Equal(t, domain.StatusSent, gotGood.Status)
}

func TestCycleRecoversStaleLeases(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQueueRepository()
	service := NewPostQueueService(repo, nil)
	sender := newFakeSender()
	dispatcher := newDispatcher(repo, sender)

	item, err := service.Submit(ctx, domain.IntakeRequest{Content: "stuck", Targets: []string{"g1"}})
	require.NoError(t, err)

	// A crashed worker reserved the item and never came back.
	reserved, err := repo.ReserveDue(ctx, time.Now().UTC(), 1)
	require.NoError(t, err)
	require.Len(t, reserved, 1)

	// A cycle whose clock sits past the lease window reclaims and redelivers.
	future := time.Now().UTC().Add(11 * time.Minute)
	result, err := dispatcher.RunCycle(ctx, CycleOptions{Now: future})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recovered)
	assert.Equal(t, 1, result.Sent)

	got, err := repo.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, got.Status)
}

func TestNotifyReceivesCycleResult(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryQueueRepository()
	service := NewPostQueueService(repo, nil)
	dispatcher := newDispatcher(repo, newFakeSender())

	_, err := service.Submit(ctx, domain.IntakeRequest{Content: "hello", Targets: []string{"g1"}})
	require.NoError(t, err)

	var got *CycleResult
	dispatcher.SetNotify(func(r CycleResult) { got = &r })

	_, err = dispatcher.RunCycle(ctx, CycleOptions{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Sent)
}
