package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/propertydesk/groupqueue/infrastructure/valkey"
	pkgError "github.com/propertydesk/groupqueue/pkg/error"
	"github.com/propertydesk/groupqueue/pkg/itempool"
	"github.com/propertydesk/groupqueue/queue/domain"
	"github.com/propertydesk/groupqueue/queue/repository"
	"github.com/propertydesk/groupqueue/validations"
)

const tickLockTTL = 55 * time.Second

// DispatcherConfig tunes the periodic dispatch loop.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	StaleLease   time.Duration
	DryRun       bool
	Workers      int
}

// CycleOptions override loop defaults for one forced cycle. A zero Now means
// the wall clock; the override pins stale recovery, reservation and schedule
// computation to one instant for deterministic rehearsal.
type CycleOptions struct {
	Now    time.Time
	Limit  int
	DryRun *bool
}

// ItemOutcome records what one cycle did to one reserved item.
type ItemOutcome struct {
	ID            string        `json:"id"`
	Status        domain.Status `json:"status"`
	Delivered     []string      `json:"delivered,omitempty"`
	FailedTargets []string      `json:"failed_targets,omitempty"`
	Error         string        `json:"error,omitempty"`
	Simulated     bool          `json:"simulated,omitempty"`
}

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	StartedAt   time.Time     `json:"started_at"`
	DryRun      bool          `json:"dry_run"`
	Recovered   int           `json:"recovered"`
	Reserved    int           `json:"reserved"`
	Sent        int           `json:"sent"`
	Rescheduled int           `json:"rescheduled"`
	Failed      int           `json:"failed"`
	Items       []ItemOutcome `json:"items,omitempty"`
}

// Dispatcher drains the queue: recover stale leases, reserve a due batch,
// deliver per destination, commit the outcome. One delivery failure never
// aborts the cycle for other reserved items.
type Dispatcher struct {
	repo   repository.IQueueRepository
	sender domain.Sender
	pool   *itempool.Pool
	vk     *valkey.Client
	cfg    DispatcherConfig
	notify func(CycleResult)
}

func NewDispatcher(repo repository.IQueueRepository, sender domain.Sender, vk *valkey.Client, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.StaleLease <= 0 {
		cfg.StaleLease = 10 * time.Minute
	}
	return &Dispatcher{
		repo:   repo,
		sender: sender,
		pool:   itempool.New(cfg.Workers),
		vk:     vk,
		cfg:    cfg,
	}
}

// SetNotify registers a sink for cycle results (websocket status feed).
func (d *Dispatcher) SetNotify(fn func(CycleResult)) {
	d.notify = fn
}

// Run executes the periodic loop until the context is cancelled. The first
// cycle runs immediately so a restart drains overdue work without waiting a
// full interval.
func (d *Dispatcher) Run(ctx context.Context) {
	logrus.Infof("[DISPATCH] loop started (every %s, batch %d, lease %s, dry_run=%v)",
		d.cfg.PollInterval, d.cfg.BatchSize, d.cfg.StaleLease, d.cfg.DryRun)

	d.tick(ctx)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("[DISPATCH] loop stopped")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	if !d.tryTickLock(ctx) {
		logrus.Debug("[DISPATCH] tick held by another node, skipping")
		return
	}
	if _, err := d.RunCycle(ctx, CycleOptions{}); err != nil {
		logrus.WithError(err).Error("[DISPATCH] cycle aborted")
	}
}

// tryTickLock keeps multiple nodes from all scanning on the same tick. The
// lock is advisory: reservation stays safe without it, so a valkey outage
// degrades to redundant scans, not double sends.
func (d *Dispatcher) tryTickLock(ctx context.Context) bool {
	if d.vk == nil {
		return true
	}
	lockKey := d.vk.Key("lock", "dispatch")
	err := d.vk.Inner().Do(ctx,
		d.vk.Inner().B().Set().Key(lockKey).Value("1").Nx().Ex(tickLockTTL).Build()).Error()
	if err != nil {
		if valkey.IsNil(err) {
			return false
		}
		logrus.WithError(err).Warn("[DISPATCH] tick lock unavailable, proceeding without it")
	}
	return true
}

// RunForcedCycle validates an operator dispatch request and runs one cycle
// outside the regular poll schedule.
func (d *Dispatcher) RunForcedCycle(ctx context.Context, request domain.DispatchRequest) (CycleResult, error) {
	if err := validations.ValidateDispatch(ctx, request); err != nil {
		return CycleResult{}, err
	}

	opts := CycleOptions{Limit: request.Limit, DryRun: request.DryRun}
	if request.NowIso != "" {
		now, err := time.Parse(time.RFC3339, request.NowIso)
		if err != nil {
			return CycleResult{}, pkgError.ValidationError("now_iso must be an RFC3339 timestamp")
		}
		opts.Now = now.UTC()
	}
	return d.RunCycle(ctx, opts)
}

// RunCycle performs one dispatch cycle. Storage errors during recovery or
// reservation abort the cycle; anything already flipped to processing is
// reclaimed by a later stale sweep.
func (d *Dispatcher) RunCycle(ctx context.Context, opts CycleOptions) (CycleResult, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	dryRun := d.cfg.DryRun
	if opts.DryRun != nil {
		dryRun = *opts.DryRun
	}
	limit := d.cfg.BatchSize
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	result := CycleResult{StartedAt: now, DryRun: dryRun}

	recovered, err := d.repo.RecoverStaleProcessing(ctx, now.Add(-d.cfg.StaleLease))
	if err != nil {
		return result, fmt.Errorf("recover stale processing: %w", err)
	}
	result.Recovered = recovered
	if recovered > 0 {
		logrus.Warnf("[DISPATCH] recovered %d stale item(s) from expired leases", recovered)
	}

	reserved, err := d.repo.ReserveDue(ctx, now, limit)
	if err != nil {
		return result, fmt.Errorf("reserve due items: %w", err)
	}
	result.Reserved = len(reserved)
	if len(reserved) == 0 {
		return result, nil
	}

	outcomes := make([]ItemOutcome, len(reserved))
	jobs := make([]itempool.Job, len(reserved))
	for i, item := range reserved {
		i, item := i, item
		jobs[i] = itempool.Job{
			ItemID: item.ID,
			Handler: func(ctx context.Context) error {
				outcomes[i] = d.processItem(ctx, item, now, dryRun)
				return nil
			},
		}
	}
	d.pool.Process(ctx, jobs)

	for _, outcome := range outcomes {
		result.Items = append(result.Items, outcome)
		switch {
		case outcome.Simulated:
			// counted as reserved only
		case outcome.Status == domain.StatusSent:
			result.Sent++
		case outcome.Status == domain.StatusQueued:
			result.Rescheduled++
		case outcome.Status == domain.StatusFailed:
			result.Failed++
		}
	}

	logrus.Infof("[DISPATCH] cycle done: reserved=%d sent=%d rescheduled=%d failed=%d recovered=%d dry_run=%v",
		result.Reserved, result.Sent, result.Rescheduled, result.Failed, result.Recovered, dryRun)

	if d.notify != nil {
		d.notify(result)
	}
	return result, nil
}

func (d *Dispatcher) processItem(ctx context.Context, item domain.GroupPostItem, now time.Time, dryRun bool) ItemOutcome {
	outcome := ItemOutcome{ID: item.ID}

	pending := item.PendingTargets
	if len(pending) == 0 {
		// Should not happen for a reserved item; resend to everyone rather
		// than silently completing.
		pending = item.Targets
	}

	if dryRun {
		// Rehearsal: simulate full delivery, then hand the item back exactly
		// as it was so a real cycle still owes the same work.
		outcome.Simulated = true
		outcome.Delivered = pending
		outcome.Status = domain.StatusQueued
		if err := d.repo.Requeue(ctx, item.ID, item.NextPostAt); err != nil {
			outcome.Error = err.Error()
			logrus.WithError(err).Errorf("[DISPATCH] dry-run handback failed for item %s", item.ID)
		}
		return outcome
	}

	var delivered, failedTargets []string
	var sendErrors []string
	for _, target := range pending {
		if err := d.sender.SendText(ctx, target, item.Content); err != nil {
			failedTargets = append(failedTargets, target)
			sendErrors = append(sendErrors, fmt.Sprintf("%s: %v", target, err))
			continue
		}
		delivered = append(delivered, target)
	}
	outcome.Delivered = delivered
	outcome.FailedTargets = failedTargets

	if len(failedTargets) > 0 {
		msg := strings.Join(sendErrors, "; ")
		outcome.Status = domain.StatusFailed
		outcome.Error = domain.TruncateError(msg)
		if err := d.repo.MarkFailed(ctx, item.ID, msg, failedTargets); err != nil {
			logrus.WithError(err).Errorf("[DISPATCH] mark failed lost for item %s", item.ID)
			outcome.Error = err.Error()
		}
		return outcome
	}

	if domain.ShouldReschedule(item.ScheduleMode, item.RemainingPosts) {
		next, _ := domain.NextOccurrence(now, item.ScheduleMode)
		err := d.repo.RescheduleAfterSend(ctx, item.ID, repository.RescheduleParams{
			NextPostAt:     next,
			RemainingPosts: domain.DecrementRemaining(item.RemainingPosts),
			PostedAt:       now,
		})
		if err != nil {
			logrus.WithError(err).Errorf("[DISPATCH] reschedule lost for item %s", item.ID)
			outcome.Error = err.Error()
			return outcome
		}
		outcome.Status = domain.StatusQueued
		return outcome
	}

	if err := d.repo.MarkSent(ctx, item.ID, now); err != nil {
		logrus.WithError(err).Errorf("[DISPATCH] mark sent lost for item %s", item.ID)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = domain.StatusSent
	return outcome
}
