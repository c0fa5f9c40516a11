package itempool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job is one reserved queue item to process within a dispatch cycle.
type Job struct {
	ItemID  string
	Handler func(ctx context.Context) error
}

// PoolStats are cumulative counters across cycles.
type PoolStats struct {
	TotalProcessed int64 `json:"total_processed"`
	TotalErrors    int64 `json:"total_errors"`
}

// Pool fans a batch of item jobs out over a fixed number of workers and
// waits for the whole batch. A failing handler never aborts the rest of the
// batch; failures are the item's problem, recorded by the caller.
type Pool struct {
	numWorkers int

	totalProcessed int64
	totalErrors    int64
}

func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Pool{numWorkers: numWorkers}
}

// Process runs every job and returns once all handlers finished. Context
// cancellation stops feeding workers; in-flight handlers observe ctx
// themselves.
func (p *Pool) Process(ctx context.Context, jobs []Job) {
	if len(jobs) == 0 {
		return
	}

	workers := p.numWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan Job)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for job := range queue {
				if err := job.Handler(ctx); err != nil {
					atomic.AddInt64(&p.totalErrors, 1)
					logrus.WithError(err).Warnf("[ITEM_POOL] worker %d: item %s failed", id, job.ItemID)
				}
				atomic.AddInt64(&p.totalProcessed, 1)
			}
		}(i)
	}

	for i, job := range jobs {
		select {
		case <-ctx.Done():
			// Stop feeding; whatever was not handed out is left for the
			// stale-lease sweep to reclaim.
			logrus.Warnf("[ITEM_POOL] context cancelled with %d items undispatched", len(jobs)-i)
			close(queue)
			wg.Wait()
			return
		case queue <- job:
		}
	}
	close(queue)
	wg.Wait()
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		TotalProcessed: atomic.LoadInt64(&p.totalProcessed),
		TotalErrors:    atomic.LoadInt64(&p.totalErrors),
	}
}
