package notify

import (
	"context"
	"sync"

	"grievance/internal/complaint"
	"grievance/internal/logging"
)

// Notifier is satisfied by *Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, c complaint.Complaint)
}

// Pool runs notifications asynchronously on a fixed number of workers so the
// email agent never waits on SMS or SMTP latency.
//
// Lifecycle:
//  1. NewPool starts the workers
//  2. Submit queues a complaint (blocks only when the buffer is full)
//  3. Close stops intake and waits until every queued job has run
type Pool struct {
	ctx  context.Context
	n    Notifier
	jobs chan complaint.Complaint
	wg   sync.WaitGroup
	log  logging.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines. ctx is handed to every Notify call and
// should outlive individual requests.
func NewPool(ctx context.Context, n Notifier, workers int, log logging.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		ctx:  ctx,
		n:    n,
		jobs: make(chan complaint.Complaint, 100),
		log:  log.With(logging.F("component", "notify_pool")),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	p.log.Debug("notification pool started", logging.F("workers", workers))
	return p
}

// Submit queues c for notification. Returns false once the pool is closed.
func (p *Pool) Submit(c complaint.Complaint) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("pool closed, notification dropped", logging.F("id", c.ID))
		return false
	}
	p.jobs <- c
	return true
}

// Close stops accepting work and waits for queued notifications to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for c := range p.jobs {
		p.log.Debug("notifying", logging.F("worker", id), logging.F("id", c.ID))
		p.n.Notify(p.ctx, c)
	}
}
