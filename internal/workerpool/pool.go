package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

/*
A fixed number of workers drain a bounded job queue.

- Submit never blocks: a full queue is reported as ErrQueueFull so callers
  on a connection's read path can answer the user instead of stalling.
- Shutdown stops accepting jobs and cancels the context handed to jobs.
  Jobs already queued still run, with that cancelled context, so each one
  gets to record its own failure before the workers return.
*/

var (
	ErrQueueFull = errors.New("worker pool queue is full")
	ErrStopped   = errors.New("worker pool is stopped")
)

// Job is one unit of work. ctx is cancelled on Shutdown; jobs drained after
// that see it already cancelled.
type Job func(ctx context.Context)

type Pool struct {
	name    string
	workers int
	jobs    chan Job

	mu      sync.RWMutex
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool; call Start before submitting.
func New(name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		name:    name,
		workers: workers,
		jobs:    make(chan Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	slog.Info("worker pool started", "pool", p.name, "workers", p.workers)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker pool job panicked", "pool", p.name, "worker", id, "panic", r)
		}
	}()
	job(p.ctx)
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueLength returns the number of jobs waiting for a worker.
func (p *Pool) QueueLength() int {
	return len(p.jobs)
}

// Shutdown is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	drained := len(p.jobs)
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	slog.Info("worker pool stopped", "pool", p.name, "drained", drained)
}
