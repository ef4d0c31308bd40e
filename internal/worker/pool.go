package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type task struct {
	seq int
	job Job
}

// Pool runs jobs on a fixed set of workers and keeps their results in
// submission order
type Pool struct {
	workers int
	queue   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// submitMu serializes Submit against closing the queue
	submitMu sync.Mutex
	closed   bool

	mu      sync.Mutex
	results []Result
}

// NewPool creates a pool with the given number of workers.
// Jobs run with a context derived from ctx.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers: workers,
		queue:   make(chan task, workers),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			r := t.job.Execute(p.ctx)

			p.mu.Lock()
			p.results[t.seq] = r
			p.mu.Unlock()
		}
	}
}

// Submit queues a job. It blocks while all workers are busy and reports
// false if the pool was cancelled or already waited on.
func (p *Pool) Submit(job Job) bool {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	if p.closed || p.ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	seq := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		p.mu.Lock()
		p.results = p.results[:seq]
		p.mu.Unlock()
		return false
	case p.queue <- task{seq: seq, job: job}:
		return true
	}
}

// Wait closes the pool to new jobs, waits for the queued ones and returns
// one result per accepted job in submission order. Jobs dropped by
// cancellation leave a nil entry.
func (p *Pool) Wait() []Result {
	p.close()
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	return append(make([]Result, 0, len(p.results)), p.results...)
}

// Shutdown cancels running jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancel()
	p.close()
	p.wg.Wait()
}

func (p *Pool) close() {
	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	if !p.closed {
		p.closed = true
		close(p.queue)
	}
}
