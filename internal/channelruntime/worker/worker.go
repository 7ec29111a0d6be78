package worker

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("worker queue is full")

type StartOptions[J any] struct {
	Ctx    context.Context
	Sem    chan struct{}
	Jobs   <-chan J
	Handle func(context.Context, J)
	// Done is called when the worker goroutine exits.
	Done func()
}

// Start runs one goroutine that handles Jobs in order. Sem bounds how many
// workers handle a job at the same time.
func Start[J any](opts StartOptions[J]) {
	go func() {
		if opts.Done != nil {
			defer opts.Done()
		}
		for {
			select {
			case <-opts.Ctx.Done():
				return
			case job, ok := <-opts.Jobs:
				if !ok {
					return
				}
				if !acquire(opts.Ctx, opts.Sem) {
					return
				}
				func() {
					defer release(opts.Sem)
					opts.Handle(opts.Ctx, job)
				}()
			}
		}
	}()
}

func acquire(ctx context.Context, sem chan struct{}) bool {
	if sem == nil {
		return true
	}
	select {
	case sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func release(sem chan struct{}) {
	if sem != nil {
		<-sem
	}
}

func Enqueue[J any](ctx, workersCtx context.Context, jobs chan<- J, job J) error {
	if ctx == nil {
		ctx = workersCtx
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-workersCtx.Done():
		return workersCtx.Err()
	case jobs <- job:
		return nil
	}
}

type PoolOptions[J any] struct {
	// MaxConcurrency bounds the keys handled at the same time.
	MaxConcurrency int
	// QueueSize is the buffer of each key's queue.
	QueueSize int
	Handle    func(context.Context, J)
}

// Pool keeps one worker per key. Jobs of the same key are handled strictly
// in submission order; different keys run concurrently.
type Pool[K comparable, J any] struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sem     chan struct{}
	size    int
	handle  func(context.Context, J)
	mu      sync.Mutex
	workers map[K]chan J
	wg      sync.WaitGroup
}

func NewPool[K comparable, J any](ctx context.Context, opts PoolOptions[J]) *Pool[K, J] {
	maxConc := opts.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 1
	}
	size := opts.QueueSize
	if size <= 0 {
		size = 16
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool[K, J]{
		ctx:     ctx,
		cancel:  cancel,
		sem:     make(chan struct{}, maxConc),
		size:    size,
		handle:  opts.Handle,
		workers: make(map[K]chan J),
	}
}

// Submit queues job for key, starting the key's worker on first use. It
// blocks while the key's queue is full.
func (p *Pool[K, J]) Submit(ctx context.Context, key K, job J) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	return Enqueue(ctx, p.ctx, p.jobs(key), job)
}

// TrySubmit queues job for key without blocking.
func (p *Pool[K, J]) TrySubmit(key K, job J) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	select {
	case p.jobs(key) <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool[K, J]) jobs(key K) chan J {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.workers[key]; ok {
		return ch
	}
	ch := make(chan J, p.size)
	p.workers[key] = ch
	p.wg.Add(1)
	Start(StartOptions[J]{
		Ctx:    p.ctx,
		Sem:    p.sem,
		Jobs:   ch,
		Handle: p.handle,
		Done:   p.wg.Done,
	})
	return ch
}

// Len reports the number of started workers.
func (p *Pool[K, J]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Close stops every worker and waits for running jobs to return. Queued
// jobs are dropped.
func (p *Pool[K, J]) Close() {
	p.cancel()
	p.wg.Wait()
}
