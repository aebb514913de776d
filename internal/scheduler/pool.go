package scheduler

import (
	"sync"
	"time"

	"sniper-trading-bot/internal/logging"
)

// WorkerPool is a bounded pool with caller-runs back-pressure and a
// per-symbol in-progress set: a symbol already being evaluated is never
// dispatched a second time.
type WorkerPool struct {
	workers int
	tasks   chan poolTask
	wg      sync.WaitGroup
	quit    chan struct{}

	mu         sync.Mutex
	inProgress map[string]bool
	stopped    bool

	logger *logging.Logger
}

type poolTask struct {
	symbol string
	fn     func()
}

// NewWorkerPool creates and starts a pool with the given worker count,
// clamped to [4, 8]
func NewWorkerPool(workers int) *WorkerPool {
	if workers < 4 {
		workers = 4
	}
	if workers > 8 {
		workers = 8
	}

	p := &WorkerPool{
		workers:    workers,
		tasks:      make(chan poolTask),
		quit:       make(chan struct{}),
		inProgress: make(map[string]bool),
		logger:     logging.Default().WithComponent("worker-pool"),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			p.run(task)
		}
	}
}

func (p *WorkerPool) run(task poolTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Evaluation task panicked",
				"symbol", task.symbol, "panic", r)
		}
		p.mu.Lock()
		delete(p.inProgress, task.symbol)
		p.mu.Unlock()
	}()
	task.fn()
}

// Submit dispatches a task for a symbol. Returns false without running when
// the symbol is already in flight or the pool is stopped. When all workers
// are busy the task runs on the caller's goroutine, preserving liveness.
func (p *WorkerPool) Submit(symbol string, fn func()) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return false
	}
	if p.inProgress[symbol] {
		p.mu.Unlock()
		p.logger.Debug("Symbol already in flight, skipping", "symbol", symbol)
		return false
	}
	p.inProgress[symbol] = true
	p.mu.Unlock()

	task := poolTask{symbol: symbol, fn: fn}
	select {
	case p.tasks <- task:
	default:
		// Pool saturated: degrade to caller-runs
		p.logger.Debug("Pool saturated, running on caller", "symbol", symbol)
		p.run(task)
	}
	return true
}

// InFlight returns the number of symbols currently being evaluated
func (p *WorkerPool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inProgress)
}

// Shutdown stops accepting tasks and waits up to drainWait for in-flight
// work to finish
func (p *WorkerPool) Shutdown(drainWait time.Duration) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.quit)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainWait):
		p.logger.Warn("Pool drain timed out", "waited", drainWait.String())
	}
}
