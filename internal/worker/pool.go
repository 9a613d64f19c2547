package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Task is a background job.
type Task func(ctx context.Context) error

// Pool runs fire-and-forget tasks on a fixed number of goroutines.
// Tasks are dropped, not blocked on, when the queue is full or the pool is closing.
type Pool struct {
	name      string
	taskQueue chan Task
	wg        sync.WaitGroup
	isClosing atomic.Bool
	mu        sync.RWMutex
}

func NewPool(name string, size, queue int) *Pool {
	if size <= 0 {
		size = 1
	}
	if queue <= 0 {
		queue = 1000
	}

	p := &Pool{
		name:      name,
		taskQueue: make(chan Task, queue),
	}

	for range size {
		p.wg.Add(1)
		go p.startWorker()
	}

	return p
}

func (p *Pool) startWorker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("%s worker task panicked: %v", p.name, r)
		}
	}()

	if err := task(context.Background()); err != nil {
		logrus.Warnf("%s worker task failed: %v", p.name, err)
	}
}

// Submit queues the task and reports whether it was accepted.
func (p *Pool) Submit(t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.isClosing.Load() {
		logrus.Warnf("%s: task submitted during shutdown, dropping", p.name)
		return false
	}

	select {
	case p.taskQueue <- t:
		return true
	default:
		logrus.Warnf("%s: task queue full, dropping task", p.name)
		return false
	}
}

// Shutdown stops accepting tasks and waits for the queued ones to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.isClosing.Swap(true) {
		p.mu.Unlock()
		return
	}
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
}
