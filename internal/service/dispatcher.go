package service

import (
	"context"
	"sync"

	"github.com/timmy/armscan/internal/domain"
	"github.com/timmy/armscan/internal/logger"
)

// Recognizer is the single recognition entry point the dispatcher drives.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) *domain.Report
}

// DispatcherConfig holds configuration for the dispatcher
type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

type recognitionJob struct {
	ctx      context.Context
	path     string
	callback func(*domain.Report)
}

// Dispatcher runs recognitions on a fixed worker pool so transports never block on them.
// Each job reports to its own callback; there is no ordering between jobs.
type Dispatcher struct {
	recognizer Recognizer
	jobs       chan recognitionJob
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher and starts its workers.
func NewDispatcher(recognizer Recognizer, cfg *DispatcherConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	d := &Dispatcher{
		recognizer: recognizer,
		jobs:       make(chan recognitionJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Submit queues a recognition without blocking.
// Parameters:
//   - ctx: caller context; its values (logger fields) are kept, its cancellation is not.
//   - imagePath: photo to recognize; the callback owns it afterwards.
//   - callback: receives the report from a worker goroutine.
// Returns:
//   - error: domain.ErrQueueFull when the queue is full or the dispatcher is closed.
func (d *Dispatcher) Submit(ctx context.Context, imagePath string, callback func(*domain.Report)) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return domain.ErrQueueFull
	}

	job := recognitionJob{
		ctx:      context.WithoutCancel(ctx),
		path:     imagePath,
		callback: callback,
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for job := range d.jobs {
		report := d.recognizer.Recognize(job.ctx, job.path)
		if job.callback == nil {
			continue
		}
		d.deliver(job, report, id)
	}
}

// deliver isolates the worker from a panicking callback.
func (d *Dispatcher) deliver(job recognitionJob, report *domain.Report, worker int) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(job.ctx).WithFields(logger.Fields{
				"worker": worker,
				"panic":  r,
			}).Error("Recognition callback panicked")
		}
	}()
	job.callback(report)
}
