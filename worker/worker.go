package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jupark12/docshift/models"
)

// ErrPoolClosed is returned by Dispatch after Stop has been called.
var ErrPoolClosed = errors.New("worker pool is closed")

// Job is a pending document together with its uploaded bytes.
type Job struct {
	Document *models.Document
	Data     []byte
}

// Runner carries a document to a terminal state.
type Runner interface {
	Run(ctx context.Context, doc *models.Document, data []byte) *models.Document
}

// Worker represents a processing goroutine that consumes jobs
type Worker struct {
	ID         string
	Processing bool
	mu         sync.Mutex
}

func (w *Worker) setProcessing(v bool) {
	w.mu.Lock()
	w.Processing = v
	w.mu.Unlock()
}

func (w *Worker) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Processing
}

// Pool runs queued jobs on a fixed number of workers.
type Pool struct {
	runner  Runner
	jobs    chan Job
	workers []*Worker
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool of size workers with room for queueSize waiting jobs.
func NewPool(runner Runner, size, queueSize int, logger zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner:  runner,
		jobs:    make(chan Job, queueSize),
		workers: make([]*Worker, size),
		logger:  logger.With().Str("component", "worker").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range p.workers {
		p.workers[i] = &Worker{ID: fmt.Sprintf("worker-%d", i+1)}
	}
	return p
}

// Start begins processing jobs
func (p *Pool) Start() {
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.loop(w)
	}
	p.logger.Info().Int("workers", len(p.workers)).Int("queue_size", cap(p.jobs)).Msg("worker pool started")
}

func (p *Pool) loop(w *Worker) {
	defer p.wg.Done()
	logger := p.logger.With().Str("worker_id", w.ID).Logger()

	for job := range p.jobs {
		w.setProcessing(true)
		logger.Debug().Int64("document_id", job.Document.ID).Msg("processing document")

		doc := p.runner.Run(p.ctx, job.Document, job.Data)

		logger.Debug().Int64("document_id", doc.ID).Str("status", string(doc.Status)).Msg("document finished")
		w.setProcessing(false)
	}
}

// Dispatch queues job, waiting for room until ctx is done. It fails with
// ErrPoolClosed after Stop.
func (p *Pool) Dispatch(ctx context.Context, job Job) error {
	if job.Document == nil {
		return errors.New("job has no document")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports how many workers are running a job.
func (p *Pool) Busy() int {
	n := 0
	for _, w := range p.workers {
		if w.busy() {
			n++
		}
	}
	return n
}

// Stop refuses new jobs and waits for queued ones to finish. When ctx expires
// first, in-flight runs are cancelled and Stop returns ctx.Err().
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info().Msg("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
