package embedding

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/localsearch/pkg/utils"
)

const defaultQueueSize = 64

// Worker owns a single Embedder and runs every embedding on one goroutine, fed by a
// bounded queue. Submitting blocks while the queue is full. A job that has been taken
// off the queue runs to completion even if its caller has gone away.
//
// If the embedder panics, the request gets ErrEmbedderPoisoned and the instance is
// discarded; the next job gets a fresh one from the factory. Worker itself implements
// Embedder and is safe for concurrent use.
type Worker struct {
	factory Factory
	dims    int
	cache   *Cache
	logger  *zap.Logger

	// emb is only touched by the run goroutine after construction.
	emb Embedder

	jobs      chan job
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

type job struct {
	ctx       context.Context
	text      string
	maxTokens int
	done      chan result
}

type result struct {
	vec []float32
	err error
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker, *int)

// WithQueueSize sets how many requests may wait for the embedder.
func WithQueueSize(n int) WorkerOption {
	return func(_ *Worker, size *int) {
		if n > 0 {
			*size = n
		}
	}
}

// WithCache answers repeated (text, maxTokens) pairs from an LRU cache of the given size.
func WithCache(size int) WorkerOption {
	return func(w *Worker, _ *int) {
		if size > 0 {
			w.cache = NewCache(size)
		}
	}
}

// WithLogger sets the logger for recovery events.
func WithLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker, _ *int) {
		w.logger = l
	}
}

// NewWorker creates the first embedder through factory and starts the worker goroutine.
func NewWorker(factory Factory, opts ...WorkerOption) (*Worker, error) {
	w := &Worker{factory: factory}
	queueSize := defaultQueueSize
	for _, opt := range opts {
		opt(w, &queueSize)
	}
	w.logger = utils.OrNop(w.logger)

	emb, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	w.emb = emb
	w.dims = emb.Dimensions()
	w.jobs = make(chan job, queueSize)
	w.quit = make(chan struct{})
	w.stopped = make(chan struct{})

	go w.run()
	return w, nil
}

// Embed queues text for embedding and waits for the result.
func (w *Worker) Embed(ctx context.Context, text string, maxTokens int) ([]float32, error) {
	select {
	case <-w.quit:
		return nil, ErrWorkerClosed
	default:
	}
	if w.cache != nil {
		if vec, ok := w.cache.Get(text, maxTokens); ok {
			return vec, nil
		}
	}

	j := job{ctx: ctx, text: text, maxTokens: maxTokens, done: make(chan result, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, ErrWorkerClosed
	}

	select {
	case r := <-j.done:
		return r.vec, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.stopped:
		select {
		case r := <-j.done:
			return r.vec, r.err
		default:
			return nil, ErrWorkerClosed
		}
	}
}

// Dimensions returns the dimension reported by the first embedder.
func (w *Worker) Dimensions() int {
	return w.dims
}

// Close stops accepting work, fails queued jobs with ErrWorkerClosed, and closes the embedder.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		close(w.quit)
		<-w.stopped
	})
	return w.closeErr
}

func (w *Worker) run() {
	defer close(w.stopped)
	for {
		select {
		case j := <-w.jobs:
			vec, err := w.embed(j)
			if err == nil && w.cache != nil {
				w.cache.Set(j.text, j.maxTokens, vec)
			}
			j.done <- result{vec: vec, err: err}
		case <-w.quit:
			w.drain()
			if w.emb != nil {
				w.closeErr = w.discard()
			}
			return
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case j := <-w.jobs:
			j.done <- result{err: ErrWorkerClosed}
		default:
			return
		}
	}
}

func (w *Worker) embed(j job) (vec []float32, err error) {
	if w.emb == nil {
		emb, ferr := w.factory()
		if ferr != nil {
			return nil, fmt.Errorf("recreate embedder: %w", ferr)
		}
		w.logger.Info("embedder recreated")
		w.emb = emb
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("embedder panicked, discarding instance", zap.Any("panic", r))
			_ = w.discard()
			vec, err = nil, fmt.Errorf("%w: %v", ErrEmbedderPoisoned, r)
		}
	}()
	return w.emb.Embed(context.WithoutCancel(j.ctx), j.text, j.maxTokens)
}

// discard closes the current embedder, tolerating a panic from a broken instance.
func (w *Worker) discard() (err error) {
	emb := w.emb
	w.emb = nil
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: close: %v", ErrEmbedderPoisoned, r)
		}
	}()
	return emb.Close()
}
